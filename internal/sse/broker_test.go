package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func drain(ch chan []byte) []string {
	time.Sleep(50 * time.Millisecond)
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe("")
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: EventPhoto, Data: map[string]string{"name": "a.jpg"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.HasPrefix(s, "id: 1\nevent: photo.added\n") {
			t.Errorf("missing id or event type in %q", s)
		}
		if !strings.Contains(s, `"name":"a.jpg"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublish_PhoneFilter(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	mine := b.Subscribe("555")
	other := b.Subscribe("777")
	all := b.Subscribe("")

	b.Publish(Event{Type: EventFound, Phone: "555", Data: map[string]string{"id": "r1"}})
	b.Publish(Event{Type: EventPhoto, Data: map[string]string{"name": "a.jpg"}})

	if got := drain(mine); len(got) != 2 {
		t.Errorf("555 got %d events, want 2: %q", len(got), got)
	}
	got := drain(other)
	if len(got) != 1 || !strings.Contains(got[0], "photo.added") {
		t.Errorf("777 got %q, want only the photo event", got)
	}
	if got := drain(all); len(got) != 2 {
		t.Errorf("unfiltered got %d events, want 2", len(got))
	}
}

func TestPublishBoardEvent_Throttle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	b.PublishBoardEvent(Event{Type: EventFound, Phone: "555", Data: map[string]string{"id": "r1"}})
	b.PublishBoardEvent(Event{Type: EventResolved, Phone: "555", Data: map[string]string{"id": "s1"}})
	// Another phone has its own throttle window.
	b.PublishBoardEvent(Event{Type: EventLookup, Phone: "777", Data: map[string]string{}})

	boardCount, recordCount := 0, 0
	for _, s := range drain(ch) {
		if strings.Contains(s, "board.updated") {
			boardCount++
		} else {
			recordCount++
		}
	}

	if recordCount != 3 {
		t.Errorf("record events = %d, want 3", recordCount)
	}
	if boardCount != 2 {
		t.Errorf("board events = %d, want 2 (one per phone)", boardCount)
	}
}

func TestPhoneThrottle_Prunes(t *testing.T) {
	th := newPhoneThrottle(time.Second)
	start := time.Now()

	for i, phone := range []string{"1", "2", "3"} {
		if !th.allow(phone, start.Add(time.Duration(i)*time.Millisecond)) {
			t.Fatalf("first event for %s throttled", phone)
		}
	}
	if th.allow("1", start.Add(500*time.Millisecond)) {
		t.Error("second event inside the window allowed")
	}
	if len(th.last) != 3 {
		t.Errorf("tracked = %d, want 3", len(th.last))
	}

	if !th.allow("4", start.Add(2*time.Second)) {
		t.Error("new phone throttled")
	}
	if len(th.last) != 1 {
		t.Errorf("tracked after window = %d, want 1 (expired phones pruned)", len(th.last))
	}
	if !th.allow("1", start.Add(2*time.Second)) {
		t.Error("phone still throttled after its window")
	}
}

// flushRecorder guards the body so the test can read it while the handler
// is still writing keep-alives.
type flushRecorder struct {
	mu sync.Mutex
	*httptest.ResponseRecorder
}

func (f *flushRecorder) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ResponseRecorder.Write(p)
}

func (f *flushRecorder) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ResponseRecorder.Body.String()
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	b.KeepAlive = 20 * time.Millisecond
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events?phone=555", nil)
	req = req.WithContext(ctx)
	w := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: EventLookup, Phone: "555", Data: map[string]any{"generation": 3, "phone": "555"}})
	b.Publish(Event{Type: EventLookup, Phone: "777", Data: map[string]any{"generation": 4, "phone": "777"}})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.body()
	if !strings.Contains(body, "event: board.lookup") || !strings.Contains(body, `"generation":3`) {
		t.Errorf("handler output missing event: %q", body)
	}
	if strings.Contains(body, `"generation":4`) {
		t.Errorf("handler leaked another phone's event: %q", body)
	}
	if !strings.Contains(body, ": ping") {
		t.Errorf("handler sent no keep-alive: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	// Buffer holds 64; the extra events must be dropped without blocking.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: EventSightings, Data: map[string]string{"i": "x"}})
	}
	if got := len(drain(ch)); got != 64 {
		t.Errorf("delivered %d events, want 64", got)
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe("")
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	b.Publish(Event{Type: EventPhoto, Data: map[string]string{"name": "x.jpg"}})
	b.PublishBoardEvent(Event{Type: EventFound, Data: map[string]string{"id": "r1"}})
	if ch := b.Subscribe(""); ch == nil {
		t.Fatal("subscribe after close returned nil")
	}
}
