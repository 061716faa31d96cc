// Package sse implements a Server-Sent Events broker that tells connected
// screens when the board changed.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Event types.
const (
	EventLookup    = "board.lookup"
	EventSightings = "board.sightings"
	EventFound     = "record.found"
	EventResolved  = "record.resolved"
	EventPhoto     = "photo.added"
	EventBoard     = "board.updated"
)

// Event represents an SSE event to broadcast. An event with a Phone only
// reaches clients watching that phone or watching everything.
type Event struct {
	Type  string `json:"type"`
	Phone string `json:"-"`
	Data  any    `json:"data"`
}

type subscription struct {
	ch    chan []byte
	phone string
}

// Broker manages SSE client connections and broadcasts events.
//
// A single internal event loop owns the clients, the event sequence and the
// per-phone board.updated throttle; public methods talk to it through
// channels.
type Broker struct {
	boardMin time.Duration

	// KeepAlive is the interval of comment lines sent to idle clients.
	// Set it before serving.
	KeepAlive time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	boardEventCh  chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. At most one board.updated event per
// phone is sent per boardThrottle.
func NewBroker(boardThrottle time.Duration) *Broker {
	if boardThrottle <= 0 {
		boardThrottle = 2 * time.Second
	}

	b := &Broker{
		boardMin:      boardThrottle,
		KeepAlive:     15 * time.Second,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		boardEventCh:  make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string)
	throttle := newPhoneThrottle(b.boardMin)
	var seq uint64

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))

		for ch, phone := range clients {
			if phone != "" && event.Phone != "" && phone != event.Phone {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than stall the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.phone

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case event := <-b.boardEventCh:
			broadcast(event)

			if throttle.allow(event.Phone, time.Now()) {
				broadcast(Event{
					Type:  EventBoard,
					Phone: event.Phone,
					Data:  map[string]string{"phone": event.Phone},
				})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// phoneThrottle remembers when each phone last got a board.updated event.
// Entries are dropped once their window has passed.
type phoneThrottle struct {
	window time.Duration
	last   map[string]time.Time
}

func newPhoneThrottle(window time.Duration) *phoneThrottle {
	return &phoneThrottle{window: window, last: make(map[string]time.Time)}
}

func (t *phoneThrottle) allow(phone string, now time.Time) bool {
	for p, at := range t.last {
		if now.Sub(at) >= t.window {
			delete(t.last, p)
		}
	}
	if _, ok := t.last[phone]; ok {
		return false
	}
	t.last[phone] = now
	return true
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client and returns its channel. An empty phone receives
// every event.
func (b *Broker) Subscribe(phone string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, phone: phone}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to the matching clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishBoardEvent publishes a change to the held lists followed by a
// throttled board.updated event for the same phone.
func (b *Broker) PublishBoardEvent(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.boardEventCh <- event:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events[?phone=]).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(strings.TrimSpace(r.URL.Query().Get("phone")))
	defer b.Unsubscribe(ch)

	keepAlive := b.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
