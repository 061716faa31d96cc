// Package testutil provides shared test helpers: a fake reports backend,
// temporary photo directories and snapshot caches.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lookout/internal/cache"
	"github.com/starford/lookout/internal/record"
	"github.com/starford/lookout/internal/storage"
)

// Submission is one multipart form received by the fake backend.
type Submission struct {
	Path     string
	Fields   map[string]string
	FileName string
	FileType string
	File     []byte
}

// FakeBackend is an in-process stand-in for the reports backend.
type FakeBackend struct {
	Server *httptest.Server

	mu          sync.Mutex
	reports     map[string][]record.Document
	matches     map[string][]record.Document
	searches    map[string][]record.Document
	failures    map[string]int
	delays      map[string]time.Duration
	found       map[string]int
	resolved    map[string]int
	calls       map[string]int
	submissions []Submission
}

// NewFakeBackend starts a fake backend that is closed when the test ends.
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()
	f := &FakeBackend{
		reports:  make(map[string][]record.Document),
		matches:  make(map[string][]record.Document),
		searches: make(map[string][]record.Document),
		failures: make(map[string]int),
		delays:   make(map[string]time.Duration),
		found:    make(map[string]int),
		resolved: make(map[string]int),
		calls:    make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(f.intercept)
	r.Get("/my-reports", f.list(func(phone string) any {
		return map[string]any{"reports": nonNil(f.reports[phone])}
	}))
	r.Get("/potential-matches", f.list(func(phone string) any {
		return map[string]any{"matches": nonNil(f.matches[phone])}
	}))
	r.Get("/my-searches", f.list(func(phone string) any {
		return map[string]any{"searches": nonNil(f.searches[phone])}
	}))
	r.Patch("/my-reports/{id}/found", f.flag(f.found))
	r.Patch("/my-searches/{id}/resolved", f.flag(f.resolved))
	r.Post("/report-missing", f.submit)
	r.Post("/report-sighting", f.submit)

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the fake backend base URL.
func (f *FakeBackend) URL() string { return f.Server.URL }

// SetReports sets the own-report documents returned for phone.
func (f *FakeBackend) SetReports(phone string, docs ...record.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports[phone] = docs
}

// SetMatches sets the match documents returned for phone.
func (f *FakeBackend) SetMatches(phone string, docs ...record.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matches[phone] = docs
}

// SetSearches sets the sighting documents returned for phone.
func (f *FakeBackend) SetSearches(phone string, docs ...record.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches[phone] = docs
}

// Fail makes every request to path answer with status.
func (f *FakeBackend) Fail(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[path] = status
}

// Delay holds every request to path for d before answering.
func (f *FakeBackend) Delay(path string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays[path] = d
}

// Calls returns how many requests reached path.
func (f *FakeBackend) Calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

// FoundCount returns how many mark-found requests were received for id.
func (f *FakeBackend) FoundCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.found[id]
}

// ResolvedCount returns how many mark-resolved requests were received for id.
func (f *FakeBackend) ResolvedCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolved[id]
}

// Submissions returns every multipart form received so far.
func (f *FakeBackend) Submissions() []Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Submission(nil), f.submissions...)
}

func (f *FakeBackend) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[r.URL.Path]++
		status := f.failures[r.URL.Path]
		delay := f.delays[r.URL.Path]
		f.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			writeJSON(w, status, map[string]string{"detail": "backend unavailable"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeBackend) list(body func(phone string) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		resp := body(r.URL.Query().Get("phone_number"))
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, resp)
	}
}

func (f *FakeBackend) flag(counts map[string]int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		f.mu.Lock()
		counts[id]++
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
	}
}

func (f *FakeBackend) submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid multipart"})
		return
	}
	sub := Submission{Path: r.URL.Path, Fields: make(map[string]string)}
	for k, v := range r.MultipartForm.Value {
		if len(v) > 0 {
			sub.Fields[k] = v[0]
		}
	}
	if file, header, err := r.FormFile("photo"); err == nil {
		sub.FileName = header.Filename
		sub.FileType = header.Header.Get("Content-Type")
		sub.File, _ = io.ReadAll(file)
		file.Close()
	}
	f.mu.Lock()
	f.submissions = append(f.submissions, sub)
	n := len(f.submissions)
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "stored",
		"id":      map[string]any{"$oid": fmt.Sprintf("sub%d", n)},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func nonNil(docs []record.Document) []record.Document {
	if docs == nil {
		return []record.Document{}
	}
	return docs
}

// TestCache creates a temporary SQLite snapshot cache that is automatically cleaned up.
func TestCache(t *testing.T) *cache.SQLite {
	t.Helper()
	dbFile, err := os.CreateTemp("", "lookout-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	c, err := cache.OpenSQLite(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// TestPhotoDir creates a temporary photo directory with a storage.Provider.
func TestPhotoDir(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}
