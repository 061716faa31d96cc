// Package cache keeps the last applied lists per phone number so they can be
// shown again without a network round trip.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/lookout/internal/apperr"
	"github.com/starford/lookout/internal/record"
)

var errNotCached = fmt.Errorf("cache: %w", apperr.ErrNotFound)

// List names one cached list.
type List string

const (
	ListOwnReports      List = "own_reports"
	ListMatchCandidates List = "match_candidates"
	ListSightings       List = "sightings"
)

// Snapshot is one cached list.
type Snapshot struct {
	Phone   string          `json:"phone"`
	List    List            `json:"list"`
	Records []record.Record `json:"records"`
	SavedAt time.Time       `json:"saved_at"`
}

// Store persists snapshots. Save replaces the previous snapshot for the same
// phone and list; lists are never merged across saves.
type Store interface {
	Save(ctx context.Context, phone string, list List, records []record.Record) error
	// Load returns apperr.ErrNotFound when nothing (or nothing fresh) is cached.
	Load(ctx context.Context, phone string, list List) (Snapshot, error)
	// SetStatus sets the status flag of a cached record. It reports whether
	// a record was changed.
	SetStatus(ctx context.Context, phone string, list List, id string) (bool, error)
	Close() error
}

// Nop is a Store that caches nothing.
type Nop struct{}

func (Nop) Save(context.Context, string, List, []record.Record) error { return nil }

func (Nop) Load(context.Context, string, List) (Snapshot, error) {
	return Snapshot{}, errNotCached
}

func (Nop) SetStatus(context.Context, string, List, string) (bool, error) { return false, nil }

func (Nop) Close() error { return nil }

var (
	_ Store = (*SQLite)(nil)
	_ Store = (*Redis)(nil)
	_ Store = Nop{}
)
