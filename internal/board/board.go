// Package board holds the lists currently on screen. Lookups are stamped with
// a generation when issued and a result is only applied if no newer lookup
// was issued in the meantime.
package board

import (
	"sync"

	"github.com/starford/lookout/internal/apperr"
	"github.com/starford/lookout/internal/record"
)

// Generation identifies one issued lookup. Larger is newer.
type Generation uint64

// Lookup is the phone-lookup screen: own reports and their match candidates.
type Lookup struct {
	Generation      Generation      `json:"generation"`
	Phone           string          `json:"phone"`
	OwnReports      []record.Record `json:"own_reports"`
	MatchCandidates []record.Record `json:"match_candidates"`
}

// Sightings is the "my sightings" screen.
type Sightings struct {
	Generation Generation      `json:"generation"`
	Phone      string          `json:"phone"`
	Sightings  []record.Record `json:"sightings"`
}

// Snapshot is a copy of everything the board holds.
type Snapshot struct {
	Lookup    Lookup    `json:"lookup"`
	Sightings Sightings `json:"sightings"`
}

// Board is safe for concurrent use.
type Board struct {
	mu sync.Mutex

	// Held across apply and commit so commits land in generation order.
	lookupCommit sync.Mutex
	sightCommit  sync.Mutex

	next          Generation
	lookupIssued  Generation
	sightIssued   Generation
	lookupPending string
	sightPending  string

	lookup    Lookup
	sightings Sightings
}

// New returns an empty board.
func New() *Board {
	return &Board{
		lookup:    Lookup{OwnReports: []record.Record{}, MatchCandidates: []record.Record{}},
		sightings: Sightings{Sightings: []record.Record{}},
	}
}

// BeginLookup issues a generation for a phone lookup, superseding any
// lookup still in flight.
func (b *Board) BeginLookup(phone string) Generation {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.lookupIssued = b.next
	b.lookupPending = phone
	return b.next
}

// ApplyLookup replaces the lookup lists with the result of gen. A result
// from a superseded generation is dropped with apperr.ErrStale.
func (b *Board) ApplyLookup(gen Generation, own, candidates []record.Record) (Lookup, error) {
	return b.CommitLookup(gen, own, candidates, nil)
}

// CommitLookup is ApplyLookup followed by commit with the applied lists.
// No later lookup can be applied until commit returns, so whatever commit
// persists is never overwritten by an older generation.
func (b *Board) CommitLookup(gen Generation, own, candidates []record.Record, commit func(Lookup)) (Lookup, error) {
	b.lookupCommit.Lock()
	defer b.lookupCommit.Unlock()

	b.mu.Lock()
	if gen != b.lookupIssued {
		b.mu.Unlock()
		return Lookup{}, apperr.ErrStale
	}
	b.lookup = Lookup{
		Generation:      gen,
		Phone:           b.lookupPending,
		OwnReports:      clone(own),
		MatchCandidates: clone(candidates),
	}
	held := b.lookup.copy()
	b.mu.Unlock()

	if commit != nil {
		commit(held.copy())
	}
	return held, nil
}

// BeginSightings issues a generation for a sightings query.
func (b *Board) BeginSightings(phone string) Generation {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.sightIssued = b.next
	b.sightPending = phone
	return b.next
}

// ApplySightings replaces the sightings list with the result of gen.
func (b *Board) ApplySightings(gen Generation, sightings []record.Record) (Sightings, error) {
	return b.CommitSightings(gen, sightings, nil)
}

// CommitSightings is the sightings counterpart of CommitLookup.
func (b *Board) CommitSightings(gen Generation, sightings []record.Record, commit func(Sightings)) (Sightings, error) {
	b.sightCommit.Lock()
	defer b.sightCommit.Unlock()

	b.mu.Lock()
	if gen != b.sightIssued {
		b.mu.Unlock()
		return Sightings{}, apperr.ErrStale
	}
	b.sightings = Sightings{
		Generation: gen,
		Phone:      b.sightPending,
		Sightings:  clone(sightings),
	}
	held := b.sightings.copy()
	b.mu.Unlock()

	if commit != nil {
		commit(held.copy())
	}
	return held, nil
}

// Patch sets the status flag of the held record with the given kind and id.
// It returns the phone of the list it looked in and whether a record was
// changed; an id that is not on the board is not an error.
func (b *Board) Patch(kind record.Kind, id string) (phone string, changed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch kind {
	case record.KindOwnReport:
		return b.lookup.Phone, setStatus(b.lookup.OwnReports, id)
	case record.KindSighting:
		return b.sightings.Phone, setStatus(b.sightings.Sightings, id)
	}
	return "", false
}

// Lookup returns a copy of the applied lookup lists.
func (b *Board) Lookup() Lookup {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lookup.copy()
}

// Sightings returns a copy of the applied sightings list.
func (b *Board) Sightings() Sightings {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sightings.copy()
}

// Snapshot returns a copy of both screens.
func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{Lookup: b.lookup.copy(), Sightings: b.sightings.copy()}
}

func (l Lookup) copy() Lookup {
	l.OwnReports = clone(l.OwnReports)
	l.MatchCandidates = clone(l.MatchCandidates)
	return l
}

func (s Sightings) copy() Sightings {
	s.Sightings = clone(s.Sightings)
	return s
}

func setStatus(list []record.Record, id string) bool {
	for i := range list {
		if list[i].ID == id {
			list[i].Status = true
			return true
		}
	}
	return false
}

func clone(in []record.Record) []record.Record {
	out := make([]record.Record, len(in))
	copy(out, in)
	return out
}
