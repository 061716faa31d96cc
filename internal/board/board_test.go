package board

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/lookout/internal/apperr"
	"github.com/starford/lookout/internal/record"
)

func TestApplyLookup(t *testing.T) {
	b := New()
	gen := b.BeginLookup("555")

	got, err := b.ApplyLookup(gen, []record.Record{{ID: "r1"}}, []record.Record{{ID: "m1"}})
	require.NoError(t, err)
	assert.Equal(t, gen, got.Generation)
	assert.Equal(t, "555", got.Phone)
	assert.Len(t, got.OwnReports, 1)
	assert.Len(t, got.MatchCandidates, 1)
	assert.Equal(t, got, b.Lookup())
}

func TestApplyLookup_StaleDropped(t *testing.T) {
	b := New()
	first := b.BeginLookup("111")
	second := b.BeginLookup("222")
	assert.Greater(t, second, first)

	_, err := b.ApplyLookup(second, []record.Record{{ID: "new"}}, nil)
	require.NoError(t, err)

	_, err = b.ApplyLookup(first, []record.Record{{ID: "old"}}, nil)
	assert.ErrorIs(t, err, apperr.ErrStale)

	held := b.Lookup()
	assert.Equal(t, "222", held.Phone)
	require.Len(t, held.OwnReports, 1)
	assert.Equal(t, "new", held.OwnReports[0].ID)
}

func TestApplyLookup_StaleEvenWhenNewerStillInFlight(t *testing.T) {
	b := New()
	first := b.BeginLookup("111")
	b.BeginLookup("222")

	_, err := b.ApplyLookup(first, []record.Record{{ID: "old"}}, nil)
	assert.ErrorIs(t, err, apperr.ErrStale)
	assert.Empty(t, b.Lookup().OwnReports)
}

func TestSightingsIndependentOfLookup(t *testing.T) {
	b := New()
	sg := b.BeginSightings("555")
	b.BeginLookup("555")

	got, err := b.ApplySightings(sg, []record.Record{{ID: "s1"}})
	require.NoError(t, err)
	assert.Equal(t, "555", got.Phone)
	assert.Len(t, b.Sightings().Sightings, 1)
}

func TestPatch(t *testing.T) {
	b := New()
	lg := b.BeginLookup("1")
	_, err := b.ApplyLookup(lg, []record.Record{{ID: "r1"}, {ID: "r2"}}, []record.Record{{ID: "r1", Kind: record.KindMatchCandidate}})
	require.NoError(t, err)
	sg := b.BeginSightings("1")
	_, err = b.ApplySightings(sg, []record.Record{{ID: "s1"}})
	require.NoError(t, err)

	changed := func(kind record.Kind, id string) bool {
		_, ok := b.Patch(kind, id)
		return ok
	}
	assert.True(t, changed(record.KindOwnReport, "r2"))
	assert.True(t, changed(record.KindOwnReport, "r2"), "patching twice is fine")
	assert.False(t, changed(record.KindOwnReport, "missing"))
	assert.False(t, changed(record.KindMatchCandidate, "r1"))
	assert.True(t, changed(record.KindSighting, "s1"))

	l := b.Lookup()
	assert.False(t, l.OwnReports[0].Status)
	assert.True(t, l.OwnReports[1].Status)
	assert.False(t, l.MatchCandidates[0].Status)
	assert.True(t, b.Sightings().Sightings[0].Status)
}

func TestSnapshotIsACopy(t *testing.T) {
	b := New()
	gen := b.BeginLookup("1")
	_, err := b.ApplyLookup(gen, []record.Record{{ID: "r1"}}, nil)
	require.NoError(t, err)

	snap := b.Snapshot()
	snap.Lookup.OwnReports[0].Status = true
	assert.False(t, b.Lookup().OwnReports[0].Status)
	assert.NotNil(t, snap.Sightings.Sightings)
}

func TestConcurrentBegin(t *testing.T) {
	b := New()
	var wg sync.WaitGroup
	seen := make(chan Generation, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- b.BeginLookup("x")
		}()
	}
	wg.Wait()
	close(seen)

	uniq := make(map[Generation]bool)
	for g := range seen {
		uniq[g] = true
	}
	assert.Len(t, uniq, 100)
}

func TestPatch_ReturnsListPhone(t *testing.T) {
	b := New()
	lg := b.BeginLookup("111")
	_, err := b.ApplyLookup(lg, []record.Record{{ID: "r1"}}, nil)
	require.NoError(t, err)
	sg := b.BeginSightings("222")
	_, err = b.ApplySightings(sg, []record.Record{{ID: "s1"}})
	require.NoError(t, err)

	// A lookup issued but not applied does not change the held phone.
	b.BeginLookup("333")

	phone, ok := b.Patch(record.KindOwnReport, "r1")
	assert.True(t, ok)
	assert.Equal(t, "111", phone)
	phone, ok = b.Patch(record.KindSighting, "s1")
	assert.True(t, ok)
	assert.Equal(t, "222", phone)
}

func TestCommitLookup_CommitsInOrder(t *testing.T) {
	b := New()
	first := b.BeginLookup("555")

	var mu sync.Mutex
	var committed []string
	collect := func(l Lookup) {
		mu.Lock()
		defer mu.Unlock()
		committed = append(committed, l.OwnReports[0].ID)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		_, err := b.CommitLookup(first, []record.Record{{ID: "old"}}, nil, func(l Lookup) {
			close(entered)
			<-release
			collect(l)
		})
		done <- err
	}()
	<-entered

	second := b.BeginLookup("555")
	secondDone := make(chan error)
	go func() {
		_, err := b.CommitLookup(second, []record.Record{{ID: "new"}}, nil, collect)
		secondDone <- err
	}()

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, <-secondDone)

	assert.Equal(t, []string{"old", "new"}, committed)
	assert.Equal(t, "new", b.Lookup().OwnReports[0].ID)
}

func TestCommitSightings_StaleSkipsCommit(t *testing.T) {
	b := New()
	first := b.BeginSightings("555")
	b.BeginSightings("555")

	called := false
	_, err := b.CommitSightings(first, []record.Record{{ID: "s1"}}, func(Sightings) { called = true })
	assert.ErrorIs(t, err, apperr.ErrStale)
	assert.False(t, called)
}
