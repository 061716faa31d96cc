package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/lookout/internal/apperr"
	"github.com/starford/lookout/internal/record"
)

func testSQLite(t *testing.T, ttl ...time.Duration) *SQLite {
	t.Helper()
	f, err := os.CreateTemp("", "lookout-cache-*.db")
	require.NoError(t, err)
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	s, err := OpenSQLite(f.Name(), ttl...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRedis(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedis("redis://"+mr.Addr(), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func stores(t *testing.T) map[string]Store {
	r, _ := testRedis(t, 0)
	return map[string]Store{
		"sqlite": testSQLite(t),
		"redis":  r,
	}
}

func sample() []record.Record {
	return []record.Record{
		{ID: "r1", Kind: record.KindOwnReport, DisplayName: "Max", Location: "1.0000, 2.0000"},
		{ID: "r2", Kind: record.KindOwnReport, Status: true},
	}
}

func TestSaveLoad(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, "555", ListOwnReports, sample()))

			snap, err := s.Load(ctx, "555", ListOwnReports)
			require.NoError(t, err)
			assert.Equal(t, "555", snap.Phone)
			assert.Equal(t, ListOwnReports, snap.List)
			assert.Equal(t, sample(), snap.Records)
			assert.False(t, snap.SavedAt.IsZero())
		})
	}
}

func TestSaveReplaces(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, "555", ListSightings, sample()))
			require.NoError(t, s.Save(ctx, "555", ListSightings, []record.Record{{ID: "s9"}}))

			snap, err := s.Load(ctx, "555", ListSightings)
			require.NoError(t, err)
			require.Len(t, snap.Records, 1)
			assert.Equal(t, "s9", snap.Records[0].ID)
		})
	}
}

func TestSaveEmpty(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, "555", ListMatchCandidates, nil))

			snap, err := s.Load(ctx, "555", ListMatchCandidates)
			require.NoError(t, err)
			assert.NotNil(t, snap.Records)
			assert.Empty(t, snap.Records)
		})
	}
}

func TestLoadMissing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load(context.Background(), "nobody", ListOwnReports)
			assert.ErrorIs(t, err, apperr.ErrNotFound)
		})
	}
}

func TestListsAreSeparate(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, "555", ListOwnReports, sample()))

			_, err := s.Load(ctx, "555", ListSightings)
			assert.ErrorIs(t, err, apperr.ErrNotFound)
			_, err = s.Load(ctx, "556", ListOwnReports)
			assert.ErrorIs(t, err, apperr.ErrNotFound)
		})
	}
}

func TestSetStatus(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, "555", ListOwnReports, sample()))

			changed, err := s.SetStatus(ctx, "555", ListOwnReports, "r1")
			require.NoError(t, err)
			assert.True(t, changed)

			changed, err = s.SetStatus(ctx, "555", ListOwnReports, "absent")
			require.NoError(t, err)
			assert.False(t, changed)

			changed, err = s.SetStatus(ctx, "other", ListOwnReports, "r1")
			require.NoError(t, err)
			assert.False(t, changed)

			snap, err := s.Load(ctx, "555", ListOwnReports)
			require.NoError(t, err)
			assert.True(t, snap.Records[0].Status)
			assert.True(t, snap.Records[1].Status)
		})
	}
}

func TestSQLiteTTL(t *testing.T) {
	s := testSQLite(t, time.Millisecond)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "555", ListOwnReports, sample()))
	time.Sleep(20 * time.Millisecond)

	_, err := s.Load(ctx, "555", ListOwnReports)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRedisTTL(t *testing.T) {
	s, mr := testRedis(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "555", ListOwnReports, sample()))

	_, err := s.SetStatus(ctx, "555", ListOwnReports, "r1")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL("lookout:snapshot:own_reports:555"))

	mr.FastForward(2 * time.Minute)
	_, err = s.Load(ctx, "555", ListOwnReports)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestNewRedis_BadURL(t *testing.T) {
	_, err := NewRedis("not-a-url", 0)
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var s Store = Nop{}
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "1", ListOwnReports, sample()))
	_, err := s.Load(ctx, "1", ListOwnReports)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
