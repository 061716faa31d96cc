package mutate

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/lookout/internal/apperr"
	"github.com/starford/lookout/internal/backend"
	"github.com/starford/lookout/internal/board"
	"github.com/starford/lookout/internal/record"
	"github.com/starford/lookout/internal/testutil"
)

func setup(t *testing.T, hooks ...Hook) (*testutil.FakeBackend, *board.Board, *Reconciler) {
	t.Helper()
	fb := testutil.NewFakeBackend(t)
	client, err := backend.New(backend.Options{BaseURL: fb.URL(), Timeout: time.Second})
	require.NoError(t, err)

	b := board.New()
	gen := b.BeginLookup("1")
	_, err = b.ApplyLookup(gen, []record.Record{{ID: "r1", Kind: record.KindOwnReport}, {ID: "r2", Kind: record.KindOwnReport}}, nil)
	require.NoError(t, err)
	sg := b.BeginSightings("1")
	_, err = b.ApplySightings(sg, []record.Record{{ID: "s1", Kind: record.KindSighting}})
	require.NoError(t, err)

	return fb, b, New(client, b, nil, hooks...)
}

func TestMarkFound(t *testing.T) {
	fb, b, r := setup(t)

	out, err := r.MarkFound(context.Background(), "r1")
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, 1, fb.FoundCount("r1"))

	held := b.Lookup().OwnReports
	assert.True(t, held[0].Status)
	assert.False(t, held[1].Status)
}

func TestMarkFound_Twice(t *testing.T) {
	fb, b, r := setup(t)

	_, err := r.MarkFound(context.Background(), "r1")
	require.NoError(t, err)
	out, err := r.MarkFound(context.Background(), "r1")
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, 2, fb.FoundCount("r1"))
	assert.True(t, b.Lookup().OwnReports[0].Status)
}

func TestMarkFound_FailureLeavesListUntouched(t *testing.T) {
	fb, b, r := setup(t)
	fb.Fail("/my-reports/r1/found", http.StatusInternalServerError)

	_, err := r.MarkFound(context.Background(), "r1")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrNetwork)
	assert.Equal(t, "backend unavailable", apperr.UserMessage(err))
	assert.False(t, b.Lookup().OwnReports[0].Status)
}

func TestMarkFound_IDNotHeld(t *testing.T) {
	fb, _, r := setup(t)

	out, err := r.MarkFound(context.Background(), "elsewhere")
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Equal(t, 1, fb.FoundCount("elsewhere"))
}

func TestMarkFound_EmptyID(t *testing.T) {
	fb, _, r := setup(t)

	_, err := r.MarkFound(context.Background(), " ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Zero(t, fb.Calls("/my-reports//found"))
}

func TestMarkResolved(t *testing.T) {
	fb, b, r := setup(t)

	out, err := r.MarkResolved(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, record.KindSighting, out.Kind)
	assert.True(t, out.Applied)
	assert.Equal(t, 1, fb.ResolvedCount("s1"))
	assert.True(t, b.Sightings().Sightings[0].Status)
	assert.False(t, b.Lookup().OwnReports[0].Status)
}

func TestHooksRunAfterPatch(t *testing.T) {
	var got []string
	hook := func(_ context.Context, kind record.Kind, phone, id string) {
		got = append(got, string(kind)+":"+phone+":"+id)
	}
	fb, _, r := setup(t, hook)
	fb.Fail("/my-searches/s1/resolved", http.StatusServiceUnavailable)

	_, err := r.MarkFound(context.Background(), "r2")
	require.NoError(t, err)
	_, err = r.MarkResolved(context.Background(), "s1")
	require.Error(t, err)

	assert.Equal(t, []string{"own_report:1:r2"}, got)
}

type rejectingMutator struct{}

func (rejectingMutator) MarkReportFound(context.Context, string) (backend.Ack, error) {
	return backend.Ack{OK: false, Message: "locked"}, nil
}

func (rejectingMutator) MarkSightingResolved(context.Context, string) (backend.Ack, error) {
	return backend.Ack{OK: false}, nil
}

func TestMarkFound_NotOK(t *testing.T) {
	b := board.New()
	r := New(rejectingMutator{}, b, nil)

	_, err := r.MarkFound(context.Background(), "r1")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrNetwork)
	assert.Equal(t, "locked", apperr.UserMessage(err))
}
