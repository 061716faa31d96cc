// Package mutate applies status changes: the backend is told first and the
// held list is patched only once the backend has confirmed.
package mutate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/lookout/internal/apperr"
	"github.com/starford/lookout/internal/backend"
	"github.com/starford/lookout/internal/record"
)

// Mutator is the backend side of a status change.
type Mutator interface {
	MarkReportFound(ctx context.Context, id string) (backend.Ack, error)
	MarkSightingResolved(ctx context.Context, id string) (backend.Ack, error)
}

// Holder owns the list being displayed. Patch returns the phone the
// patched list belongs to.
type Holder interface {
	Patch(kind record.Kind, id string) (phone string, changed bool)
}

// Hook is called after a confirmed change has been applied locally. phone
// is the owner of the list that was patched, or "" when nothing is held.
type Hook func(ctx context.Context, kind record.Kind, phone, id string)

// Outcome describes a confirmed change.
type Outcome struct {
	ID   string      `json:"id"`
	Kind record.Kind `json:"kind"`
	// Applied is false when the id was not in the held list.
	Applied bool `json:"applied"`
}

// Reconciler performs confirm-then-apply status changes.
type Reconciler struct {
	backend Mutator
	holder  Holder
	hooks   []Hook
	logger  *slog.Logger
}

// New creates a Reconciler. hooks run in order after every local patch.
func New(m Mutator, h Holder, logger *slog.Logger, hooks ...Hook) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{backend: m, holder: h, hooks: hooks, logger: logger}
}

// MarkFound flags an own report as found. On failure the held list is left
// untouched. Repeating the call is safe.
func (r *Reconciler) MarkFound(ctx context.Context, id string) (Outcome, error) {
	return r.apply(ctx, record.KindOwnReport, id, r.backend.MarkReportFound)
}

// MarkResolved flags a submitted sighting as resolved.
func (r *Reconciler) MarkResolved(ctx context.Context, id string) (Outcome, error) {
	return r.apply(ctx, record.KindSighting, id, r.backend.MarkSightingResolved)
}

func (r *Reconciler) apply(
	ctx context.Context,
	kind record.Kind,
	id string,
	send func(context.Context, string) (backend.Ack, error),
) (Outcome, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Outcome{}, apperr.NewValidationError("id", "identifier is required")
	}

	ack, err := send(ctx, id)
	if err != nil {
		r.logger.Warn("mutate: backend rejected change",
			slog.String("kind", string(kind)),
			slog.String("id", id),
			slog.String("error", err.Error()))
		return Outcome{}, fmt.Errorf("mutate: %s %s: %w", kind, id, err)
	}
	if !ack.OK {
		return Outcome{}, &apperr.NetworkError{Op: "mutate", Message: ack.Message}
	}

	phone, applied := r.holder.Patch(kind, id)
	for _, h := range r.hooks {
		h(ctx, kind, phone, id)
	}
	r.logger.Info("mutate: change applied",
		slog.String("kind", string(kind)),
		slog.String("id", id),
		slog.Bool("applied", applied))
	return Outcome{ID: id, Kind: kind, Applied: applied}, nil
}
