// Package lookup runs the phone-number search: the caller's own missing
// reports and the candidates matched against them, fetched concurrently.
package lookup

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/starford/lookout/internal/apperr"
	"github.com/starford/lookout/internal/record"
)

// Source is the subset of the backend client the coordinator reads from.
type Source interface {
	ReportsByPhone(ctx context.Context, phone string) ([]record.Document, error)
	MatchesByPhone(ctx context.Context, phone string) ([]record.Document, error)
	SightingsByPhone(ctx context.Context, phone string) ([]record.Document, error)
}

// Result holds both lists of a completed search. Lists are never nil.
type Result struct {
	Phone           string
	OwnReports      []record.Record
	MatchCandidates []record.Record
}

// Coordinator issues lookups. It holds no per-search state.
type Coordinator struct {
	src    Source
	logger *slog.Logger
}

// New creates a Coordinator reading from src.
func New(src Source, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{src: src, logger: logger}
}

// Search fetches own reports and match candidates for phone. Both queries
// must succeed: if either fails the result is a single network error and
// no partial lists are returned.
func (c *Coordinator) Search(ctx context.Context, phone string) (Result, error) {
	phone, err := normalizePhone(phone)
	if err != nil {
		return Result{}, err
	}

	var reports, matches []record.Document
	var reportsErr, matchesErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reports, reportsErr = c.src.ReportsByPhone(gctx, phone)
		return reportsErr
	})
	g.Go(func() error {
		matches, matchesErr = c.src.MatchesByPhone(gctx, phone)
		return matchesErr
	})
	if g.Wait() != nil {
		return Result{}, combine("lookup", reportsErr, matchesErr)
	}

	res := Result{
		Phone:           phone,
		OwnReports:      record.Dedupe(record.MapAll(reports, record.KindOwnReport, c.logger)),
		MatchCandidates: record.Dedupe(record.MapAll(matches, record.KindMatchCandidate, c.logger)),
	}
	c.logger.Info("lookup: search complete",
		slog.Int("own_reports", len(res.OwnReports)),
		slog.Int("match_candidates", len(res.MatchCandidates)))
	return res, nil
}

// Sightings fetches the sightings the caller submitted.
func (c *Coordinator) Sightings(ctx context.Context, phone string) ([]record.Record, error) {
	phone, err := normalizePhone(phone)
	if err != nil {
		return nil, err
	}
	docs, err := c.src.SightingsByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	return record.Dedupe(record.MapAll(docs, record.KindSighting, c.logger)), nil
}

func normalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", apperr.NewValidationError("phone", "phone number is required")
	}
	return phone, nil
}

// combine folds the failures of a fan-out into one NetworkError. A sibling
// cancelled by the group context is not reported on its own.
func combine(op string, errs ...error) error {
	var causes, cancelled []error
	for _, err := range errs {
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			cancelled = append(cancelled, err)
		default:
			causes = append(causes, err)
		}
	}
	if len(causes) == 0 {
		causes = cancelled
	}

	var status int
	var message string
	for _, err := range causes {
		var ne *apperr.NetworkError
		if errors.As(err, &ne) && ne.Status != 0 {
			status, message = ne.Status, ne.Message
			break
		}
	}
	if len(causes) == 1 {
		var ne *apperr.NetworkError
		if errors.As(causes[0], &ne) {
			return ne
		}
	}
	return &apperr.NetworkError{Op: op, Status: status, Message: message, Err: errors.Join(causes...)}
}
