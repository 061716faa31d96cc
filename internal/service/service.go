// Package service composes lookups, mutations, submissions and photos into
// the operations offered by the HTTP API, the MCP server and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/lookout/internal/apperr"
	"github.com/starford/lookout/internal/backend"
	"github.com/starford/lookout/internal/board"
	"github.com/starford/lookout/internal/cache"
	"github.com/starford/lookout/internal/capture"
	"github.com/starford/lookout/internal/lookup"
	"github.com/starford/lookout/internal/mutate"
	"github.com/starford/lookout/internal/record"
	"github.com/starford/lookout/internal/sse"
	"github.com/starford/lookout/internal/storage"
	"github.com/starford/lookout/internal/submit"
)

// Backend is everything the service needs from the reports backend.
type Backend interface {
	lookup.Source
	mutate.Mutator
	SubmitMissingReport(ctx context.Context, form backend.Form) (backend.Ack, error)
	SubmitSighting(ctx context.Context, form backend.Form) (backend.Ack, error)
}

// Publisher receives change notifications.
type Publisher interface {
	Publish(event sse.Event)
	PublishBoardEvent(event sse.Event)
}

// PhotoPicker returns the photo currently picked on the device.
type PhotoPicker interface {
	Latest() (string, error)
}

// Options configures a Service. Backend is required.
type Options struct {
	Backend Backend
	Board   *board.Board
	Cache   cache.Store
	Events  Publisher
	Encoder *submit.Encoder
	Photos  storage.Provider
	Picker  PhotoPicker
	Locator capture.Locator
	Logger  *slog.Logger
}

// LookupView is the phone-lookup screen.
type LookupView struct {
	Generation      board.Generation `json:"generation"`
	Phone           string           `json:"phone"`
	OwnReports      []record.Record  `json:"own_reports"`
	MatchCandidates []record.Record  `json:"match_candidates"`
	Groups          []record.Group   `json:"groups"`
}

// SightingsView is the "my sightings" screen.
type SightingsView struct {
	Generation    board.Generation `json:"generation"`
	Phone         string           `json:"phone"`
	Sightings     []record.Record  `json:"sightings"`
	ResolvedCount int              `json:"resolved_count"`
}

// Service is safe for concurrent use.
type Service struct {
	backend Backend
	lookup  *lookup.Coordinator
	board   *board.Board
	mutate  *mutate.Reconciler
	cache   cache.Store
	events  Publisher
	encoder *submit.Encoder
	photos  storage.Provider
	picker  PhotoPicker
	locator capture.Locator
	dialer  capture.Dialer
	logger  *slog.Logger
}

// New creates a Service. Missing optional collaborators get inert defaults.
func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Board == nil {
		opts.Board = board.New()
	}
	if opts.Cache == nil {
		opts.Cache = cache.Nop{}
	}
	if opts.Events == nil {
		opts.Events = nopPublisher{}
	}
	if opts.Encoder == nil {
		opts.Encoder = &submit.Encoder{}
	}
	if opts.Locator == nil {
		opts.Locator = capture.StaticLocator{}
	}

	s := &Service{
		backend: opts.Backend,
		lookup:  lookup.New(opts.Backend, opts.Logger),
		board:   opts.Board,
		cache:   opts.Cache,
		events:  opts.Events,
		encoder: opts.Encoder,
		photos:  opts.Photos,
		picker:  opts.Picker,
		locator: opts.Locator,
		logger:  opts.Logger,
	}
	s.mutate = mutate.New(opts.Backend, opts.Board, opts.Logger, s.afterPatch)
	return s
}

// Lookup searches by phone and replaces the lookup lists on the board. A
// result overtaken by a newer lookup is discarded with apperr.ErrStale.
func (s *Service) Lookup(ctx context.Context, phone string) (LookupView, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return LookupView{}, apperr.NewValidationError("phone", "phone number is required")
	}

	gen := s.board.BeginLookup(phone)
	res, err := s.lookup.Search(ctx, phone)
	if err != nil {
		return LookupView{}, err
	}
	held, err := s.board.CommitLookup(gen, res.OwnReports, res.MatchCandidates, func(l board.Lookup) {
		s.save(ctx, l.Phone, cache.ListOwnReports, l.OwnReports)
		s.save(ctx, l.Phone, cache.ListMatchCandidates, l.MatchCandidates)
		s.events.PublishBoardEvent(sse.Event{Type: sse.EventLookup, Phone: l.Phone, Data: map[string]any{
			"generation":       l.Generation,
			"phone":            l.Phone,
			"own_reports":      len(l.OwnReports),
			"match_candidates": len(l.MatchCandidates),
		}})
	})
	if err != nil {
		s.logger.Info("service: dropped stale lookup", slog.Uint64("generation", uint64(gen)))
		return LookupView{}, fmt.Errorf("service: lookup %d: %w", gen, err)
	}
	return lookupView(held), nil
}

// Sightings fetches the caller's sightings and replaces them on the board.
func (s *Service) Sightings(ctx context.Context, phone string) (SightingsView, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return SightingsView{}, apperr.NewValidationError("phone", "phone number is required")
	}

	gen := s.board.BeginSightings(phone)
	list, err := s.lookup.Sightings(ctx, phone)
	if err != nil {
		return SightingsView{}, err
	}
	held, err := s.board.CommitSightings(gen, list, func(v board.Sightings) {
		s.save(ctx, v.Phone, cache.ListSightings, v.Sightings)
		s.events.PublishBoardEvent(sse.Event{Type: sse.EventSightings, Phone: v.Phone, Data: map[string]any{
			"generation": v.Generation,
			"phone":      v.Phone,
			"sightings":  len(v.Sightings),
		}})
	})
	if err != nil {
		s.logger.Info("service: dropped stale sightings", slog.Uint64("generation", uint64(gen)))
		return SightingsView{}, fmt.Errorf("service: sightings %d: %w", gen, err)
	}
	return sightingsView(held), nil
}

// Board returns what is currently on screen.
func (s *Service) Board() (LookupView, SightingsView) {
	snap := s.board.Snapshot()
	return lookupView(snap.Lookup), sightingsView(snap.Sightings)
}

// Cached returns the last saved lists for phone without touching the
// network. apperr.ErrNotFound means nothing is cached for it.
func (s *Service) Cached(ctx context.Context, phone string) (LookupView, SightingsView, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return LookupView{}, SightingsView{}, apperr.NewValidationError("phone", "phone number is required")
	}

	lv := LookupView{Phone: phone, OwnReports: []record.Record{}, MatchCandidates: []record.Record{}}
	sv := SightingsView{Phone: phone, Sightings: []record.Record{}}
	found := false
	for _, item := range []struct {
		list cache.List
		dst  *[]record.Record
	}{
		{cache.ListOwnReports, &lv.OwnReports},
		{cache.ListMatchCandidates, &lv.MatchCandidates},
		{cache.ListSightings, &sv.Sightings},
	} {
		snap, err := s.cache.Load(ctx, phone, item.list)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return LookupView{}, SightingsView{}, fmt.Errorf("service: load cache: %w", err)
		}
		*item.dst = snap.Records
		found = true
	}
	if !found {
		return LookupView{}, SightingsView{}, fmt.Errorf("service: cached %s: %w", phone, apperr.ErrNotFound)
	}
	lv.Groups = record.GroupBySource(lv.OwnReports, lv.MatchCandidates)
	sv.ResolvedCount = record.ResolvedCount(sv.Sightings)
	return lv, sv, nil
}

// MarkFound flags an own report as found once the backend confirms.
func (s *Service) MarkFound(ctx context.Context, id string) (mutate.Outcome, error) {
	return s.mutate.MarkFound(ctx, id)
}

// MarkResolved flags a sighting as resolved once the backend confirms.
func (s *Service) MarkResolved(ctx context.Context, id string) (mutate.Outcome, error) {
	return s.mutate.MarkResolved(ctx, id)
}

// Dial returns the tel: link for phone.
func (s *Service) Dial(phone string) capture.Dial {
	return s.dialer.Dial(phone)
}

// afterPatch mirrors a confirmed change into the cache and notifies clients.
func (s *Service) afterPatch(ctx context.Context, kind record.Kind, phone, id string) {
	var list cache.List
	var eventType string
	switch kind {
	case record.KindOwnReport:
		list, eventType = cache.ListOwnReports, sse.EventFound
	case record.KindSighting:
		list, eventType = cache.ListSightings, sse.EventResolved
	default:
		return
	}
	if phone != "" {
		if _, err := s.cache.SetStatus(ctx, phone, list, id); err != nil {
			s.logger.Warn("service: cache status update failed",
				slog.String("id", id),
				slog.String("error", err.Error()))
		}
	}
	s.events.PublishBoardEvent(sse.Event{Type: eventType, Phone: phone, Data: map[string]string{"id": id}})
}

// save writes a list to the cache. Failures never fail the lookup.
func (s *Service) save(ctx context.Context, phone string, list cache.List, records []record.Record) {
	if err := s.cache.Save(ctx, phone, list, records); err != nil {
		s.logger.Warn("service: cache save failed",
			slog.String("list", string(list)),
			slog.String("error", err.Error()))
	}
}

func lookupView(l board.Lookup) LookupView {
	return LookupView{
		Generation:      l.Generation,
		Phone:           l.Phone,
		OwnReports:      l.OwnReports,
		MatchCandidates: l.MatchCandidates,
		Groups:          record.GroupBySource(l.OwnReports, l.MatchCandidates),
	}
}

func sightingsView(v board.Sightings) SightingsView {
	return SightingsView{
		Generation:    v.Generation,
		Phone:         v.Phone,
		Sightings:     v.Sightings,
		ResolvedCount: record.ResolvedCount(v.Sightings),
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(sse.Event)           {}
func (nopPublisher) PublishBoardEvent(sse.Event) {}
