package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/lookout/internal/apperr"
	"github.com/starford/lookout/internal/backend"
	"github.com/starford/lookout/internal/capture"
	"github.com/starford/lookout/internal/submit"
)

// ReportRequest is a missing report plus the device collaborators to use
// for the fields the user left empty.
type ReportRequest struct {
	submit.ReportForm
	UseLatestPhoto     bool `json:"use_latest_photo"`
	UseCurrentLocation bool `json:"use_current_location"`
}

// SightingRequest is a sighting plus collaborator flags.
type SightingRequest struct {
	submit.SightingForm
	UseLatestPhoto     bool `json:"use_latest_photo"`
	UseCurrentLocation bool `json:"use_current_location"`
}

// SubmitResult is the backend acknowledgement plus anything that was
// dropped along the way.
type SubmitResult struct {
	ID       string   `json:"id"`
	Message  string   `json:"message,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func (r *SubmitResult) warn(msg string) { r.Warnings = append(r.Warnings, msg) }

// SubmitReport validates and sends a missing report. The request is not
// modified, so a failed submission can be retried as is.
func (s *Service) SubmitReport(ctx context.Context, req ReportRequest) (SubmitResult, error) {
	var res SubmitResult
	form := req.ReportForm
	if req.UseLatestPhoto && form.Photo == "" {
		form.Photo = s.pickPhoto(&res)
	}
	if req.UseCurrentLocation && form.Location == nil {
		form.Location = s.locate(ctx, &res)
	}

	p, err := s.encoder.EncodeReport(form)
	if errors.Is(err, apperr.ErrPermissionDenied) {
		res.warn("photo permission denied; sent without photo")
		form.Photo = ""
		p, err = s.encoder.EncodeReport(form)
	}
	if err != nil {
		return SubmitResult{}, err
	}
	return s.send(ctx, p, res)
}

// SubmitSighting validates and sends a sighting.
func (s *Service) SubmitSighting(ctx context.Context, req SightingRequest) (SubmitResult, error) {
	var res SubmitResult
	form := req.SightingForm
	if req.UseLatestPhoto && form.Photo == "" {
		form.Photo = s.pickPhoto(&res)
	}
	if req.UseCurrentLocation && form.Location == nil {
		form.Location = s.locate(ctx, &res)
	}

	p, err := s.encoder.EncodeSighting(form)
	if errors.Is(err, apperr.ErrPermissionDenied) {
		res.warn("photo permission denied; sent without photo")
		form.Photo = ""
		p, err = s.encoder.EncodeSighting(form)
	}
	if err != nil {
		return SubmitResult{}, err
	}
	return s.send(ctx, p, res)
}

func (s *Service) send(ctx context.Context, p *submit.Payload, res SubmitResult) (SubmitResult, error) {
	var ack backend.Ack
	var err error
	switch p.Kind {
	case submit.PayloadReport:
		ack, err = s.backend.SubmitMissingReport(ctx, p)
	case submit.PayloadSighting:
		ack, err = s.backend.SubmitSighting(ctx, p)
	default:
		return SubmitResult{}, fmt.Errorf("service: unknown payload kind %q", p.Kind)
	}
	if err != nil {
		s.logger.Warn("service: submission failed",
			slog.String("kind", string(p.Kind)),
			slog.String("error", err.Error()))
		return SubmitResult{}, err
	}

	s.logger.Info("service: submitted",
		slog.String("kind", string(p.Kind)),
		slog.String("id", ack.ID),
		slog.Bool("photo", p.Photo != nil))
	res.ID = ack.ID
	res.Message = ack.Message
	return res, nil
}

func (s *Service) pickPhoto(res *SubmitResult) string {
	if s.picker == nil {
		res.warn("no photo source configured; sent without photo")
		return ""
	}
	p, err := s.picker.Latest()
	switch {
	case err == nil:
		return p
	case errors.Is(err, apperr.ErrPermissionDenied):
		res.warn("photo permission denied; sent without photo")
	case errors.Is(err, capture.ErrNoPhoto):
		res.warn("no photo available; sent without photo")
	default:
		s.logger.Warn("service: pick photo failed", slog.String("error", err.Error()))
		res.warn("photo unavailable; sent without photo")
	}
	return ""
}

func (s *Service) locate(ctx context.Context, res *SubmitResult) *submit.Location {
	c, err := s.locator.Locate(ctx)
	switch {
	case err == nil:
		return &submit.Location{Lat: c.Latitude, Lon: c.Longitude}
	case errors.Is(err, apperr.ErrPermissionDenied):
		res.warn("location permission denied")
	default:
		res.warn("current location unavailable")
	}
	return nil
}
