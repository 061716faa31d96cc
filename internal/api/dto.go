package api

import (
	"github.com/starford/lookout/internal/capture"
	"github.com/starford/lookout/internal/mutate"
	"github.com/starford/lookout/internal/service"
)

// LookupView is the lookup screen (aliased from the domain layer).
type LookupView = service.LookupView

// SightingsView is the sightings screen (aliased from the domain layer).
type SightingsView = service.SightingsView

// ReportRequest is the request body for submitting a missing report.
type ReportRequest = service.ReportRequest

// SightingRequest is the request body for submitting a sighting.
type SightingRequest = service.SightingRequest

// SubmitResponse is returned after a successful submission.
type SubmitResponse = service.SubmitResult

// Photo is a stored photo.
type Photo = service.Photo

// DialResponse is the tel: link for a contact phone.
type DialResponse = capture.Dial

// BoardResponse is both screens as currently held.
type BoardResponse struct {
	Lookup    LookupView    `json:"lookup" validate:"required"`
	Sightings SightingsView `json:"sightings" validate:"required"`
	Cached    bool          `json:"cached" example:"false"`
}

// MutationResponse is returned after a confirmed mark-found or mark-resolved.
type MutationResponse = mutate.Outcome

// PhotoListResponse wraps stored photos.
type PhotoListResponse struct {
	Photos []Photo `json:"photos" validate:"required"`
	Total  int     `json:"total" example:"3" validate:"required"`
}
