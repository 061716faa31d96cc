package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lookout/internal/service"
	"github.com/starford/lookout/internal/storage"
)

const maxFormBytes = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *service.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Lookup handles GET /api/lookup.
//
//	@Summary		Look up own reports and match candidates by phone
//	@Tags			lookup
//	@Produce		json
//	@Param			phone	query		string	true	"Contact phone"
//	@Success		200		{object}	LookupView
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lookup [get]
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Lookup(r.Context(), r.URL.Query().Get("phone"))
	if err != nil {
		writeError(w, "lookup", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Sightings handles GET /api/sightings.
//
//	@Summary		List sightings submitted from a phone
//	@Tags			lookup
//	@Produce		json
//	@Param			phone	query		string	true	"Contact phone"
//	@Success		200		{object}	SightingsView
//	@Failure		422		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sightings [get]
func (h *Handler) Sightings(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Sightings(r.Context(), r.URL.Query().Get("phone"))
	if err != nil {
		writeError(w, "sightings", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Board handles GET /api/board. With a phone it serves the cached lists
// for that phone instead of what is on screen.
//
//	@Summary		Get the current or cached board
//	@Tags			lookup
//	@Produce		json
//	@Param			phone	query		string	false	"Serve the cached lists for this phone"
//	@Success		200		{object}	BoardResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/board [get]
func (h *Handler) Board(w http.ResponseWriter, r *http.Request) {
	if phone := r.URL.Query().Get("phone"); phone != "" {
		lv, sv, err := h.svc.Cached(r.Context(), phone)
		if err != nil {
			writeError(w, "cached board", err)
			return
		}
		writeJSON(w, http.StatusOK, BoardResponse{Lookup: lv, Sightings: sv, Cached: true})
		return
	}
	lv, sv := h.svc.Board()
	writeJSON(w, http.StatusOK, BoardResponse{Lookup: lv, Sightings: sv})
}

// MarkFound handles PATCH /api/reports/{id}/found.
//
//	@Summary		Mark an own report as found
//	@Tags			mutations
//	@Produce		json
//	@Param			id	path		string	true	"Report id"
//	@Success		200	{object}	MutationResponse
//	@Failure		422	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/reports/{id}/found [patch]
func (h *Handler) MarkFound(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.MarkFound(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "mark found", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// MarkResolved handles PATCH /api/sightings/{id}/resolved.
//
//	@Summary		Mark a sighting as resolved
//	@Tags			mutations
//	@Produce		json
//	@Param			id	path		string	true	"Sighting id"
//	@Success		200	{object}	MutationResponse
//	@Failure		422	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sightings/{id}/resolved [patch]
func (h *Handler) MarkResolved(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.MarkResolved(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "mark resolved", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// SubmitReport handles POST /api/reports.
//
//	@Summary		Submit a missing person or pet report
//	@Tags			submissions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ReportRequest	true	"Report to submit"
//	@Success		201		{object}	SubmitResponse
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/reports [post]
func (h *Handler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	var req service.ReportRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.svc.SubmitReport(r.Context(), req)
	if err != nil {
		writeError(w, "submit report", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// SubmitSighting handles POST /api/sightings.
//
//	@Summary		Submit a sighting
//	@Tags			submissions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SightingRequest	true	"Sighting to submit"
//	@Success		201		{object}	SubmitResponse
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sightings [post]
func (h *Handler) SubmitSighting(w http.ResponseWriter, r *http.Request) {
	var req service.SightingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.svc.SubmitSighting(r.Context(), req)
	if err != nil {
		writeError(w, "submit sighting", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// UploadPhoto handles POST /api/photos (multipart/form-data, field "file").
//
//	@Summary		Upload a photo to attach to a report or sighting
//	@Tags			photos
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Image file"
//	@Success		201		{object}	Photo
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/photos [post]
func (h *Handler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxPhotoBytes+maxFormBytes)

	if err := r.ParseMultipartForm(storage.MaxPhotoBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	p, err := h.svc.AddPhoto(r.Context(), header.Filename, data)
	if err != nil {
		writeError(w, "upload photo", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ListPhotos handles GET /api/photos.
//
//	@Summary		List stored photos, newest first
//	@Tags			photos
//	@Produce		json
//	@Success		200	{object}	PhotoListResponse
//	@Security		BearerAuth
//	@Router			/photos [get]
func (h *Handler) ListPhotos(w http.ResponseWriter, r *http.Request) {
	photos, err := h.svc.ListPhotos(r.Context())
	if err != nil {
		writeError(w, "list photos", err)
		return
	}
	writeJSON(w, http.StatusOK, PhotoListResponse{Photos: photos, Total: len(photos)})
}

// DeletePhoto handles DELETE /api/photos/{name}.
//
//	@Summary		Delete a stored photo
//	@Tags			photos
//	@Param			name	path	string	true	"Photo file name"
//	@Success		204
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/photos/{name} [delete]
func (h *Handler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeletePhoto(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeError(w, "delete photo", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Dial handles GET /api/dial.
//
//	@Summary		Build a tel: link for a contact phone
//	@Tags			lookup
//	@Produce		json
//	@Param			phone	query		string	true	"Contact phone"
//	@Success		200		{object}	DialResponse
//	@Router			/dial [get]
func (h *Handler) Dial(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Dial(r.URL.Query().Get("phone")))
}

// decodeBody reads a JSON request body, rejecting unknown fields. It writes
// the error response itself and reports whether decoding succeeded.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		msg := "invalid JSON body"
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			msg = "request body too large"
		} else if strings.HasPrefix(err.Error(), "json: unknown field") {
			msg = err.Error()
		}
		writeJSON(w, http.StatusBadRequest, errorBody(msg))
		return false
	}
	return true
}
