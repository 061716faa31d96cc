// Package backend is the HTTP boundary to the external reports backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/lookout/internal/apperr"
	"github.com/starford/lookout/internal/record"
)

// DefaultTimeout bounds every backend call. Expiry fails like any other
// network error; there is no automatic retry.
const DefaultTimeout = 10 * time.Second

const maxErrorBody = 64 << 10

// Form is a multipart submission body.
type Form interface {
	WriteMultipart(w *multipart.Writer) error
}

// Ack is the backend acknowledgement for a write.
type Ack struct {
	OK      bool   `json:"ok"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the reports backend.
type Client struct {
	base    *url.URL
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
}

// New creates a Client for the backend at opts.BaseURL.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("backend: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend: parse base url: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{base: base, timeout: opts.Timeout, http: opts.HTTPClient, logger: opts.Logger}, nil
}

// ReportsByPhone returns the caller's own missing reports.
func (c *Client) ReportsByPhone(ctx context.Context, phone string) ([]record.Document, error) {
	var resp struct {
		Reports []record.Document `json:"reports"`
	}
	if err := c.getJSON(ctx, "reports-by-phone", "/my-reports", phone, &resp); err != nil {
		return nil, err
	}
	return resp.Reports, nil
}

// MatchesByPhone returns scored candidates for the caller's own reports.
func (c *Client) MatchesByPhone(ctx context.Context, phone string) ([]record.Document, error) {
	var resp struct {
		Matches []record.Document `json:"matches"`
	}
	if err := c.getJSON(ctx, "matches-by-phone", "/potential-matches", phone, &resp); err != nil {
		return nil, err
	}
	return resp.Matches, nil
}

// SightingsByPhone returns the sightings the caller submitted.
func (c *Client) SightingsByPhone(ctx context.Context, phone string) ([]record.Document, error) {
	var resp struct {
		Searches []record.Document `json:"searches"`
	}
	if err := c.getJSON(ctx, "sightings-by-phone", "/my-searches", phone, &resp); err != nil {
		return nil, err
	}
	return resp.Searches, nil
}

// MarkReportFound flags an own report as found.
func (c *Client) MarkReportFound(ctx context.Context, id string) (Ack, error) {
	return c.patchFlag(ctx, "mark-report-found", "/my-reports/"+url.PathEscape(id)+"/found", "found")
}

// MarkSightingResolved flags a submitted sighting as resolved.
func (c *Client) MarkSightingResolved(ctx context.Context, id string) (Ack, error) {
	return c.patchFlag(ctx, "mark-sighting-resolved", "/my-searches/"+url.PathEscape(id)+"/resolved", "resolved")
}

// SubmitMissingReport posts a missing-person/pet report.
func (c *Client) SubmitMissingReport(ctx context.Context, form Form) (Ack, error) {
	return c.postMultipart(ctx, "submit-missing-report", "/report-missing", form)
}

// SubmitSighting posts a sighting.
func (c *Client) SubmitSighting(ctx context.Context, form Form) (Ack, error) {
	return c.postMultipart(ctx, "submit-sighting", "/report-sighting", form)
}

func (c *Client) getJSON(ctx context.Context, op, path, phone string, out any) error {
	u := c.endpoint(path)
	q := u.Query()
	q.Set("phone_number", phone)
	u.RawQuery = q.Encode()

	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return &apperr.NetworkError{Op: op, Err: err}
	}
	return c.do(ctx, op, req, out)
}

func (c *Client) patchFlag(ctx context.Context, op, path, flag string) (Ack, error) {
	body, _ := json.Marshal(map[string]bool{flag: true})
	req, err := http.NewRequest(http.MethodPatch, c.endpoint(path).String(), bytes.NewReader(body))
	if err != nil {
		return Ack{}, &apperr.NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	var raw map[string]any
	if err := c.do(ctx, op, req, &raw); err != nil {
		return Ack{}, err
	}
	return decodeAck(raw), nil
}

func (c *Client) postMultipart(ctx context.Context, op, path string, form Form) (Ack, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := form.WriteMultipart(mw); err != nil {
		return Ack{}, fmt.Errorf("backend: %s: encode form: %w", op, err)
	}
	if err := mw.Close(); err != nil {
		return Ack{}, fmt.Errorf("backend: %s: close form: %w", op, err)
	}

	req, err := http.NewRequest(http.MethodPost, c.endpoint(path).String(), &buf)
	if err != nil {
		return Ack{}, &apperr.NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var raw map[string]any
	if err := c.do(ctx, op, req, &raw); err != nil {
		return Ack{}, err
	}
	return decodeAck(raw), nil
}

func (c *Client) do(ctx context.Context, op string, req *http.Request, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqID := uuid.NewString()
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("backend: request failed",
			slog.String("op", op),
			slog.String("request_id", reqID),
			slog.String("error", err.Error()))
		return &apperr.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("backend: response",
		slog.String("op", op),
		slog.String("request_id", reqID),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &apperr.NetworkError{
			Op:      op,
			Status:  resp.StatusCode,
			Message: errorMessage(body, resp.StatusCode),
		}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &apperr.NetworkError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) endpoint(path string) *url.URL {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	return &u
}

// errorMessage extracts the backend's structured message: FastAPI "detail"
// (string or validation list) or a plain "error" field.
func errorMessage(body []byte, status int) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if len(payload.Detail) > 0 {
			var s string
			if json.Unmarshal(payload.Detail, &s) == nil && s != "" {
				return s
			}
			var items []struct {
				Msg string `json:"msg"`
			}
			if json.Unmarshal(payload.Detail, &items) == nil {
				msgs := make([]string, 0, len(items))
				for _, it := range items {
					if it.Msg != "" {
						msgs = append(msgs, it.Msg)
					}
				}
				if len(msgs) > 0 {
					return strings.Join(msgs, "; ")
				}
			}
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return http.StatusText(status)
}

func decodeAck(raw map[string]any) Ack {
	ack := Ack{OK: true}
	if v, ok := raw["ok"].(bool); ok {
		ack.OK = v
	}
	if id, err := record.ExtractID(raw["id"]); err == nil {
		ack.ID = id
	}
	if msg, ok := raw["message"].(string); ok {
		ack.Message = msg
	}
	return ack
}
