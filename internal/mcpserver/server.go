// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes lookout tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/lookout/internal/apperr"
	"github.com/starford/lookout/internal/service"
	"github.com/starford/lookout/internal/submit"
)

const recordFormatURI = "lookout://record-format"

// Server wraps the MCP server with lookout tools.
type Server struct {
	mcp *server.MCPServer
	svc *service.Service
}

// New creates a new MCP server with all lookout tools registered.
func New(svc *service.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Lookout",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("lookup_by_phone",
		mcp.WithDescription("Find the missing reports filed from a phone number and the "+
			"sightings the backend scored as potential matches for them."),
		mcp.WithString("phone", mcp.Required(), mcp.Description("Contact phone number used when filing")),
	), s.lookupByPhone)

	s.mcp.AddTool(mcp.NewTool("list_my_sightings",
		mcp.WithDescription("List the sightings submitted from a phone number and how many are resolved."),
		mcp.WithString("phone", mcp.Required(), mcp.Description("Contact phone number used when submitting")),
	), s.listMySightings)

	s.mcp.AddTool(mcp.NewTool("get_cached_board",
		mcp.WithDescription("Return the last saved lookup and sightings for a phone without calling the backend."),
		mcp.WithString("phone", mcp.Required(), mcp.Description("Contact phone number")),
	), s.getCachedBoard)

	s.mcp.AddTool(mcp.NewTool("mark_report_found",
		mcp.WithDescription("Mark one of your own missing reports as found. The local list only "+
			"changes after the backend confirms."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Report id from lookup_by_phone")),
	), s.markReportFound)

	s.mcp.AddTool(mcp.NewTool("mark_sighting_resolved",
		mcp.WithDescription("Mark one of your submitted sightings as resolved."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Sighting id from list_my_sightings")),
	), s.markSightingResolved)

	s.mcp.AddTool(mcp.NewTool("submit_missing_report",
		mcp.WithDescription("File a missing person or pet report. Read the record format first via "+
			"the get_record_format tool or the "+recordFormatURI+" resource."),
		mcp.WithString("type", mcp.Description("pet or person (default pet)"), mcp.Enum("pet", "person")),
		mcp.WithString("full_name", mcp.Required(), mcp.Description("Name of the missing person or pet")),
		mcp.WithString("description", mcp.Required(), mcp.Description("Appearance and circumstances")),
		mcp.WithString("phone_number", mcp.Required(), mcp.Description("Contact phone number")),
		mcp.WithString("missing_since", mcp.Required(), mcp.Description("Date in YYYY-MM-DD format")),
		mcp.WithNumber("lat", mcp.Description("Last seen latitude")),
		mcp.WithNumber("lon", mcp.Description("Last seen longitude")),
		mcp.WithString("reward", mcp.Description("Optional reward")),
		mcp.WithString("photo", mcp.Description("photo_uri returned by add_photo, or a local path")),
		mcp.WithBoolean("use_latest_photo", mcp.Description("Attach the newest photo from the inbox when photo is empty")),
		mcp.WithBoolean("use_current_location", mcp.Description("Use the device location when lat/lon are omitted")),
	), s.submitMissingReport)

	s.mcp.AddTool(mcp.NewTool("submit_sighting",
		mcp.WithDescription("Report a sighting of a missing person or pet."),
		mcp.WithString("type", mcp.Description("pet or person (default pet)"), mcp.Enum("pet", "person")),
		mcp.WithString("description", mcp.Required(), mcp.Description("What was seen")),
		mcp.WithString("phone_number", mcp.Required(), mcp.Description("Contact phone number")),
		mcp.WithNumber("lat", mcp.Description("Sighting latitude")),
		mcp.WithNumber("lon", mcp.Description("Sighting longitude")),
		mcp.WithString("photo", mcp.Description("photo_uri returned by add_photo, or a local path")),
		mcp.WithBoolean("use_latest_photo", mcp.Description("Attach the newest photo from the inbox when photo is empty")),
		mcp.WithBoolean("use_current_location", mcp.Description("Use the device location when lat/lon are omitted")),
	), s.submitSighting)

	s.mcp.AddTool(mcp.NewTool("add_photo",
		mcp.WithDescription("Store a photo from an http(s) URL or a base64 data URI so it can be "+
			"attached to a report or sighting. Returns photo_uri."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:image/...;base64,... URI")),
		mcp.WithString("filename", mcp.Description("Optional file name (extension must match the image type)")),
	), s.addPhoto)

	s.mcp.AddTool(mcp.NewTool("list_photos",
		mcp.WithDescription("List stored photos, newest first."),
	), s.listPhotos)

	s.mcp.AddTool(mcp.NewTool("get_record_format",
		mcp.WithDescription("Returns the lookout record and form format. "+
			"Call this before submitting reports or sightings."),
	), s.getRecordFormat)

	s.mcp.AddResource(
		mcp.NewResource(recordFormatURI, "Record Format",
			mcp.WithResourceDescription("Fields of lookout records and the report/sighting forms."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRecordFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) lookupByPhone(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	phone, err := req.RequireString("phone")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.svc.Lookup(ctx, phone)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(v), nil
}

func (s *Server) listMySightings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	phone, err := req.RequireString("phone")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.svc.Sightings(ctx, phone)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(v), nil
}

func (s *Server) getCachedBoard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	phone, err := req.RequireString("phone")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	lv, sv, err := s.svc.Cached(ctx, phone)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{"lookup": lv, "sightings": sv}), nil
}

func (s *Server) markReportFound(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.svc.MarkFound(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(out), nil
}

func (s *Server) markSightingResolved(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.svc.MarkResolved(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(out), nil
}

func (s *Server) submitMissingReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r := service.ReportRequest{
		ReportForm: submit.ReportForm{
			Subject:      submit.Subject(req.GetString("type", "")),
			Name:         req.GetString("full_name", ""),
			Description:  req.GetString("description", ""),
			Phone:        req.GetString("phone_number", ""),
			Location:     locationArg(req),
			MissingSince: req.GetString("missing_since", ""),
			Reward:       req.GetString("reward", ""),
			Photo:        req.GetString("photo", ""),
		},
		UseLatestPhoto:     req.GetBool("use_latest_photo", false),
		UseCurrentLocation: req.GetBool("use_current_location", false),
	}
	res, err := s.svc.SubmitReport(ctx, r)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res), nil
}

func (s *Server) submitSighting(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r := service.SightingRequest{
		SightingForm: submit.SightingForm{
			Subject:     submit.Subject(req.GetString("type", "")),
			Description: req.GetString("description", ""),
			Phone:       req.GetString("phone_number", ""),
			Location:    locationArg(req),
			Photo:       req.GetString("photo", ""),
		},
		UseLatestPhoto:     req.GetBool("use_latest_photo", false),
		UseCurrentLocation: req.GetBool("use_current_location", false),
	}
	res, err := s.svc.SubmitSighting(ctx, r)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res), nil
}

func (s *Server) listPhotos(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	photos, err := s.svc.ListPhotos(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(photos), nil
}

func (s *Server) getRecordFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(RecordFormatContract), nil
}

func (s *Server) readRecordFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      recordFormatURI,
			MIMEType: "text/markdown",
			Text:     RecordFormatContract,
		},
	}, nil
}

// locationArg returns the lat/lon pair when both were given.
func locationArg(req mcp.CallToolRequest) *submit.Location {
	args := req.GetArguments()
	_, hasLat := args["lat"]
	_, hasLon := args["lon"]
	if !hasLat || !hasLon {
		return nil
	}
	return &submit.Location{Lat: req.GetFloat("lat", 0), Lon: req.GetFloat("lon", 0)}
}

// toolError reports err to the model. Validation failures list every field.
func toolError(err error) *mcp.CallToolResult {
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		return mcp.NewToolResultError(ve.Error())
	}
	return mcp.NewToolResultError(apperr.UserMessage(err))
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}
