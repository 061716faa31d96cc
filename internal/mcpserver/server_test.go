package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/lookout/internal/backend"
	"github.com/starford/lookout/internal/record"
	"github.com/starford/lookout/internal/service"
	"github.com/starford/lookout/internal/testutil"
)

var jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")

func testServer(t *testing.T) (*Server, *testutil.FakeBackend) {
	t.Helper()

	fb := testutil.NewFakeBackend(t)
	client, err := backend.New(backend.Options{BaseURL: fb.URL(), Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	_, photos := testutil.TestPhotoDir(t)

	svc := service.New(service.Options{
		Backend: client,
		Cache:   testutil.TestCache(t),
		Photos:  photos,
	})
	return New(svc), fb
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handlers are
	// called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "lookup_by_phone":
		result, err = srv.lookupByPhone(ctx, req)
	case "list_my_sightings":
		result, err = srv.listMySightings(ctx, req)
	case "get_cached_board":
		result, err = srv.getCachedBoard(ctx, req)
	case "mark_report_found":
		result, err = srv.markReportFound(ctx, req)
	case "mark_sighting_resolved":
		result, err = srv.markSightingResolved(ctx, req)
	case "submit_missing_report":
		result, err = srv.submitMissingReport(ctx, req)
	case "submit_sighting":
		result, err = srv.submitSighting(ctx, req)
	case "add_photo":
		result, err = srv.addPhoto(ctx, req)
	case "list_photos":
		result, err = srv.listPhotos(ctx, req)
	case "get_record_format":
		result, err = srv.getRecordFormat(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestLookupByPhone(t *testing.T) {
	srv, fb := testServer(t)
	fb.SetReports("555", record.Document{"_id": "r1", "name": "Max"})
	fb.SetMatches("555", record.Document{"_id": "m1", "combined_score": 70, "source_report_id": "r1"})

	r := callTool(t, srv, "lookup_by_phone", map[string]interface{}{"phone": "555"})
	if r.IsError {
		t.Fatalf("lookup error: %s", resultText(r))
	}
	var v service.LookupView
	if err := json.Unmarshal([]byte(resultText(r)), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(v.OwnReports) != 1 || len(v.MatchCandidates) != 1 || len(v.Groups) != 1 {
		t.Errorf("view = %+v", v)
	}
}

func TestLookupByPhone_MissingArgument(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "lookup_by_phone", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error for missing phone")
	}
}

func TestMarkReportFound(t *testing.T) {
	srv, fb := testServer(t)
	fb.SetReports("555", record.Document{"_id": "r1"})
	callTool(t, srv, "lookup_by_phone", map[string]interface{}{"phone": "555"})

	r := callTool(t, srv, "mark_report_found", map[string]interface{}{"id": "r1"})
	if r.IsError {
		t.Fatalf("mark found error: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"applied": true`) {
		t.Errorf("result = %s", resultText(r))
	}

	r = callTool(t, srv, "get_cached_board", map[string]interface{}{"phone": "555"})
	if !strings.Contains(resultText(r), `"status": true`) {
		t.Errorf("cached board not updated: %s", resultText(r))
	}
}

func TestMarkSightingResolved_BackendDown(t *testing.T) {
	srv, fb := testServer(t)
	fb.Fail("/my-searches/s1/resolved", 503)

	r := callTool(t, srv, "mark_sighting_resolved", map[string]interface{}{"id": "s1"})
	if !r.IsError || resultText(r) != "backend unavailable" {
		t.Errorf("result = %q (error %v)", resultText(r), r.IsError)
	}
}

func TestSubmitMissingReport_ListsAllProblems(t *testing.T) {
	srv, fb := testServer(t)

	r := callTool(t, srv, "submit_missing_report", map[string]interface{}{
		"full_name": "Max",
	})
	if !r.IsError {
		t.Fatal("expected validation error")
	}
	text := resultText(r)
	for _, f := range []string{"description", "phone_number", "location", "missing_since"} {
		if !strings.Contains(text, f) {
			t.Errorf("error %q does not mention %s", text, f)
		}
	}
	if fb.Calls("/report-missing") != 0 {
		t.Error("invalid report reached the backend")
	}
}

func TestSubmitSighting(t *testing.T) {
	srv, fb := testServer(t)

	r := callTool(t, srv, "submit_sighting", map[string]interface{}{
		"type":         "pet",
		"description":  "small white dog",
		"phone_number": "555",
		"lat":          37.5,
		"lon":          -122.25,
	})
	if r.IsError {
		t.Fatalf("submit error: %s", resultText(r))
	}
	subs := fb.Submissions()
	if len(subs) != 1 || subs[0].Fields["type"] != "0" || subs[0].Fields["lat"] != "37.5" {
		t.Errorf("submissions = %+v", subs)
	}
}

func TestAddPhotoDataURI(t *testing.T) {
	srv, fb := testServer(t)
	uri := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegBytes)

	r := callTool(t, srv, "add_photo", map[string]interface{}{"url": uri, "filename": "dog.jpg"})
	if r.IsError {
		t.Fatalf("add_photo error: %s", resultText(r))
	}
	var p service.Photo
	_ = json.Unmarshal([]byte(resultText(r)), &p)
	if p.Name != "dog.jpg" || !strings.HasPrefix(p.URI, "file://") {
		t.Fatalf("photo = %+v", p)
	}

	r = callTool(t, srv, "submit_sighting", map[string]interface{}{
		"description":  "dog",
		"phone_number": "555",
		"lat":          1.0,
		"lon":          1.0,
		"photo":        p.URI,
	})
	if r.IsError {
		t.Fatalf("submit error: %s", resultText(r))
	}
	if got := fb.Submissions()[0].FileName; got != "dog.jpg" {
		t.Errorf("photo part = %q, want dog.jpg", got)
	}

	r = callTool(t, srv, "list_photos", map[string]interface{}{})
	if !strings.Contains(resultText(r), "dog.jpg") {
		t.Errorf("list_photos = %s", resultText(r))
	}
}

func TestAddPhoto_GeneratedName(t *testing.T) {
	srv, _ := testServer(t)
	uri := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegBytes)

	r := callTool(t, srv, "add_photo", map[string]interface{}{"url": uri})
	var p service.Photo
	_ = json.Unmarshal([]byte(resultText(r)), &p)
	if !strings.HasSuffix(p.Name, ".jpg") {
		t.Errorf("name = %q, want .jpg suffix", p.Name)
	}
}

func TestAddPhoto_Rejects(t *testing.T) {
	srv, _ := testServer(t)
	cases := map[string]string{
		"wrong content": "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("not a png")),
		"not base64":    "data:image/png,abc",
		"unsupported":   "data:application/pdf;base64,JVBERi0=",
		"loopback":      "http://127.0.0.1/cat.jpg",
		"scheme":        "ftp://example.com/cat.jpg",
	}
	for name, uri := range cases {
		r := callTool(t, srv, "add_photo", map[string]interface{}{"url": uri})
		if !r.IsError {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestCheckBlockedHost(t *testing.T) {
	cases := []struct {
		host    string
		blocked bool
	}{
		{"127.0.0.1", true},
		{"::1", true},
		{"localhost", true},
		{"10.0.0.1", true},
		{"172.16.0.5", true},
		{"192.168.1.10", true},
		{"169.254.1.1", true},
		{"169.254.169.254", true},
		{"0.0.0.0", true},
		{"::", true},
		{"fd00::1", true},
		{"fe80::1", true},
		{"::ffff:10.0.0.1", true},
		{"224.0.0.1", true},
		{"metadata.google.internal", true},
		{"", true},
		{"8.8.8.8", false},
		{"2606:4700:4700::1111", false},
		{"93.184.216.34", false},
	}
	for _, c := range cases {
		err := checkBlockedHost(context.Background(), c.host)
		if (err != nil) != c.blocked {
			t.Errorf("checkBlockedHost(%q) = %v, want blocked=%v", c.host, err, c.blocked)
		}
	}
}

func TestDialControl(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:80":     true,
		"10.1.2.3:443":     true,
		"[fe80::1]:80":     true,
		"not-an-address":   true,
		"8.8.8.8:443":      false,
		"[2606:4700::]:80": false,
	}
	for addr, blocked := range cases {
		err := dialControl("tcp", addr, nil)
		if (err != nil) != blocked {
			t.Errorf("dialControl(%q) = %v, want blocked=%v", addr, err, blocked)
		}
	}
}

func TestFetchClient_RefusesLoopbackAtDial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(jpegBytes)
	}))
	defer srv.Close()

	// The pre-check is skipped here; the dialer alone must refuse.
	resp, err := newFetchClient().Get(srv.URL)
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected dial to loopback to be refused")
	}
	if !strings.Contains(err.Error(), "blocked dial") {
		t.Errorf("err = %v, want blocked dial", err)
	}
}

func TestFilenameFromURL(t *testing.T) {
	cases := map[string]string{
		"https://example.com/img/cat.png?x=1": "cat.png",
		"https://example.com/img/":            "",
		"https://example.com/download":        "",
		"data:image/png;base64,AAAA":          "",
	}
	for in, want := range cases {
		if got := filenameFromURL(in); got != want {
			t.Errorf("filenameFromURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetRecordFormat(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_record_format", map[string]interface{}{})
	if resultText(r) != RecordFormatContract {
		t.Error("record format mismatch")
	}

	contents, err := srv.readRecordFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.URI != recordFormatURI {
		t.Errorf("resource contents = %+v", contents[0])
	}
}
