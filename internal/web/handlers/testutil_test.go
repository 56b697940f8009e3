package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/route-attendance/internal/attendance"
	"github.com/kozaktomas/route-attendance/internal/config"
	"github.com/kozaktomas/route-attendance/internal/database"
	"github.com/kozaktomas/route-attendance/internal/database/mock"
)

// testEnv bundles a service over in-memory stores
type testEnv struct {
	routes     *mock.MockRouteStore
	templates  *mock.MockTemplateStore
	attendance *mock.MockAttendanceStore
	audit      *mock.MockAuditLog
	service    *attendance.Service
}

type stubExtractor struct {
	vec []float32
	err error
}

func (e stubExtractor) Extract(context.Context, []byte) ([]float32, error) {
	return e.vec, e.err
}

// newTestEnv creates a service with 4-dimensional templates and cosine matching
func newTestEnv(t *testing.T, extractor attendance.Extractor) *testEnv {
	t.Helper()
	env := &testEnv{
		routes:     mock.NewMockRouteStore(),
		templates:  mock.NewMockTemplateStore(4),
		attendance: mock.NewMockAttendanceStore(),
		audit:      mock.NewMockAuditLog(),
	}
	matcher, err := attendance.NewMatcher(config.MatchConfig{
		Metric: "cosine", Threshold: 0.6, Epsilon: 0.05, CandidateSrc: attendance.SourceScan,
	}, 4, env.templates, nil)
	if err != nil {
		t.Fatalf("NewMatcher() error: %v", err)
	}
	env.service = attendance.NewService(attendance.Deps{
		Routes:     env.routes,
		Templates:  env.templates,
		Attendance: env.attendance,
		Audit:      env.audit,
		Matcher:    matcher,
		Extractor:  extractor,
	})
	return env
}

// seed creates route R1 with identities A and B
func (env *testEnv) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if err := env.routes.CreateRoute(ctx, database.Route{ID: "R1", Name: "Route 1"}); err != nil {
		t.Fatalf("CreateRoute() error: %v", err)
	}
	for _, identity := range []database.Identity{
		{ID: "A", Name: "Alice", RouteID: "R1", Embedding: []float32{1, 0, 0, 0}},
		{ID: "B", Name: "Bob", RouteID: "R1", Embedding: []float32{0, 1, 0, 0}},
	} {
		if err := env.templates.Enroll(ctx, identity); err != nil {
			t.Fatalf("Enroll() error: %v", err)
		}
	}
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// jsonRequest creates a request with a JSON body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest creates a request with form fields and an "image" file
func multipartRequest(t *testing.T, path string, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() error: %v", err)
		}
	}
	if image != nil {
		part, err := writer.CreateFormFile("image", "probe.jpg")
		if err != nil {
			t.Fatalf("CreateFormFile() error: %v", err)
		}
		_, _ = part.Write(image)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}

var nopLogger = zap.NewNop()
