package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/agaseke/agaseke-backend/pkg/logger"
)

func bufferedLogger(buf *bytes.Buffer) *logger.Logger {
	return logger.New(logger.Options{ServiceName: "api-test", Level: zerolog.DebugLevel, Output: buf})
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", lines[len(lines)-1], err)
	}
	return entry
}

func TestRequestIDKeepsValidHeaderAndReplacesJunk(t *testing.T) {
	var buf bytes.Buffer
	handler := RequestID(bufferedLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set(RequestIDHeader, "req-12345678")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "req-12345678" {
		t.Fatalf("expected caller id to be kept, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set(RequestIDHeader, "bad id\nwith newline")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got == "" || strings.Contains(got, " ") {
		t.Fatalf("expected a generated id, got %q", got)
	}
}

func TestAccessLogUsesRoutePatternAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logg := bufferedLogger(&buf)
	r := chi.NewRouter()
	r.Use(RequestID(logg), AccessLog(logg))
	r.Post("/api/v1/purchases/{orderId}/cancel", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("nope"))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/purchases/AG-77/cancel", nil))

	entry := lastEntry(t, &buf)
	if entry["level"] != "warn" || entry["message"] != "request.rejected" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if entry["route"] != "/api/v1/purchases/{orderId}/cancel" {
		t.Fatalf("expected route pattern, got %v", entry["route"])
	}
	if entry["status"] != float64(http.StatusConflict) || entry["bytes"] != float64(4) {
		t.Fatalf("unexpected status/bytes %v/%v", entry["status"], entry["bytes"])
	}
	if entry["request_id"] == nil {
		t.Fatal("expected request id on access entry")
	}
}

func TestRecovererWritesEnvelope(t *testing.T) {
	var buf bytes.Buffer
	logg := bufferedLogger(&buf)
	handler := AccessLog(logg)(Recoverer(logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("settlement exploded")
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/agent/pickup/complete", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "settlement exploded") {
		t.Fatalf("panic value leaked to client: %s", rec.Body.String())
	}
	if entry := lastEntry(t, &buf); entry["message"] != "request.failed" {
		t.Fatalf("expected access log to record the failure, got %v", entry["message"])
	}
}

func TestRecovererReraisesAbort(t *testing.T) {
	handler := Recoverer(bufferedLogger(&bytes.Buffer{}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Fatalf("expected ErrAbortHandler to propagate, got %v", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
