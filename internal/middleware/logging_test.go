package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("test"))
	})

	wrapped := LoggingMiddleware(logger, nil)(handler)

	req := httptest.NewRequest("GET", "/v1/snapshots", nil)
	w := httptest.NewRecorder()

	wrapped.ServeHTTP(w, req)

	if w.Code != http.StatusTeapot {
		t.Errorf("expected status %d, got %d", http.StatusTeapot, w.Code)
	}

	line := buf.String()
	if !strings.Contains(line, `"status":418`) {
		t.Errorf("expected logged status 418, got %s", line)
	}
	if !strings.Contains(line, `"path":"/v1/snapshots"`) {
		t.Errorf("expected logged path, got %s", line)
	}
}

func TestResponseWriter(t *testing.T) {
	w := httptest.NewRecorder()
	rw := &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}

	rw.WriteHeader(http.StatusNotFound)
	if rw.statusCode != http.StatusNotFound {
		t.Errorf("expected captured status %d, got %d", http.StatusNotFound, rw.statusCode)
	}

	rw.Write([]byte("hello"))
	if rw.bytesWritten != 5 {
		t.Errorf("expected 5 bytes written, got %d", rw.bytesWritten)
	}
}

func TestRouteTemplate(t *testing.T) {
	router := mux.NewRouter()

	var got string
	router.HandleFunc("/v1/snapshots/{id}/report", func(w http.ResponseWriter, r *http.Request) {
		got = routeTemplate(r)
	})

	req := httptest.NewRequest("GET", "/v1/snapshots/abc123/report", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	if got != "/v1/snapshots/{id}/report" {
		t.Errorf("expected route template, got %s", got)
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	wrapped := SecurityHeadersMiddleware()(handler)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("expected nosniff, got %q", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("expected DENY, got %q", got)
	}
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS should only be set on TLS requests")
	}
}
