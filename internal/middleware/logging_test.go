package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// =============================================================================
// Request Logging Middleware Tests
// =============================================================================

func TestRequestLoggingMiddleware_LogsBasicInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	mw := NewRequestLoggingMiddleware(logger)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest("POST", "/api/reports", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rec := httptest.NewRecorder()

	mw.Handler(handler).ServeHTTP(rec, req)

	logOutput := buf.String()

	if !strings.Contains(logOutput, "POST") {
		t.Errorf("log should contain method, got: %s", logOutput)
	}
	if !strings.Contains(logOutput, "/api/reports") {
		t.Errorf("log should contain path, got: %s", logOutput)
	}
	if !strings.Contains(logOutput, "201") {
		t.Errorf("log should contain status code, got: %s", logOutput)
	}
	if !strings.Contains(logOutput, "duration") {
		t.Errorf("log should contain duration, got: %s", logOutput)
	}
}

func TestRequestLoggingMiddleware_ServerErrorsLogAtWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	mw := NewRequestLoggingMiddleware(logger)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	req := httptest.NewRequest("GET", "/api/reports", nil)
	rec := httptest.NewRecorder()

	mw.Handler(handler).ServeHTTP(rec, req)

	logOutput := buf.String()

	if !strings.Contains(logOutput, "level=WARN") {
		t.Errorf("5xx responses should log at warn, got: %s", logOutput)
	}
	if !strings.Contains(logOutput, "500") {
		t.Errorf("log should contain status code, got: %s", logOutput)
	}
}

func TestRequestLoggingMiddleware_SkipsNoisyPaths(t *testing.T) {
	paths := []string{"/health", "/metrics", "/files/abc123.jpg"}

	for _, path := range paths {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		mw := NewRequestLoggingMiddleware(logger)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()

		mw.Handler(handler).ServeHTTP(rec, req)

		if buf.Len() != 0 {
			t.Errorf("path %s should not be logged, got: %s", path, buf.String())
		}
	}
}

func TestRequestLoggingMiddleware_LogsClientIPFromForwardedFor(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	mw := NewRequestLoggingMiddleware(logger)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/reports", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec := httptest.NewRecorder()

	mw.Handler(handler).ServeHTTP(rec, req)

	if !strings.Contains(buf.String(), "203.0.113.7") {
		t.Errorf("log should contain the first forwarded address, got: %s", buf.String())
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		rawQuery string
		want     string
	}{
		{
			name:     "no query",
			path:     "/api/reports",
			rawQuery: "",
			want:     "/api/reports",
		},
		{
			name:     "ordinary params kept",
			path:     "/api/reports",
			rawQuery: "page=2&limit=10",
			want:     "/api/reports?page=2&limit=10",
		},
		{
			name:     "token redacted",
			path:     "/api/reports",
			rawQuery: "token=secret123&page=2",
			want:     "/api/reports?token=[REDACTED]&page=2",
		},
		{
			name:     "case insensitive",
			path:     "/api/reports",
			rawQuery: "API_KEY=abc",
			want:     "/api/reports?API_KEY=[REDACTED]",
		},
		{
			name:     "multiple sensitive params",
			path:     "/callback",
			rawQuery: "code=xyz&access_token=tok&state=1",
			want:     "/callback?code=[REDACTED]&access_token=[REDACTED]&state=1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizePath(tt.path, tt.rawQuery); got != tt.want {
				t.Errorf("sanitizePath(%q, %q) = %q, want %q", tt.path, tt.rawQuery, got, tt.want)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "remote addr fallback",
			remoteAddr: "10.0.0.1:54321",
			want:       "10.0.0.1:54321",
		},
		{
			name:       "x-real-ip",
			remoteAddr: "10.0.0.1:54321",
			headers:    map[string]string{"X-Real-IP": "203.0.113.7"},
			want:       "203.0.113.7",
		},
		{
			name:       "forwarded-for single",
			remoteAddr: "10.0.0.1:54321",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7"},
			want:       "203.0.113.7",
		},
		{
			name:       "forwarded-for chain uses first",
			remoteAddr: "10.0.0.1:54321",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 172.16.0.1, 10.0.0.1"},
			want:       "203.0.113.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
