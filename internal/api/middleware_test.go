package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCorsMiddleware(t *testing.T) {
	h := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("allows localhost origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://localhost/api/sessions", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
			t.Fatalf("expected origin echoed back, got %q", got)
		}
	})

	t.Run("ignores non-local origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://localhost/api/sessions", nil)
		req.Header.Set("Origin", "https://evil.example")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Fatalf("expected no CORS header for non-local origin, got %q", got)
		}
		if rr.Code != http.StatusNoContent {
			t.Fatalf("expected request still served, got %d", rr.Code)
		}
	})

	t.Run("short-circuits preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "http://localhost/api/sessions", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("expected 204 for OPTIONS, got %d", rr.Code)
		}
	})
}

func TestRequestBodyLimitMiddleware(t *testing.T) {
	var decoded string
	h := requestBodyLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 2)
		n, _ := r.Body.Read(buf)
		decoded = string(buf[:n])
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("{}"))
	req.ContentLength = 2
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if decoded != "{}" {
		t.Fatalf("expected body to pass through unmodified, got %q", decoded)
	}
}

func TestRequireJSONContentTypeMiddleware(t *testing.T) {
	h := requireJSONContentTypeMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("rejects non-json body on POST", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("plain"))
		req.ContentLength = 5
		req.Header.Set("Content-Type", "text/plain")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnsupportedMediaType {
			t.Fatalf("expected 415, got %d", rr.Code)
		}
	})

	t.Run("allows GET regardless of content type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("allows POST with json content type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{}`))
		req.ContentLength = 2
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})
}

func TestIsLocalOrigin(t *testing.T) {
	cases := map[string]bool{
		"http://localhost:3000": true,
		"http://127.0.0.1:8080": true,
		"https://example.com":   false,
		"not-a-url":             false,
		"":                      false,
		"ftp://localhost":       false,
	}
	for origin, want := range cases {
		if got := isLocalOrigin(origin); got != want {
			t.Errorf("isLocalOrigin(%q) = %v, want %v", origin, got, want)
		}
	}
}
