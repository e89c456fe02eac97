package api

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	req := httptest.NewRequest("POST", "/x", strings.NewReader(`{"name":"ok"}`))
	var p payload
	if err := decodeJSON(req, &p); err != nil {
		t.Fatalf("decodeJSON returned error: %v", err)
	}
	if p.Name != "ok" {
		t.Fatalf("expected name=ok, got %q", p.Name)
	}
}

func TestWriteJSONAndError(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, 201, map[string]string{"a": "b"})
	if rr.Code != 201 {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %q", ct)
	}

	rr2 := httptest.NewRecorder()
	writeError(rr2, 400, "bad request")
	if !strings.Contains(rr2.Body.String(), "bad request") {
		t.Fatalf("expected body to contain error message, got %q", rr2.Body.String())
	}

	rr3 := httptest.NewRecorder()
	writeErrorDetail(rr3, 500, "failed", "underlying cause")
	if !strings.Contains(rr3.Body.String(), "underlying cause") {
		t.Fatalf("expected body to contain details, got %q", rr3.Body.String())
	}
}
