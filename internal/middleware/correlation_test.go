package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCorrelationID_Minted(t *testing.T) {
	handler := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := r.Context().Value(CorrelationKey).(string)
		if !ok || id == "" {
			t.Error("correlation id missing from context")
		}
	}))

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get("X-Correlation-ID") == "" {
		t.Error("header missing")
	}
}

func TestCorrelationID_ClientProvided(t *testing.T) {
	handler := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := GetCorrelationID(r.Context()); got != "client-id-42" {
			t.Errorf("expected client id to pass through, got %q", got)
		}
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Correlation-ID", "client-id-42")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-ID"); got != "client-id-42" {
		t.Errorf("expected echoed header, got %q", got)
	}
}

func TestGetCorrelationID_Missing(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	if got := GetCorrelationID(req.Context()); got != "unknown" {
		t.Errorf("expected fallback value, got %q", got)
	}
}
