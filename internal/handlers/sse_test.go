package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestNewSSEHandlers(t *testing.T) {
	analytics := createTestAnalytics(t)
	logger := testLogger()

	handlers := NewSSEHandlers(analytics, logger)

	if handlers == nil {
		t.Fatal("NewSSEHandlers() returned nil")
	}
	if handlers.analytics != analytics {
		t.Error("NewSSEHandlers() should set analytics field")
	}
	if handlers.logger != logger {
		t.Error("NewSSEHandlers() should set logger field")
	}
}

func signalsRequest(signals string) *http.Request {
	return httptest.NewRequest(http.MethodGet, "/sse/retention?datastar="+url.QueryEscape(signals), nil)
}

func TestSSEHandlers_selectedCountry(t *testing.T) {
	handlers := NewSSEHandlers(createTestAnalytics(t), testLogger())

	tests := []struct {
		name string
		req  *http.Request
		want string
	}{
		{"signal", signalsRequest(`{"country":"France"}`), "France"},
		{"query fallback", httptest.NewRequest(http.MethodGet, "/sse/retention?country=France", nil), "France"},
		{"blank signal", signalsRequest(`{"country":"  "}`), "United Kingdom"},
		{"default", httptest.NewRequest(http.MethodGet, "/sse/retention", nil), "United Kingdom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := handlers.selectedCountry(tt.req); got != tt.want {
				t.Errorf("selectedCountry() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSSEHandlers_HandleRetention(t *testing.T) {
	handlers := NewSSEHandlers(createTestAnalytics(t), testLogger())

	w := httptest.NewRecorder()
	handlers.HandleRetention(w, signalsRequest(`{"country":"United Kingdom"}`))

	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("expected text/event-stream, got %q", ct)
	}

	body := w.Body.String()
	expected := []string{
		"datastar-patch-elements",
		`<div id="heatmap">`,
		"Retention for United Kingdom",
		"50%",
		`<div id="summary">`,
		"<dd>22.50</dd>",
		"datastar-patch-signals",
		`{"country":"United Kingdom"}`,
	}
	for _, content := range expected {
		if !strings.Contains(body, content) {
			t.Errorf("expected SSE body to contain %q", content)
		}
	}

	if strings.Index(body, `id="heatmap"`) > strings.Index(body, `id="summary"`) {
		t.Error("heatmap should be patched before the summary")
	}
	if strings.Contains(body, `"summary":`) {
		t.Error("summary figures are patched as markup, not signals")
	}
}

func TestSSEHandlers_HandleRetention_EmptySelection(t *testing.T) {
	handlers := NewSSEHandlers(createTestAnalytics(t), testLogger())

	w := httptest.NewRecorder()
	handlers.HandleRetention(w, signalsRequest(`{"country":"Atlantis"}`))

	body := w.Body.String()
	if !strings.Contains(body, "No retention data for Atlantis.") {
		t.Error("expected placeholder for a country with no data")
	}
	if strings.Contains(body, "<table") {
		t.Error("empty selection should not render a table")
	}
}
