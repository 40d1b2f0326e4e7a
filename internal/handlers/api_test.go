package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"cohort-dashboard/internal/models"
	"cohort-dashboard/internal/services"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createTestAnalytics(t *testing.T) *services.Analytics {
	t.Helper()
	a := services.NewAnalytics(services.Options{CacheDir: t.TempDir(), Logger: testLogger()})
	price := decimal.RequireFromString("2.50")
	a.SetData([]models.Transaction{
		{CustomerID: "1", Country: "United Kingdom", InvoiceDate: day(2011, 1, 5), Quantity: 5, UnitPrice: price},
		{CustomerID: "1", Country: "United Kingdom", InvoiceDate: day(2011, 2, 10), Quantity: 3, UnitPrice: price},
		{CustomerID: "2", Country: "United Kingdom", InvoiceDate: day(2011, 1, 7), Quantity: 1, UnitPrice: price},
		{CustomerID: "3", Country: "France", InvoiceDate: day(2011, 3, 1), Quantity: 2, UnitPrice: price},
	})
	return a
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected content-type 'application/json', got %q", ct)
	}
	var env envelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	return env
}

func TestNewAPIHandlers(t *testing.T) {
	analytics := createTestAnalytics(t)
	handlers := NewAPIHandlers(analytics, testLogger())

	if handlers == nil {
		t.Fatal("NewAPIHandlers() returned nil")
	}
	if handlers.analytics != analytics {
		t.Error("NewAPIHandlers() should set analytics field")
	}
}

func TestAPIHandlers_HandleCountries(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(t), testLogger())

	w := httptest.NewRecorder()
	handlers.HandleCountries(w, httptest.NewRequest(http.MethodGet, "/api/countries", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if cc := w.Header().Get("Cache-Control"); cc != cacheControl {
		t.Errorf("expected cache-control %q, got %q", cacheControl, cc)
	}

	env := decodeEnvelope(t, w)
	var countries []string
	if err := json.Unmarshal(env.Data, &countries); err != nil {
		t.Fatalf("decode countries: %v", err)
	}
	if len(countries) != 2 || countries[0] != "United Kingdom" || countries[1] != "France" {
		t.Errorf("countries = %v, want [United Kingdom France]", countries)
	}
}

func TestAPIHandlers_HandleRetention(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(t), testLogger())

	w := httptest.NewRecorder()
	handlers.HandleRetention(w, httptest.NewRequest(http.MethodGet, "/api/retention?country=United+Kingdom", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	env := decodeEnvelope(t, w)
	if !env.Success {
		t.Fatal("expected success=true in response")
	}

	var m models.RetentionMatrix
	if err := json.Unmarshal(env.Data, &m); err != nil {
		t.Fatalf("decode matrix: %v", err)
	}
	if len(m.Cohorts) != 1 || !m.Cohorts[0].Equal(day(2011, 1, 1)) {
		t.Fatalf("cohorts = %v, want [2011-01-01]", m.Cohorts)
	}
	if len(m.Indexes) != 2 || m.Indexes[0] != 1 || m.Indexes[1] != 2 {
		t.Fatalf("indexes = %v, want [1 2]", m.Indexes)
	}
	if v := m.Values[0][0]; v == nil || *v != 1 {
		t.Errorf("baseline = %v, want 1", v)
	}
	if v := m.Values[0][1]; v == nil || *v != 0.5 {
		t.Errorf("month 2 retention = %v, want 0.5", v)
	}
}

func TestAPIHandlers_HandleRetention_UnknownCountry(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(t), testLogger())

	w := httptest.NewRecorder()
	handlers.HandleRetention(w, httptest.NewRequest(http.MethodGet, "/api/retention?country=Atlantis", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var m models.RetentionMatrix
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &m); err != nil {
		t.Fatalf("decode matrix: %v", err)
	}
	if !m.Empty() {
		t.Errorf("expected empty matrix, got %+v", m)
	}
}

func TestAPIHandlers_MissingCountry(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(t), testLogger())

	tests := []struct {
		name    string
		handler http.HandlerFunc
		path    string
	}{
		{"retention", handlers.HandleRetention, "/api/retention"},
		{"summary", handlers.HandleSummary, "/api/summary?country="},
		{"png", handlers.HandleRetentionPNG, "/api/retention.png"},
		{"xlsx", handlers.HandleRetentionXLSX, "/api/retention.xlsx?country=%20"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.handler(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
			}
			env := decodeEnvelope(t, w)
			if env.Success || env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
				t.Errorf("unexpected error envelope: %+v", env)
			}
		})
	}
}

func TestAPIHandlers_HandleSummary(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(t), testLogger())

	w := httptest.NewRecorder()
	handlers.HandleSummary(w, httptest.NewRequest(http.MethodGet, "/api/summary?country=United%20Kingdom", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var s models.CountrySummary
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &s); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if s.Customers != 2 || s.Transactions != 3 || s.Cohorts != 1 || s.Revenue != "22.50" {
		t.Errorf("unexpected summary: %+v", s)
	}
}

func TestAPIHandlers_HandleRetentionPNG(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(t), testLogger())

	w := httptest.NewRecorder()
	handlers.HandleRetentionPNG(w, httptest.NewRequest(http.MethodGet, "/api/retention.png?country=United+Kingdom", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected content-type image/png, got %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="retention-united-kingdom.png"` {
		t.Errorf("unexpected content-disposition %q", cd)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}
}

func TestAPIHandlers_HandleRetentionXLSX(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(t), testLogger())

	w := httptest.NewRecorder()
	handlers.HandleRetentionXLSX(w, httptest.NewRequest(http.MethodGet, "/api/retention.xlsx?country=France", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("unexpected content-type %q", ct)
	}

	f, err := excelize.OpenReader(w.Body)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	got, err := f.GetCellValue("Customers", "B2")
	if err != nil {
		t.Fatal(err)
	}
	if got != "1" {
		t.Errorf("France cohort size = %q, want 1", got)
	}
}

func TestAPIHandlers_HandleHealth(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(t), testLogger())

	w := httptest.NewRecorder()
	handlers.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var data map[string]any
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &data); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if status, ok := data["status"].(string); !ok || status != "healthy" {
		t.Errorf("expected status 'healthy', got %v", data["status"])
	}
	if timestamp, ok := data["timestamp"].(string); !ok {
		t.Error("expected timestamp")
	} else if _, err := time.Parse(time.RFC3339, timestamp); err != nil {
		t.Errorf("invalid timestamp format: %v", err)
	}
}

func TestAPIHandlers_HandleHealth_NoData(t *testing.T) {
	handlers := NewAPIHandlers(services.NewAnalytics(services.Options{Logger: testLogger()}), testLogger())

	w := httptest.NewRecorder()
	handlers.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
}

func TestAPIHandlers_HandleStats(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(t), testLogger())

	w := httptest.NewRecorder()
	handlers.HandleStats(w, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var stats map[string]any
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if n, ok := stats["record_count"].(float64); !ok || n != 4 {
		t.Errorf("record_count = %v, want 4", stats["record_count"])
	}
}

func TestExportName(t *testing.T) {
	tests := map[string]string{
		"United Kingdom":  "retention-united-kingdom.xlsx",
		"EIRE":            "retention-eire.xlsx",
		"Réunion":         "retention-r-union.xlsx",
		"Channel Islands": "retention-channel-islands.xlsx",
	}
	for country, want := range tests {
		if got := exportName(country, "xlsx"); got != want {
			t.Errorf("exportName(%q) = %q, want %q", country, got, want)
		}
	}
}
