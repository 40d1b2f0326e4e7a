package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"cohort-dashboard/internal/observability"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{NotFound("missing"), http.StatusNotFound},
		{RateLimit("slow down"), http.StatusTooManyRequests},
		{ServiceUnavailable("loading"), http.StatusServiceUnavailable},
		{Internal("oops"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			if tt.err.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", tt.err.StatusCode, tt.want)
			}
		})
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := stderrors.New("disk gone")
	err := InternalWrap(cause, "load failed")

	if !stderrors.Is(err, cause) {
		t.Error("wrapped error should unwrap to its cause")
	}
	if got := err.Error(); got != "INTERNAL_ERROR: load failed (caused by: disk gone)" {
		t.Errorf("Error() = %q", got)
	}
}

func TestWriteError_AppError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, discardLogger(), Validation("country is required").WithDetails("query parameter"), "req-1")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q", ct)
	}

	var resp struct {
		Success bool `json:"success"`
		Error   struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			Details   string `json:"details"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Success {
		t.Error("expected success=false")
	}
	if resp.Error.Code != "VALIDATION_ERROR" || resp.Error.RequestID != "req-1" || resp.Error.Details != "query parameter" {
		t.Errorf("unexpected error body: %+v", resp.Error)
	}
}

func TestWriteError_WrappedAppError(t *testing.T) {
	w := httptest.NewRecorder()
	err := fmt.Errorf("handler: %w", NotFound("no such export"))
	WriteError(w, discardLogger(), err, "")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestWriteError_PlainError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, discardLogger(), stderrors.New("boom"), "req-2")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestWriteSuccessWithHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessWithHeaders(w, []string{"UK"}, map[string]string{"Cache-Control": "public, max-age=300"})

	if cc := w.Header().Get("Cache-Control"); cc != "public, max-age=300" {
		t.Errorf("cache-control = %q", cc)
	}

	var resp SuccessResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success {
		t.Error("expected success=true")
	}
}

func TestWrite_UsesRequestIDFromContext(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/retention", nil)
	r = r.WithContext(observability.WithRequestID(r.Context(), "ctx-id"))
	w := httptest.NewRecorder()

	Write(w, r, discardLogger(), Validation("country is required"))

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.RequestID != "ctx-id" {
		t.Errorf("request_id = %q, want ctx-id", resp.Error.RequestID)
	}
}

func TestWriteError_DoesNotMutateSharedError(t *testing.T) {
	shared := ServiceUnavailable("no transaction data loaded")

	WriteError(httptest.NewRecorder(), discardLogger(), shared, "req-a")

	if shared.RequestID != "" {
		t.Errorf("shared error picked up request id %q", shared.RequestID)
	}
}
