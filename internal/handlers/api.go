package handlers

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"

	"cohort-dashboard/internal/errors"
	"cohort-dashboard/internal/render"
	"cohort-dashboard/internal/services"
)

const (
	cacheControl = "public, max-age=300"

	// PNG export size in centimetres.
	pngWidth  = 24
	pngHeight = 14
)

type APIHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewAPIHandlers(analytics *services.Analytics, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

func (h *APIHandlers) HandleCountries(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccessWithHeaders(w, h.analytics.Countries(), map[string]string{
		"Cache-Control": cacheControl,
	})
}

// HandleRetention serves the retention matrix for ?country=. An unknown
// country is not an error; it yields an empty matrix.
func (h *APIHandlers) HandleRetention(w http.ResponseWriter, r *http.Request) {
	country, err := countryParam(r)
	if err != nil {
		errors.Write(w, r, h.logger, err)
		return
	}

	m := h.analytics.Retention(r.Context(), country)

	errors.WriteSuccessWithHeaders(w, m, map[string]string{
		"Cache-Control": cacheControl,
	})
}

func (h *APIHandlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	country, err := countryParam(r)
	if err != nil {
		errors.Write(w, r, h.logger, err)
		return
	}

	errors.WriteSuccessWithHeaders(w, h.analytics.Summary(country), map[string]string{
		"Cache-Control": cacheControl,
	})
}

func (h *APIHandlers) HandleRetentionPNG(w http.ResponseWriter, r *http.Request) {
	country, err := countryParam(r)
	if err != nil {
		errors.Write(w, r, h.logger, err)
		return
	}

	var buf bytes.Buffer
	if err := render.WritePNG(&buf, h.analytics.Retention(r.Context(), country), pngWidth, pngHeight); err != nil {
		errors.Write(w, r, h.logger, errors.InternalWrap(err, "failed to render heatmap"))
		return
	}

	h.writeFile(w, &buf, "image/png", exportName(country, "png"))
}

func (h *APIHandlers) HandleRetentionXLSX(w http.ResponseWriter, r *http.Request) {
	country, err := countryParam(r)
	if err != nil {
		errors.Write(w, r, h.logger, err)
		return
	}

	var buf bytes.Buffer
	if err := render.WriteXLSX(&buf, h.analytics.Retention(r.Context(), country)); err != nil {
		errors.Write(w, r, h.logger, errors.InternalWrap(err, "failed to build workbook"))
		return
	}

	h.writeFile(w, &buf, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", exportName(country, "xlsx"))
}

// HandleHealth reports unavailable until a dataset with at least one record
// has been loaded.
func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	report := h.analytics.Report()
	if report.KeptRows == 0 {
		errors.Write(w, r, h.logger, errors.ServiceUnavailable("no transaction data loaded"))
		return
	}

	healthData := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
		"records":   report.KeptRows,
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccess(w, h.analytics.Stats())
}

func (h *APIHandlers) writeFile(w http.ResponseWriter, buf *bytes.Buffer, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Cache-Control", cacheControl)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("write export", "file", filename, "error", err)
	}
}

func countryParam(r *http.Request) (string, error) {
	country := strings.TrimSpace(r.URL.Query().Get("country"))
	if country == "" {
		return "", errors.Validation("country is required").WithDetails("set the country query parameter")
	}
	return country, nil
}

// exportName builds a download filename from a country name, keeping only
// ASCII letters and digits.
func exportName(country, ext string) string {
	slug := strings.Map(func(r rune) rune {
		r = unicode.ToLower(r)
		if ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') {
			return r
		}
		return '-'
	}, country)
	return fmt.Sprintf("retention-%s.%s", strings.Trim(slug, "-"), ext)
}
