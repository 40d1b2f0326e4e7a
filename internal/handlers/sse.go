package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starfederation/datastar-go/datastar"

	"cohort-dashboard/internal/services"
	"cohort-dashboard/internal/ui/templates"
)

type SSEHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewSSEHandlers(analytics *services.Analytics, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

// selectedCountry reads the country signal, falling back to ?country= and
// then to the first country in the dataset.
func (h *SSEHandlers) selectedCountry(r *http.Request) string {
	var signals templates.Signals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		h.logger.Warn("read signals", "error", err)
	}

	country := strings.TrimSpace(signals.Country)
	if country == "" {
		country = strings.TrimSpace(r.URL.Query().Get("country"))
	}
	if country == "" {
		if countries := h.analytics.Countries(); len(countries) > 0 {
			country = countries[0]
		}
	}
	return country
}

// HandleRetention patches the heatmap and summary fragments for the
// selected country and echoes the resolved country back as a signal.
func (h *SSEHandlers) HandleRetention(w http.ResponseWriter, r *http.Request) {
	country := h.selectedCountry(r)
	ctx := r.Context()

	sse := datastar.NewSSE(w, r)

	var heatmap strings.Builder
	if err := templates.Heatmap(h.analytics.Retention(ctx, country)).Render(ctx, &heatmap); err != nil {
		h.logger.Error("render heatmap", "country", country, "error", err)
		return
	}
	if err := sse.PatchElements(heatmap.String()); err != nil {
		h.logger.Warn("patch heatmap", "error", err)
		return
	}

	var panel strings.Builder
	if err := templates.Summary(h.analytics.Summary(country)).Render(ctx, &panel); err != nil {
		h.logger.Error("render summary", "country", country, "error", err)
		return
	}
	if err := sse.PatchElements(panel.String()); err != nil {
		h.logger.Warn("patch summary", "error", err)
		return
	}

	signals, err := json.Marshal(templates.Signals{Country: country})
	if err != nil {
		h.logger.Error("marshal signals", "error", err)
		return
	}
	if err := sse.PatchSignals(signals); err != nil {
		h.logger.Warn("patch signals", "error", err)
		return
	}

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
