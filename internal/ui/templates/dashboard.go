// Package templates renders the dashboard page and the fragments the SSE
// endpoint patches into it. Components live in dashboard.templ; run
// `templ generate` after editing it.
package templates

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/a-h/templ"

	"cohort-dashboard/internal/models"
	"cohort-dashboard/internal/render"
)

const (
	datastarScript = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.6/bundles/datastar.js"
	monthLabel     = "2006-01"

	pngExport  = "/api/retention.png"
	xlsxExport = "/api/retention.xlsx"

	HeatmapID = "heatmap"
	SummaryID = "summary"
)

type DashboardData struct {
	Countries []string
	Selected  string
	Matrix    *models.RetentionMatrix
	Summary   models.CountrySummary
}

// Signals is the datastar signal set shared by the page and /sse/retention.
type Signals struct {
	Country string `json:"country"`
}

func signalsJSON(country string) (string, error) {
	b, err := json.Marshal(Signals{Country: country})
	if err != nil {
		return "", fmt.Errorf("marshal signals: %w", err)
	}
	return string(b), nil
}

func exportHref(path, country string) string {
	return path + "?country=" + url.QueryEscape(country)
}

func matrixCountry(m *models.RetentionMatrix) string {
	if m == nil {
		return ""
	}
	return m.Country
}

func cellStyle(v float64) templ.SafeCSS {
	return templ.SafeCSS(fmt.Sprintf("background:%s;color:%s;", render.CellColor(v), render.TextColor(v)))
}

func cellTitle(n, size int) string {
	return fmt.Sprintf("%d of %d customers", n, size)
}
