package render

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"cohort-dashboard/internal/models"
)

// WriteTable prints m as a bordered terminal table with one row per cohort
// and a leading column of cohort sizes.
func WriteTable(w io.Writer, m *models.RetentionMatrix) error {
	if m.Empty() {
		_, err := fmt.Fprintf(w, "no retention data for %q\n", m.Country)
		return err
	}

	headers := []string{"cohort", "customers"}
	for _, idx := range m.Indexes {
		headers = append(headers, strconv.Itoa(idx))
	}

	rows := make([][]string, len(m.Cohorts))
	for r, month := range m.Cohorts {
		row := []string{month.Format(monthLabel), strconv.Itoa(m.CohortSize(r))}
		for _, v := range m.Values[r] {
			if v == nil {
				row = append(row, "")
				continue
			}
			row = append(row, Percent(*v))
		}
		rows[r] = row
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...)

	_, err := fmt.Fprintf(w, "Retention for %s\n%s\n", m.Country, t.Render())
	return err
}
