package render

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"cohort-dashboard/internal/models"
)

const (
	retentionSheet = "Retention"
	countsSheet    = "Customers"
	// Built-in number format 9 is "0%".
	percentNumFmt = 9
)

// WriteXLSX writes m as a workbook with the retention fractions on one
// sheet and the distinct customer counts on another. Gaps stay blank.
func WriteXLSX(w io.Writer, m *models.RetentionMatrix) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", retentionSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(countsSheet); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}

	percent, err := f.NewStyle(&excelize.Style{NumFmt: percentNumFmt})
	if err != nil {
		return fmt.Errorf("percent style: %w", err)
	}

	for _, sheet := range []string{retentionSheet, countsSheet} {
		if err := writeHeader(f, sheet, m); err != nil {
			return err
		}
	}

	for r, month := range m.Cohorts {
		row := r + 2
		for _, sheet := range []string{retentionSheet, countsSheet} {
			if err := setCell(f, sheet, 1, row, month.Format(monthLabel)); err != nil {
				return err
			}
		}
		for c := range m.Indexes {
			v := m.Values[r][c]
			if v == nil {
				continue
			}
			if err := setCell(f, retentionSheet, c+2, row, *v); err != nil {
				return err
			}
			if err := setCell(f, countsSheet, c+2, row, m.Counts[r][c]); err != nil {
				return err
			}
		}
	}

	if len(m.Cohorts) > 0 && len(m.Indexes) > 0 {
		first, _ := excelize.CoordinatesToCellName(2, 2)
		last, _ := excelize.CoordinatesToCellName(len(m.Indexes)+1, len(m.Cohorts)+1)
		if err := f.SetCellStyle(retentionSheet, first, last, percent); err != nil {
			return fmt.Errorf("style cells: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, m *models.RetentionMatrix) error {
	if err := setCell(f, sheet, 1, 1, "CohortMonth"); err != nil {
		return err
	}
	for c, idx := range m.Indexes {
		if err := setCell(f, sheet, c+2, 1, idx); err != nil {
			return err
		}
	}
	return nil
}

func setCell(f *excelize.File, sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
	}
	return nil
}
