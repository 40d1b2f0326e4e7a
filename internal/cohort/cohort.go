// Package cohort turns a retail transaction log into customer acquisition
// cohorts and derives per-country retention matrices from them.
package cohort

import (
	"time"

	"cohort-dashboard/internal/models"
)

// MonthOf returns the first day of t's month.
func MonthOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthsBetween counts whole calendar months from cohort to invoice, plus one.
func MonthsBetween(cohort, invoice time.Time) int {
	years := invoice.Year() - cohort.Year()
	months := int(invoice.Month()) - int(cohort.Month())
	return years*12 + months + 1
}

// Assign places every transaction in its customer's cohort: the earliest
// invoice month seen for that CustomerID.
func Assign(txs []models.Transaction) []models.CohortRecord {
	first := make(map[string]time.Time)
	for _, tx := range txs {
		m := MonthOf(tx.InvoiceDate)
		if cur, ok := first[tx.CustomerID]; !ok || m.Before(cur) {
			first[tx.CustomerID] = m
		}
	}

	records := make([]models.CohortRecord, len(txs))
	for i, tx := range txs {
		invoiceMonth := MonthOf(tx.InvoiceDate)
		cohortMonth := first[tx.CustomerID]
		records[i] = models.CohortRecord{
			Transaction:  tx,
			InvoiceMonth: invoiceMonth,
			CohortMonth:  cohortMonth,
			CohortIndex:  MonthsBetween(cohortMonth, invoiceMonth),
		}
	}
	return records
}

// Countries lists the distinct countries in order of first appearance.
func Countries(records []models.CohortRecord) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		if _, ok := seen[r.Country]; ok {
			continue
		}
		seen[r.Country] = struct{}{}
		out = append(out, r.Country)
	}
	return out
}
