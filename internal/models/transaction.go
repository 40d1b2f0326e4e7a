package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one cleaned invoice line. Quantity and UnitPrice are
// strictly positive once the cleaner has accepted the row.
type Transaction struct {
	CustomerID  string
	Country     string
	InvoiceDate time.Time
	Quantity    int
	UnitPrice   decimal.Decimal
}

func (t Transaction) Revenue() decimal.Decimal {
	return t.UnitPrice.Mul(decimal.NewFromInt(int64(t.Quantity)))
}

// CohortRecord is a Transaction placed in its customer's acquisition cohort.
type CohortRecord struct {
	Transaction
	InvoiceMonth time.Time
	CohortMonth  time.Time
	CohortIndex  int
}

type RetentionMatrix struct {
	Country string      `json:"country"`
	Cohorts []time.Time `json:"cohorts"`
	Indexes []int       `json:"indexes"`
	// Values[row][col] is nil where the cohort has no activity at that index.
	Values [][]*float64 `json:"values"`
	Counts [][]int      `json:"counts"`
}

func (m *RetentionMatrix) Empty() bool {
	return m == nil || len(m.Cohorts) == 0 || len(m.Indexes) == 0
}

// CohortSize returns the baseline customer count of row i.
func (m *RetentionMatrix) CohortSize(i int) int {
	if i < 0 || i >= len(m.Counts) || len(m.Counts[i]) == 0 {
		return 0
	}
	return m.Counts[i][0]
}

type CountrySummary struct {
	Country      string `json:"country"`
	Customers    int    `json:"customers"`
	Transactions int    `json:"transactions"`
	Cohorts      int    `json:"cohorts"`
	Revenue      string `json:"revenue"`
}

type CleanReport struct {
	RawRows            int `json:"raw_rows"`
	DroppedMissing     int `json:"dropped_missing"`
	DroppedNonPositive int `json:"dropped_non_positive"`
	SkippedBadDates    int `json:"skipped_bad_dates"`
	KeptRows           int `json:"kept_rows"`
	Customers          int `json:"customers"`
	Countries          int `json:"countries"`
}
