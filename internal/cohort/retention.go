package cohort

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"cohort-dashboard/internal/models"
)

// Retention computes the retention matrix of one country. Rows are cohort
// months, columns the cohort indexes present in the data, and each cell is
// the share of the row's index-1 customers active at that index. Only
// customers in the row's index-1 set are counted, so no cell exceeds 1.
//
// Cells without activity stay nil. A cohort with no index-1 customers in
// this country (its customers first bought elsewhere) has no baseline and
// is left out. The result is empty when nothing remains.
func Retention(records []models.CohortRecord, country string) *models.RetentionMatrix {
	type cell struct {
		month int
		index int
	}

	active := make(map[cell]map[string]struct{})
	for _, r := range records {
		if r.Country != country {
			continue
		}
		k := cell{month: monthKey(r.CohortMonth), index: r.CohortIndex}
		if active[k] == nil {
			active[k] = make(map[string]struct{})
		}
		active[k][r.CustomerID] = struct{}{}
	}

	counts := make(map[int]map[int]int)
	for k, customers := range active {
		base := active[cell{month: k.month, index: 1}]
		if base == nil {
			continue
		}
		n := 0
		for id := range customers {
			if _, ok := base[id]; ok {
				n++
			}
		}
		if n == 0 {
			continue
		}
		if counts[k.month] == nil {
			counts[k.month] = make(map[int]int)
		}
		counts[k.month][k.index] = n
	}

	m := &models.RetentionMatrix{Country: country}

	var months []int
	indexSet := make(map[int]struct{})
	for month, row := range counts {
		if row[1] == 0 {
			continue
		}
		months = append(months, month)
		for idx := range row {
			indexSet[idx] = struct{}{}
		}
	}
	if len(months) == 0 {
		return m
	}
	slices.Sort(months)

	m.Indexes = make([]int, 0, len(indexSet))
	for idx := range indexSet {
		m.Indexes = append(m.Indexes, idx)
	}
	slices.Sort(m.Indexes)

	m.Cohorts = make([]time.Time, len(months))
	m.Values = make([][]*float64, len(months))
	m.Counts = make([][]int, len(months))
	for i, month := range months {
		row := counts[month]
		baseline := float64(row[1])

		m.Cohorts[i] = monthFromKey(month)
		m.Values[i] = make([]*float64, len(m.Indexes))
		m.Counts[i] = make([]int, len(m.Indexes))
		for j, idx := range m.Indexes {
			n, ok := row[idx]
			if !ok {
				continue
			}
			frac := float64(n) / baseline
			m.Values[i][j] = &frac
			m.Counts[i][j] = n
		}
	}

	return m
}

// Summarize reports headline figures for one country.
func Summarize(records []models.CohortRecord, country string) models.CountrySummary {
	s := models.CountrySummary{Country: country}
	customers := make(map[string]struct{})
	cohorts := make(map[int]struct{})
	revenue := decimal.Zero

	for _, r := range records {
		if r.Country != country {
			continue
		}
		s.Transactions++
		customers[r.CustomerID] = struct{}{}
		cohorts[monthKey(r.CohortMonth)] = struct{}{}
		revenue = revenue.Add(r.Revenue())
	}

	s.Customers = len(customers)
	s.Cohorts = len(cohorts)
	s.Revenue = revenue.StringFixed(2)
	return s
}

func monthKey(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}

func monthFromKey(k int) time.Time {
	return time.Date(k/12, time.Month(k%12+1), 1, 0, 0, 0, 0, time.UTC)
}
