package cohort

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cohort-dashboard/internal/models"
)

func tx(customer, country string, invoice time.Time, qty int, price string) models.Transaction {
	return models.Transaction{
		CustomerID:  customer,
		Country:     country,
		InvoiceDate: invoice,
		Quantity:    qty,
		UnitPrice:   decimal.RequireFromString(price),
	}
}

func fixture() []models.CohortRecord {
	return Assign([]models.Transaction{
		// January cohort, UK: 4 customers.
		tx("a", "UK", date(2011, 1, 3), 1, "1.00"),
		tx("b", "UK", date(2011, 1, 9), 2, "2.50"),
		tx("c", "UK", date(2011, 1, 20), 1, "3.00"),
		tx("d", "UK", date(2011, 1, 28), 5, "0.85"),
		tx("a", "UK", date(2011, 2, 1), 1, "1.00"),
		tx("a", "UK", date(2011, 2, 14), 1, "1.00"),
		tx("b", "UK", date(2011, 2, 2), 1, "1.00"),
		tx("c", "UK", date(2011, 4, 2), 1, "1.00"),
		// February cohort, UK: 2 customers.
		tx("e", "UK", date(2011, 2, 5), 1, "4.20"),
		tx("f", "UK", date(2011, 2, 6), 3, "1.10"),
		tx("f", "UK", date(2011, 3, 6), 1, "1.10"),
		// France: one customer.
		tx("g", "France", date(2011, 3, 1), 1, "9.99"),
		tx("g", "France", date(2011, 5, 1), 1, "9.99"),
		// First bought in Germany, later in France only.
		tx("h", "Germany", date(2010, 12, 1), 1, "5.00"),
		tx("h", "France", date(2011, 3, 4), 1, "5.00"),
	})
}

func ptr(f float64) *float64 { return &f }

func TestRetention_UK(t *testing.T) {
	m := Retention(fixture(), "UK")

	want := &models.RetentionMatrix{
		Country: "UK",
		Cohorts: []time.Time{date(2011, 1, 1), date(2011, 2, 1)},
		Indexes: []int{1, 2, 4},
		Values: [][]*float64{
			{ptr(1), ptr(0.5), ptr(0.25)},
			{ptr(1), ptr(0.5), nil},
		},
		Counts: [][]int{
			{4, 2, 1},
			{2, 1, 0},
		},
	}

	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("Retention(UK) mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 4, m.CohortSize(0))
	assert.Equal(t, 2, m.CohortSize(1))
}

func TestRetention_ExampleScenario(t *testing.T) {
	records := Assign([]models.Transaction{
		tx("1", "UK", date(2011, 1, 5), 5, "2.0"),
		tx("1", "UK", date(2011, 2, 10), 3, "1.5"),
	})

	m := Retention(records, "UK")
	require.Equal(t, []int{1, 2}, m.Indexes)
	require.Len(t, m.Cohorts, 1)
	assert.Equal(t, date(2011, 1, 1), m.Cohorts[0])
	require.NotNil(t, m.Values[0][1])
	assert.Equal(t, 1.0, *m.Values[0][1])
}

func TestRetention_BaselineIsOne(t *testing.T) {
	records := fixture()
	for _, country := range Countries(records) {
		m := Retention(records, country)
		for i := range m.Cohorts {
			require.Equal(t, 1, m.Indexes[0], country)
			require.NotNil(t, m.Values[i][0], country)
			assert.Equal(t, 1.0, *m.Values[i][0], "%s row %d", country, i)
		}
	}
}

func TestRetention_DropsCohortsWithoutBaseline(t *testing.T) {
	m := Retention(fixture(), "France")

	// h's cohort month (Dec 2010) never has index 1 in France.
	assert.Equal(t, []time.Time{date(2011, 3, 1)}, m.Cohorts)
	assert.Equal(t, []int{1, 3}, m.Indexes)
}

func TestRetention_EmptySelection(t *testing.T) {
	records := fixture()

	tests := []struct {
		name    string
		country string
	}{
		{"unknown country", "Atlantis"},
		{"empty country", ""},
		{"no baseline at all", "Nowhere"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Retention(records, tt.country)
			assert.True(t, m.Empty())
			assert.Equal(t, tt.country, m.Country)
		})
	}

	onlyLater := Assign([]models.Transaction{
		tx("x", "Spain", date(2011, 1, 1), 1, "1"),
		tx("x", "Portugal", date(2011, 3, 1), 1, "1"),
	})
	assert.True(t, Retention(onlyLater, "Portugal").Empty())
	assert.True(t, Retention(nil, "UK").Empty())
}

func TestRetention_Idempotent(t *testing.T) {
	records := fixture()
	first := Retention(records, "UK")
	second := Retention(records, "UK")

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("recomputed matrix differs:\n%s", diff)
	}
}

func TestRetention_FractionsInRange(t *testing.T) {
	records := fixture()
	for _, country := range Countries(records) {
		m := Retention(records, country)
		for _, row := range m.Values {
			for _, v := range row {
				if v == nil {
					continue
				}
				assert.GreaterOrEqual(t, *v, 0.0)
				assert.LessOrEqual(t, *v, 1.0)
			}
		}
	}
}

func TestRetention_CountsOnlyBaselineCustomers(t *testing.T) {
	// x1 and x2 join the January cohort in France, then buy in the UK.
	records := Assign([]models.Transaction{
		tx("y", "UK", date(2011, 1, 4), 1, "1"),
		tx("x1", "France", date(2011, 1, 7), 1, "1"),
		tx("x2", "France", date(2011, 1, 8), 1, "1"),
		tx("x1", "UK", date(2011, 2, 2), 1, "1"),
		tx("x2", "UK", date(2011, 2, 3), 1, "1"),
	})

	m := Retention(records, "UK")
	assert.Equal(t, []int{1}, m.Indexes)
	require.Len(t, m.Values, 1)
	assert.Equal(t, 1.0, *m.Values[0][0])

	records = append(records, Assign([]models.Transaction{
		tx("y", "UK", date(2011, 1, 4), 1, "1"),
		tx("y", "UK", date(2011, 2, 9), 1, "1"),
	})...)

	m = Retention(records, "UK")
	require.Equal(t, []int{1, 2}, m.Indexes)
	require.NotNil(t, m.Values[0][1])
	assert.Equal(t, 1.0, *m.Values[0][1])
	assert.Equal(t, 1, m.Counts[0][1])
}

func TestCountries_FirstAppearanceOrder(t *testing.T) {
	assert.Equal(t, []string{"UK", "France", "Germany"}, Countries(fixture()))
	assert.Empty(t, Countries(nil))
}

func TestMonthsBetween(t *testing.T) {
	tests := []struct {
		cohort, invoice time.Time
		want            int
	}{
		{date(2011, 1, 1), date(2011, 1, 1), 1},
		{date(2011, 1, 1), date(2011, 2, 1), 2},
		{date(2010, 12, 1), date(2011, 1, 1), 2},
		{date(2010, 12, 1), date(2011, 12, 1), 13},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MonthsBetween(tt.cohort, tt.invoice))
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(fixture(), "UK")

	assert.Equal(t, "UK", s.Country)
	assert.Equal(t, 6, s.Customers)
	assert.Equal(t, 11, s.Transactions)
	assert.Equal(t, 2, s.Cohorts)
	// 1 + 5 + 3 + 4.25 + 1 + 1 + 1 + 1 + 4.2 + 3.3 + 1.1
	assert.Equal(t, "25.85", s.Revenue)

	empty := Summarize(fixture(), "Atlantis")
	assert.Zero(t, empty.Customers)
	assert.Equal(t, "0.00", empty.Revenue)
}
