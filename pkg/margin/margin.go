package margin

import (
	"sort"

	"github.com/shopspring/decimal"

	"bankboard/pkg/models"
)

var hundred = decimal.NewFromInt(100)

// Totals are the grand totals of one margin analysis.
type Totals struct {
	TotalIncome decimal.Decimal `json:"total_income"`
	TotalCosts  decimal.Decimal `json:"total_costs"`
	NetMargin   decimal.Decimal `json:"net_margin"`
}

// CalculateTotals sums income and cost entries and derives the net margin.
func CalculateTotals(incomes, costs []models.Entry) Totals {
	t := Totals{}
	for _, e := range incomes {
		t.TotalIncome = t.TotalIncome.Add(e.Amount)
	}
	for _, e := range costs {
		t.TotalCosts = t.TotalCosts.Add(e.Amount)
	}
	t.NetMargin = t.TotalIncome.Sub(t.TotalCosts)
	return t
}

// ByMonth merges monthly income and cost sums with an outer join on the
// month key and derives margin and margin percentage per month. A month
// present on only one side gets zero for the missing side, and the
// margin percentage of a zero-income month is zero, not an error.
func ByMonth(incomes, costs []models.Entry) []models.MonthlyMargin {
	incomeByMonth := sumByMonth(incomes)
	costsByMonth := sumByMonth(costs)

	monthSet := make(map[string]bool)
	for m := range incomeByMonth {
		monthSet[m] = true
	}
	for m := range costsByMonth {
		monthSet[m] = true
	}

	out := make([]models.MonthlyMargin, 0, len(monthSet))
	for month := range monthSet {
		income := incomeByMonth[month]
		cost := costsByMonth[month]
		m := models.MonthlyMargin{
			Month:  month,
			Income: income,
			Costs:  cost,
			Margin: income.Sub(cost),
		}
		if !income.IsZero() {
			m.MarginPct = m.Margin.Div(income).Mul(hundred).Round(2)
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// ByCategory returns per-category totals for incomes and costs.
func ByCategory(incomes, costs []models.Entry) (map[string]decimal.Decimal, map[string]decimal.Decimal) {
	return sumByCategory(incomes), sumByCategory(costs)
}

func sumByMonth(entries []models.Entry) map[string]decimal.Decimal {
	sums := make(map[string]decimal.Decimal)
	for _, e := range entries {
		sums[e.Month] = sums[e.Month].Add(e.Amount)
	}
	return sums
}

func sumByCategory(entries []models.Entry) map[string]decimal.Decimal {
	sums := make(map[string]decimal.Decimal)
	for _, e := range entries {
		sums[e.Category] = sums[e.Category].Add(e.Amount)
	}
	return sums
}
