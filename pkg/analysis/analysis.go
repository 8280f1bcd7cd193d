package analysis

import (
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"

	"bankboard/pkg/models"
)

// DefaultQuantile is the default outlier-exclusion threshold.
const DefaultQuantile = 0.10

var hundred = decimal.NewFromInt(100)

// Options carries the filter state for one analysis run. It replaces the
// interactive session state of the dashboard: the same options always
// produce the same report.
//
// Filters apply in a fixed order: date range first, then expense
// selection with quantile outlier exclusion, then category and
// subcategory predicates. Moving the quantile after the category filter
// would change the threshold, so the order is part of the contract.
type Options struct {
	Start         time.Time
	End           time.Time
	Categories    []string
	Subcategories []string
	Quantile      float64
}

// Statistics are descriptive statistics over absolute expense values.
type Statistics struct {
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
	Mean  decimal.Decimal `json:"mean"`
	Min   decimal.Decimal `json:"min"`
	Max   decimal.Decimal `json:"max"`
}

// SubcategoryTotal is one bar segment of the stacked expense chart.
type SubcategoryTotal struct {
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory"`
	Total       decimal.Decimal `json:"total"`
}

// SummaryRow is one line of the displayable summary table.
type SummaryRow struct {
	Date        string          `json:"date"`
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory"`
	Label       string          `json:"label"`
	Total       decimal.Decimal `json:"total"`
}

// PivotRow is one category row of the category x month pivot.
type PivotRow struct {
	Category string            `json:"category"`
	Cells    []decimal.Decimal `json:"cells"`
	Total    decimal.Decimal   `json:"total"`
}

// Pivot is the category x month table of signed sums. Cells are
// zero-filled, so each column sums to that month's grand total.
type Pivot struct {
	Months []string   `json:"months"`
	Rows   []PivotRow `json:"rows"`
}

// Report is the full output of one analysis run.
type Report struct {
	Expenses       []models.Operation     `json:"-"`
	Excluded       int                    `json:"excluded"`
	Statistics     Statistics             `json:"statistics"`
	CategoryTotals []models.CategoryTotal `json:"category_totals"`
	Breakdown      []SubcategoryTotal     `json:"breakdown"`
	Pivot          Pivot                  `json:"pivot"`
	Summary        []SummaryRow           `json:"summary"`
}

// Analyzer runs the expense analysis pipeline.
type Analyzer struct {
	logger *log.Logger
}

func New(logger *log.Logger) *Analyzer {
	return &Analyzer{logger: logger}
}

// Run applies the filters in order and computes every aggregate of the
// report. Empty input yields a zeroed report, never an error.
func (a *Analyzer) Run(ops []models.Operation, opts Options) *Report {
	inRange := FilterByDate(ops, opts.Start, opts.End)

	expenses := Expenses(inRange)
	kept := ExcludeOutliers(expenses, opts.Quantile)
	excluded := len(expenses) - len(kept)

	kept = FilterByCategories(kept, opts.Categories)
	kept = FilterBySubcategories(kept, opts.Subcategories)

	a.logger.Info("expenses filtered",
		"kept", len(kept),
		"excluded", excluded,
		"quantile", opts.Quantile,
	)

	return &Report{
		Expenses:       kept,
		Excluded:       excluded,
		Statistics:     Stats(kept),
		CategoryTotals: CategoryTotals(kept),
		Breakdown:      BreakdownBySubcategory(kept),
		Pivot:          PivotByMonth(kept),
		Summary:        SummaryRows(kept),
	}
}

// FilterByDate keeps operations within [start, end]. A zero bound is open.
func FilterByDate(ops []models.Operation, start, end time.Time) []models.Operation {
	var out []models.Operation
	for _, op := range ops {
		if !start.IsZero() && op.Date.Before(start) {
			continue
		}
		if !end.IsZero() && op.Date.After(end) {
			continue
		}
		out = append(out, op)
	}
	return out
}

// Expenses keeps only negative amounts.
func Expenses(ops []models.Operation) []models.Operation {
	var out []models.Operation
	for _, op := range ops {
		if op.Amount.IsNegative() {
			out = append(out, op)
		}
	}
	return out
}

// ExcludeOutliers drops expenses whose amount falls below the q-th
// quantile of the expense amounts, and returns the survivors sorted by
// amount ascending. q <= 0 keeps everything, q >= 1 drops everything.
func ExcludeOutliers(expenses []models.Operation, q float64) []models.Operation {
	if len(expenses) == 0 || q >= 1 {
		return nil
	}
	sorted := make([]models.Operation, len(expenses))
	copy(sorted, expenses)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Amount.LessThan(sorted[j].Amount)
	})
	if q <= 0 {
		return sorted
	}

	amounts := make([]float64, len(sorted))
	for i, op := range sorted {
		amounts[i] = op.Amount.InexactFloat64()
	}
	threshold, err := stats.Percentile(amounts, q*100)
	if err != nil {
		return sorted
	}
	cutoff := decimal.NewFromFloat(threshold)

	var out []models.Operation
	for _, op := range sorted {
		if op.Amount.GreaterThanOrEqual(cutoff) {
			out = append(out, op)
		}
	}
	return out
}

// FilterByCategories keeps operations whose category is in the set. An
// empty set keeps everything.
func FilterByCategories(ops []models.Operation, categories []string) []models.Operation {
	return filterBy(ops, categories, func(op models.Operation) string { return op.Category })
}

// FilterBySubcategories keeps operations whose subcategory is in the
// set. An empty set keeps everything.
func FilterBySubcategories(ops []models.Operation, subcategories []string) []models.Operation {
	return filterBy(ops, subcategories, func(op models.Operation) string { return op.Subcategory })
}

func filterBy(ops []models.Operation, values []string, key func(models.Operation) string) []models.Operation {
	if len(values) == 0 {
		return ops
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	var out []models.Operation
	for _, op := range ops {
		if set[key(op)] {
			out = append(out, op)
		}
	}
	return out
}

// Stats computes count, total, mean, min and max over absolute expense
// values. All fields are zero on empty input.
func Stats(expenses []models.Operation) Statistics {
	s := Statistics{Count: len(expenses)}
	if len(expenses) == 0 {
		return s
	}
	first := expenses[0].Amount.Abs()
	s.Min, s.Max = first, first
	for _, op := range expenses {
		abs := op.Amount.Abs()
		s.Total = s.Total.Add(abs)
		if abs.LessThan(s.Min) {
			s.Min = abs
		}
		if abs.GreaterThan(s.Max) {
			s.Max = abs
		}
	}
	s.Mean = s.Total.Div(decimal.NewFromInt(int64(s.Count))).Round(2)
	return s
}

// CategoryTotals sums absolute expense values per category and computes
// each category's share of the grand total, sorted by total descending.
// Shares are zero when the grand total is zero.
func CategoryTotals(expenses []models.Operation) []models.CategoryTotal {
	sums := make(map[string]decimal.Decimal)
	var grand decimal.Decimal
	for _, op := range expenses {
		abs := op.Amount.Abs()
		sums[op.Category] = sums[op.Category].Add(abs)
		grand = grand.Add(abs)
	}

	totals := make([]models.CategoryTotal, 0, len(sums))
	for category, total := range sums {
		share := decimal.Zero
		if !grand.IsZero() {
			share = total.Div(grand).Mul(hundred).Round(2)
		}
		totals = append(totals, models.CategoryTotal{
			Category: category,
			Total:    total,
			Share:    share,
		})
	}
	sort.Slice(totals, func(i, j int) bool {
		if !totals[i].Total.Equal(totals[j].Total) {
			return totals[i].Total.GreaterThan(totals[j].Total)
		}
		return totals[i].Category < totals[j].Category
	})
	return totals
}

// BreakdownBySubcategory sums absolute expense values per (category,
// subcategory), the shape the stacked bar chart consumes.
func BreakdownBySubcategory(expenses []models.Operation) []SubcategoryTotal {
	type key struct{ category, subcategory string }
	sums := make(map[key]decimal.Decimal)
	for _, op := range expenses {
		k := key{op.Category, op.Subcategory}
		sums[k] = sums[k].Add(op.Amount.Abs())
	}

	out := make([]SubcategoryTotal, 0, len(sums))
	for k, total := range sums {
		out = append(out, SubcategoryTotal{
			Category:    k.category,
			Subcategory: k.subcategory,
			Total:       total,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Subcategory < out[j].Subcategory
	})
	return out
}

// PivotByMonth builds the category x month table of signed sums with a
// Total column, rows sorted by absolute total descending.
func PivotByMonth(expenses []models.Operation) Pivot {
	if len(expenses) == 0 {
		return Pivot{}
	}

	monthSet := make(map[string]bool)
	type key struct{ category, month string }
	cells := make(map[key]decimal.Decimal)
	rowTotals := make(map[string]decimal.Decimal)
	for _, op := range expenses {
		month := op.Month()
		monthSet[month] = true
		k := key{op.Category, month}
		cells[k] = cells[k].Add(op.Amount)
		rowTotals[op.Category] = rowTotals[op.Category].Add(op.Amount)
	}

	months := make([]string, 0, len(monthSet))
	for m := range monthSet {
		months = append(months, m)
	}
	sort.Strings(months)

	rows := make([]PivotRow, 0, len(rowTotals))
	for category, total := range rowTotals {
		row := PivotRow{Category: category, Total: total}
		for _, m := range months {
			row.Cells = append(row.Cells, cells[key{category, m}])
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].Total.Abs(), rows[j].Total.Abs()
		if !a.Equal(b) {
			return a.GreaterThan(b)
		}
		return rows[i].Category < rows[j].Category
	})

	return Pivot{Months: months, Rows: rows}
}

// SummaryRows groups expenses by (date, category, subcategory, label)
// and rounds the totals for display.
func SummaryRows(expenses []models.Operation) []SummaryRow {
	type key struct {
		date                         int64
		category, subcategory, label string
	}
	sums := make(map[key]models.Operation)
	for _, op := range expenses {
		k := key{op.Date.Unix(), op.Category, op.Subcategory, op.Label}
		if existing, ok := sums[k]; ok {
			existing.Amount = existing.Amount.Add(op.Amount)
			sums[k] = existing
		} else {
			sums[k] = op
		}
	}

	out := make([]SummaryRow, 0, len(sums))
	for _, op := range sums {
		out = append(out, SummaryRow{
			Date:        op.Date.Format("2006-01-02"),
			Category:    op.Category,
			Subcategory: op.Subcategory,
			Label:       op.Label,
			Total:       op.Amount.Round(2),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].Subcategory != out[j].Subcategory {
			return out[i].Subcategory < out[j].Subcategory
		}
		return out[i].Label < out[j].Label
	})
	return out
}
