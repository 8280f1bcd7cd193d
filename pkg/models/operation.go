package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Operation is a normalized bank operation. Amount is signed:
// negative for expenses, positive for income.
type Operation struct {
	Date        time.Time
	Category    string
	Subcategory string
	Label       string
	Amount      decimal.Decimal
}

// Month returns the operation's month key in YYYY-MM form.
func (o Operation) Month() string {
	return MonthOf(o.Date)
}

// MonthOf formats a date as a YYYY-MM month key.
func MonthOf(t time.Time) string {
	return t.Format("2006-01")
}

// CategoryTotal is a per-category absolute total with its share of the
// grand total, in percent. Share is zero when the grand total is zero.
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Share    decimal.Decimal `json:"share"`
}

// Entry is a single generated income or cost line for margin analysis.
type Entry struct {
	Month    string          `json:"month"`
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// MonthlyMargin is the margin for one month. MarginPct is zero when
// Income is zero.
type MonthlyMargin struct {
	Month     string          `json:"month"`
	Income    decimal.Decimal `json:"income"`
	Costs     decimal.Decimal `json:"costs"`
	Margin    decimal.Decimal `json:"margin"`
	MarginPct decimal.Decimal `json:"margin_pct"`
}
