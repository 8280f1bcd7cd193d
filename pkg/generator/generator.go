package generator

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"bankboard/pkg/models"
)

// CategorySpec bounds the generated amount for one category.
type CategorySpec struct {
	Name string  `yaml:"name"`
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
}

// Scenario drives fake-data generation for the margin dashboard.
// Trends are monthly growth factors: 0.02 means each month's amounts
// grow 2% over the first month's.
type Scenario struct {
	Months      int            `yaml:"months"`
	Seed        int64          `yaml:"seed"`
	IncomeTrend float64        `yaml:"income_trend"`
	CostTrend   float64        `yaml:"cost_trend"`
	Income      []CategorySpec `yaml:"income"`
	Costs       []CategorySpec `yaml:"costs"`
}

// Default is the built-in scenario: a year of data over five income and
// eight cost categories.
func Default() *Scenario {
	return &Scenario{
		Months:      12,
		Seed:        1,
		IncomeTrend: 0.02,
		CostTrend:   0.01,
		Income: []CategorySpec{
			{Name: "Product Sales", Min: 50000, Max: 80000},
			{Name: "Service Revenue", Min: 30000, Max: 50000},
			{Name: "Consulting", Min: 20000, Max: 40000},
			{Name: "Subscriptions", Min: 15000, Max: 25000},
			{Name: "Licensing", Min: 10000, Max: 20000},
		},
		Costs: []CategorySpec{
			{Name: "Salaries", Min: 40000, Max: 45000},
			{Name: "Office Rent", Min: 8000, Max: 8500},
			{Name: "Marketing", Min: 5000, Max: 15000},
			{Name: "Software & Tools", Min: 3000, Max: 6000},
			{Name: "Utilities", Min: 2000, Max: 3000},
			{Name: "Travel", Min: 1000, Max: 5000},
			{Name: "Supplies", Min: 1000, Max: 3000},
			{Name: "Insurance", Min: 2000, Max: 2500},
		},
	}
}

// Load reads a scenario from a YAML file. Zero-valued fields fall back
// to the defaults.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s := Default()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	if s.Months <= 0 {
		return nil, fmt.Errorf("scenario has no months")
	}
	if len(s.Income) == 0 && len(s.Costs) == 0 {
		return nil, fmt.Errorf("scenario has no categories")
	}
	for _, spec := range append(append([]CategorySpec{}, s.Income...), s.Costs...) {
		if spec.Max < spec.Min {
			return nil, fmt.Errorf("category %q: max below min", spec.Name)
		}
	}
	return s, nil
}

// Generate produces one income and one cost entry per category per
// month, for the s.Months months ending at ref. The same scenario and
// ref always produce the same data.
func (s *Scenario) Generate(ref time.Time) (incomes, costs []models.Entry) {
	r := rand.New(rand.NewSource(s.Seed))
	months := monthsEndingAt(ref, s.Months)

	for i, month := range months {
		trend := 1 + float64(i)*s.IncomeTrend
		for _, spec := range s.Income {
			incomes = append(incomes, entry(r, month, spec, trend))
		}
	}
	for i, month := range months {
		trend := 1 + float64(i)*s.CostTrend
		for _, spec := range s.Costs {
			costs = append(costs, entry(r, month, spec, trend))
		}
	}
	return incomes, costs
}

func entry(r *rand.Rand, month string, spec CategorySpec, trend float64) models.Entry {
	amount := (spec.Min + r.Float64()*(spec.Max-spec.Min)) * trend
	return models.Entry{
		Month:    month,
		Category: spec.Name,
		Amount:   decimal.NewFromFloat(amount).Round(2),
	}
}

func monthsEndingAt(ref time.Time, n int) []string {
	// Normalize to the first of the month so stepping back from a
	// month-end date cannot skip or duplicate a month.
	base := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
	months := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		months = append(months, models.MonthOf(base.AddDate(0, -i, 0)))
	}
	return months
}
