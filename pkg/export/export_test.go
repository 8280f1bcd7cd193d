package export

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"bankboard/pkg/loader"
	"bankboard/pkg/models"
)

func op(date, category, subcategory, label, amount string) models.Operation {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return models.Operation{
		Date:        d,
		Category:    category,
		Subcategory: subcategory,
		Label:       label,
		Amount:      decimal.RequireFromString(amount),
	}
}

func TestWriteOperationsRoundTrip(t *testing.T) {
	ops := []models.Operation{
		op("2026-01-31", "Alimentation", "Restaurant", "UBER EATS", "-28.27"),
		op("2026-01-29", "Revenus", "Salaires", "VIR SEPA", "2953.15"),
		op("2026-01-15", "Divers", "Autres", "ANNULATION", "0"),
	}

	var buf bytes.Buffer
	if err := WriteOperations(&buf, ops); err != nil {
		t.Fatalf("WriteOperations failed: %v", err)
	}

	result, err := loader.New(log.New(io.Discard), true).Load(&buf)
	if err != nil {
		t.Fatalf("reloading exported CSV failed: %v", err)
	}
	if len(result.Operations) != len(ops) {
		t.Fatalf("Expected %d operations, got %d", len(ops), len(result.Operations))
	}

	// Loader output is sorted by category.
	byLabel := make(map[string]models.Operation)
	for _, o := range result.Operations {
		byLabel[o.Label] = o
	}
	for _, want := range ops {
		got, ok := byLabel[want.Label]
		if !ok {
			t.Errorf("Operation %q missing after round-trip", want.Label)
			continue
		}
		if !got.Amount.Equal(want.Amount) || !got.Date.Equal(want.Date) ||
			got.Category != want.Category || got.Subcategory != want.Subcategory {
			t.Errorf("Round-trip mismatch:\nExpected: %+v\nGot: %+v", want, got)
		}
	}
}

func TestWriteOperationsDialect(t *testing.T) {
	ops := []models.Operation{
		op("2026-01-31", "Alimentation", "Restaurant", "UBER EATS", "-28.27"),
	}

	var buf bytes.Buffer
	if err := WriteOperations(&buf, ops); err != nil {
		t.Fatalf("WriteOperations failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != OperationsHeader {
		t.Errorf("Unexpected header: %s", lines[0])
	}
	if lines[1] != "31/01/2026;Alimentation;Restaurant;UBER EATS;-28,27;" {
		t.Errorf("Unexpected row: %s", lines[1])
	}
}

func TestWriteMonthlyMargins(t *testing.T) {
	margins := []models.MonthlyMargin{
		{
			Month:     "2026-01",
			Income:    decimal.RequireFromString("1000"),
			Costs:     decimal.RequireFromString("400"),
			Margin:    decimal.RequireFromString("600"),
			MarginPct: decimal.RequireFromString("60"),
		},
	}

	var buf bytes.Buffer
	if err := WriteMonthlyMargins(&buf, margins); err != nil {
		t.Fatalf("WriteMonthlyMargins failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[1] != "2026-01;1000,00;400,00;600,00;60,00" {
		t.Errorf("Unexpected row: %s", lines[1])
	}
}

func TestCreateAppliesFilter(t *testing.T) {
	records := []string{"keep", "drop", "keep"}
	out := Create(
		[]string{"value"},
		records,
		func(s string) []string { return []string{s} },
		func(s string) bool { return s == "keep" },
	)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header and 2 rows, got %v", lines)
	}
	if lines[1] != "keep" || lines[2] != "keep" {
		t.Errorf("Filter not applied: %v", lines)
	}
}

func TestCreateNilFilterKeepsEverything(t *testing.T) {
	out := Create([]string{"value"}, []string{"a", "b"}, func(s string) []string { return []string{s} }, nil)
	if got := strings.Count(string(out), "\n"); got != 3 {
		t.Errorf("Expected 3 lines, got %d", got)
	}
}
