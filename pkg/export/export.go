package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"bankboard/pkg/models"
)

// OperationsHeader is the bank-dialect CSV header, identical to the
// one the loader expects so exports round-trip.
const OperationsHeader = "Date operation;Categorie;Sous categorie;Libelle operation;Debit;Credit"

// FilterFunc decides whether a record is written.
type FilterFunc[T any] func(T) bool

// RowFunc renders one record as CSV fields.
type RowFunc[T any] func(T) []string

// Create renders records as a comma-separated CSV with the given
// header, keeping only records the filter accepts. A nil filter keeps
// everything.
func Create[T any](header []string, records []T, row RowFunc[T], filter FilterFunc[T]) []byte {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	_ = cw.Write(header)
	for _, r := range records {
		if filter == nil || filter(r) {
			_ = cw.Write(row(r))
		}
	}
	cw.Flush()
	return buf.Bytes()
}

// WriteOperations writes operations in the bank dialect: `;` separator,
// comma decimals, negative amounts in the Debit column and positive
// ones in Credit. Zero amounts leave both columns empty.
func WriteOperations(w io.Writer, ops []models.Operation) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	if err := cw.Write(strings.Split(OperationsHeader, ";")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, op := range ops {
		var debit, credit string
		switch {
		case op.Amount.IsNegative():
			debit = commaDecimal(op.Amount)
		case op.Amount.IsPositive():
			credit = commaDecimal(op.Amount)
		}
		row := []string{
			op.Date.Format("02/01/2006"),
			op.Category,
			op.Subcategory,
			op.Label,
			debit,
			credit,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMonthlyMargins writes the monthly margin table in the `;`
// dialect with comma decimals.
func WriteMonthlyMargins(w io.Writer, margins []models.MonthlyMargin) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	if err := cw.Write([]string{"Mois", "Revenus", "Couts", "Marge", "Marge %"}); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, m := range margins {
		row := []string{
			m.Month,
			commaDecimal(m.Income),
			commaDecimal(m.Costs),
			commaDecimal(m.Margin),
			commaDecimal(m.MarginPct),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func commaDecimal(d decimal.Decimal) string {
	return strings.ReplaceAll(d.StringFixed(2), ".", ",")
}
