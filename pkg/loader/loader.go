package loader

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"bankboard/pkg/models"
)

// RequiredColumns is the expected CSV header, in order.
var RequiredColumns = []string{
	"Date operation",
	"Categorie",
	"Sous categorie",
	"Libelle operation",
	"Debit",
	"Credit",
}

const (
	colDate = iota
	colCategory
	colSubcategory
	colLabel
	colDebit
	colCredit
	numColumns
)

const dateLayout = "02/01/2006"

// SchemaError reports a header that does not match RequiredColumns.
type SchemaError struct {
	Missing       []string
	Extra         []string
	OrderMismatch bool
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing columns: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, fmt.Sprintf("unexpected columns: %s", strings.Join(e.Extra, ", ")))
	}
	if e.OrderMismatch {
		parts = append(parts, "column order does not match the expected schema")
	}
	if len(parts) == 0 {
		return "invalid CSV schema"
	}
	return "invalid CSV schema: " + strings.Join(parts, "; ")
}

// Result holds the normalized operations of one load. Skipped counts the
// rows dropped in lenient mode because of bad dates or amounts.
type Result struct {
	Operations []models.Operation
	Skipped    int
}

// Loader reads semicolon-separated, comma-decimal bank CSV exports.
type Loader struct {
	logger *log.Logger
	strict bool
}

// New creates a Loader. In strict mode the first bad row fails the whole
// load; otherwise bad rows are skipped and counted.
func New(logger *log.Logger, strict bool) *Loader {
	return &Loader{
		logger: logger,
		strict: strict,
	}
}

// LoadFile loads operations from a CSV file on disk.
func (l *Loader) LoadFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening operations file: %w", err)
	}
	defer f.Close()
	return l.Load(f)
}

// LoadBytes loads operations from raw CSV bytes, as received from an upload.
func (l *Loader) LoadBytes(data []byte) (*Result, error) {
	return l.Load(bytes.NewReader(data))
}

// Load reads, validates and normalizes a full CSV stream.
func (l *Loader) Load(r io.Reader) (*Result, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file: no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if err := validateHeader(header); err != nil {
		return nil, err
	}

	result := &Result{}
	groups := make(map[groupKey]models.Operation)
	row := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			if l.strict {
				return nil, fmt.Errorf("row %d: %w", row, err)
			}
			l.logger.Warn("skipping malformed row", "row", row, "error", err)
			result.Skipped++
			continue
		}

		op, err := parseRow(record)
		if err != nil {
			if l.strict {
				return nil, fmt.Errorf("row %d: %w", row, err)
			}
			l.logger.Debug("skipping row", "row", row, "error", err)
			result.Skipped++
			continue
		}

		key := groupKey{op.Date.Unix(), op.Category, op.Subcategory, op.Label}
		if existing, ok := groups[key]; ok {
			existing.Amount = existing.Amount.Add(op.Amount)
			groups[key] = existing
		} else {
			groups[key] = op
		}
	}

	for _, op := range groups {
		result.Operations = append(result.Operations, op)
	}
	sortOperations(result.Operations)

	l.logger.Info("data loaded", "operations", len(result.Operations), "skipped", result.Skipped)
	return result, nil
}

type groupKey struct {
	date        int64
	category    string
	subcategory string
	label       string
}

// ValidateSchema checks only the header of a CSV stream against the
// expected columns, without reading any rows.
func ValidateSchema(r io.Reader) error {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return fmt.Errorf("empty file: no header row")
	}
	if err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	return validateHeader(header)
}

func validateHeader(header []string) error {
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	if equalColumns(header, RequiredColumns) {
		return nil
	}

	schemaErr := &SchemaError{}
	got := make(map[string]bool, len(header))
	for _, c := range header {
		got[c] = true
	}
	want := make(map[string]bool, len(RequiredColumns))
	for _, c := range RequiredColumns {
		want[c] = true
		if !got[c] {
			schemaErr.Missing = append(schemaErr.Missing, c)
		}
	}
	for _, c := range header {
		if !want[c] {
			schemaErr.Extra = append(schemaErr.Extra, c)
		}
	}
	sort.Strings(schemaErr.Missing)
	sort.Strings(schemaErr.Extra)
	if len(schemaErr.Missing) == 0 && len(schemaErr.Extra) == 0 {
		schemaErr.OrderMismatch = true
	}
	return schemaErr
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func parseRow(record []string) (models.Operation, error) {
	if len(record) < numColumns {
		return models.Operation{}, fmt.Errorf("expected %d fields, got %d", numColumns, len(record))
	}

	dateStr := strings.TrimSpace(record[colDate])
	date, err := time.Parse(dateLayout, dateStr)
	if err != nil {
		return models.Operation{}, fmt.Errorf("invalid date %q: %w", dateStr, err)
	}

	debit, err := parseAmount(record[colDebit])
	if err != nil {
		return models.Operation{}, fmt.Errorf("invalid debit: %w", err)
	}
	credit, err := parseAmount(record[colCredit])
	if err != nil {
		return models.Operation{}, fmt.Errorf("invalid credit: %w", err)
	}
	// Debits are stored negative in the source; coerce stray positives.
	if debit.IsPositive() {
		debit = debit.Neg()
	}

	return models.Operation{
		Date:        date,
		Category:    strings.TrimSpace(record[colCategory]),
		Subcategory: strings.TrimSpace(record[colSubcategory]),
		Label:       strings.TrimSpace(record[colLabel]),
		Amount:      credit.Add(debit),
	}, nil
}

// parseAmount converts a comma-decimal token to a decimal. An empty
// field is zero. Dot and space thousands separators are stripped.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	s = strings.ReplaceAll(s, ",", ".")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad amount token %q", s)
	}
	return d, nil
}

func sortOperations(ops []models.Operation) {
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Category != ops[j].Category {
			return ops[i].Category < ops[j].Category
		}
		if !ops[i].Date.Equal(ops[j].Date) {
			return ops[i].Date.Before(ops[j].Date)
		}
		if ops[i].Subcategory != ops[j].Subcategory {
			return ops[i].Subcategory < ops[j].Subcategory
		}
		return ops[i].Label < ops[j].Label
	})
}
