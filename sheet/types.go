/*
Package sheet provides the tabular data model and the spreadsheet loader.

PURPOSE:
  A goal spreadsheet is a grid of daily rows plus one month-to-date row.
  Each non-key column is a "Target <bucket>" or "Actual <bucket>" series.
  This package turns that grid into an immutable Table of decimal cells
  keyed by the period label, ready for the metrics engine.

KEY CONCEPTS IN THIS FILE (types.go):
  - Cell: A nullable decimal (decimal.NullDecimal)
  - Row: One period label with one cell per column
  - Table: Ordered rows plus the column header, never mutated after load
  - Layout: Where the key, aggregate row, roles and buckets live

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal, currency never goes through float64
  2. Nulls are values: an unparseable cell is null, not zero
  3. Order matters: "last 7 days" means the last 7 rows as loaded

USAGE:
  layout := sheet.DefaultLayout()
  table, err := sheet.NewLoader(layout).Load(ctx, "https://.../export?format=csv")
  agg, err := table.AggregateRow(layout.AggregateLabel)

SEE ALSO:
  - clean.go: Currency string normalization
  - loader.go: CSV / XLSX sources
  - metrics/projection.go: Main consumer
*/
package sheet

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CELL - Nullable decimal value
// =============================================================================

// Cell is a nullable decimal. Valid=false means the source cell was empty or
// could not be parsed as a number.
type Cell = decimal.NullDecimal

// Null is the empty cell.
var Null = Cell{}

// Num builds a valid cell from a float. Intended for tests and fixtures.
func Num(v float64) Cell {
	return Cell{Decimal: decimal.NewFromFloat(v), Valid: true}
}

// NumFromString builds a valid cell from a decimal string, or Null.
func NumFromString(s string) Cell {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Null
	}
	return Cell{Decimal: d, Valid: true}
}

// =============================================================================
// ROLE / BUCKET - Column naming
// =============================================================================

// Role distinguishes target columns from actual columns.
type Role string

const (
	RoleTarget Role = "target"
	RoleActual Role = "actual"
)

// Bucket is an aging range identifier such as "1-30" or "181".
type Bucket string

// DefaultBuckets is the fixed set of aging buckets tracked by the dashboard.
var DefaultBuckets = []Bucket{"1-30", "31", "61", "121", "181", "361"}

// =============================================================================
// LAYOUT - How a spreadsheet maps onto the model
// =============================================================================

// Layout describes where the key column, the aggregate row and the role
// columns live in a source spreadsheet.
type Layout struct {
	KeyColumn      string   `toml:"key_column" json:"key_column"`
	AggregateLabel string   `toml:"aggregate_label" json:"aggregate_label"`
	TargetPrefix   string   `toml:"target_prefix" json:"target_prefix"`
	ActualPrefix   string   `toml:"actual_prefix" json:"actual_prefix"`
	Buckets        []Bucket `toml:"buckets" json:"buckets"`
	Locale         Locale   `toml:"locale" json:"locale"`
}

// DefaultLayout uses English role names with Brazilian number formatting.
func DefaultLayout() Layout {
	return Layout{
		KeyColumn:      "Day",
		AggregateLabel: "MTD",
		TargetPrefix:   "Target",
		ActualPrefix:   "Actual",
		Buckets:        append([]Bucket(nil), DefaultBuckets...),
		Locale:         BrazilianLocale(),
	}
}

// PortugueseLayout matches the Portuguese goal spreadsheet
// ("Dia" / "Mensal" / "Meta 1-30" / "Realizado 1-30").
func PortugueseLayout() Layout {
	l := DefaultLayout()
	l.KeyColumn = "Dia"
	l.AggregateLabel = "Mensal"
	l.TargetPrefix = "Meta"
	l.ActualPrefix = "Realizado"
	return l
}

// Column returns the column name for a role and bucket, e.g. "Target 1-30".
func (l Layout) Column(role Role, b Bucket) string {
	return l.Prefix(role) + " " + string(b)
}

// Prefix returns the column prefix for a role.
func (l Layout) Prefix(role Role) string {
	if role == RoleTarget {
		return l.TargetPrefix
	}
	return l.ActualPrefix
}

// Validate reports missing layout fields.
func (l Layout) Validate() error {
	switch {
	case l.KeyColumn == "":
		return errors.New("layout: key_column is required")
	case l.AggregateLabel == "":
		return errors.New("layout: aggregate_label is required")
	case l.TargetPrefix == "" || l.ActualPrefix == "":
		return errors.New("layout: target_prefix and actual_prefix are required")
	case len(l.Buckets) == 0:
		return errors.New("layout: at least one bucket is required")
	}
	return nil
}

// =============================================================================
// TABLE - Immutable grid keyed by period label
// =============================================================================

// Row is one period of the spreadsheet.
type Row struct {
	Label  string `json:"label"`
	Values []Cell `json:"values"`
}

// Table is the cleaned spreadsheet. Treat it as read-only once returned by
// the loader; the cache hands the same pointer to every request.
type Table struct {
	KeyColumn string   `json:"key_column"`
	Columns   []string `json:"columns"`
	Rows      []Row    `json:"rows"`

	index map[string]int
}

// NewTable builds a table. Rows shorter than the header are padded with
// nulls; longer rows are truncated.
func NewTable(keyColumn string, columns []string, rows []Row) *Table {
	t := &Table{
		KeyColumn: keyColumn,
		Columns:   append([]string(nil), columns...),
		Rows:      make([]Row, len(rows)),
	}
	for i, r := range rows {
		values := make([]Cell, len(columns))
		copy(values, r.Values)
		t.Rows[i] = Row{Label: r.Label, Values: values}
	}
	t.buildIndex()
	return t
}

func (t *Table) buildIndex() {
	t.index = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		if _, dup := t.index[c]; !dup {
			t.index[c] = i
		}
	}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// IsEmpty reports whether the table has no rows or no columns.
func (t *Table) IsEmpty() bool {
	return t == nil || len(t.Rows) == 0 || len(t.Columns) == 0
}

// HasColumn reports whether a column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.columnIndex(name)
	return ok
}

func (t *Table) columnIndex(name string) (int, bool) {
	if t == nil {
		return 0, false
	}
	if t.index == nil {
		for i, c := range t.Columns {
			if c == name {
				return i, true
			}
		}
		return 0, false
	}
	i, ok := t.index[name]
	return i, ok
}

// UnmarshalJSON decodes a table stored by the cache backend or the snapshot
// store and rebuilds the column index.
func (t *Table) UnmarshalJSON(data []byte) error {
	type plain Table
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = *NewTable(p.KeyColumn, p.Columns, p.Rows)
	return nil
}

// ColumnsWithPrefix returns the columns whose name starts with prefix, in
// header order.
func (t *Table) ColumnsWithPrefix(prefix string) []string {
	return lo.Filter(t.Columns, func(c string, _ int) bool {
		return strings.HasPrefix(c, prefix)
	})
}

// Value returns the cell of row r in the named column. Unknown columns are null.
func (r Row) Value(t *Table, column string) Cell {
	i, ok := t.columnIndex(column)
	if !ok || i >= len(r.Values) {
		return Null
	}
	return r.Values[i]
}

// ErrAmbiguousLabel is returned when a label that must be unique appears twice.
var ErrAmbiguousLabel = errors.New("label appears more than once")

// ErrLabelNotFound is returned when a label is absent.
var ErrLabelNotFound = errors.New("label not found")

// AggregateRow returns the single row carrying the aggregate label.
func (t *Table) AggregateRow(label string) (Row, error) {
	var (
		found Row
		count int
	)
	for _, r := range t.Rows {
		if r.Label == label {
			found = r
			count++
		}
	}
	switch count {
	case 0:
		return Row{}, ErrLabelNotFound
	case 1:
		return found, nil
	default:
		return Row{}, ErrAmbiguousLabel
	}
}

// HasLabel reports whether any row carries label.
func (t *Table) HasLabel(label string) bool {
	return lo.ContainsBy(t.Rows, func(r Row) bool { return r.Label == label })
}

// Historical returns every row except those carrying the aggregate label,
// in table order.
func (t *Table) Historical(aggregateLabel string) []Row {
	return lo.Filter(t.Rows, func(r Row, _ int) bool { return r.Label != aggregateLabel })
}

// Series returns the named column over rows, nulls included.
func (t *Table) Series(rows []Row, column string) []Cell {
	out := make([]Cell, len(rows))
	for i, r := range rows {
		out[i] = r.Value(t, column)
	}
	return out
}
