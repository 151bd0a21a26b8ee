/*
loader.go - Spreadsheet sources (CSV over HTTP, CSV on disk, XLSX)

PURPOSE:
  Fetches the goal spreadsheet and turns it into a Table. The sheet is
  usually a Google Sheets CSV export URL, but a local file or an XLSX
  workbook works the same way.

FORMAT DETECTION:
  1. ".xlsx" extension or "format=xlsx" in the URL query -> XLSX
  2. Content-Type of an HTTP response mentioning "spreadsheetml" -> XLSX
  3. Everything else -> CSV with the configured delimiter

FAILURE CONTRACT:
  Load never panics on bad data. An unreachable source, an unreadable body
  or a header without the key column returns an EMPTY table together with
  an error. Callers decide whether an empty table is fatal (the cache
  refuses to keep one).

SEE ALSO:
  - clean.go: Cell normalization applied to every non-key column
  - ingest/fetcher.go: Wraps Load with refresh bookkeeping
*/
package sheet

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrSourceUnreachable is returned when the source cannot be opened or fetched.
	ErrSourceUnreachable = errors.New("source unreachable")

	// ErrMissingKeyColumn is returned when the header lacks the period-label column.
	ErrMissingKeyColumn = errors.New("key column not found")

	// ErrUnsupportedFormat is returned when the body cannot be parsed as CSV or XLSX.
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
)

// Format is a spreadsheet encoding.
type Format string

const (
	FormatAuto Format = ""
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// =============================================================================
// LOADER
// =============================================================================

// Loader reads spreadsheets laid out according to Layout.
type Loader struct {
	Layout    Layout
	Client    *http.Client
	Delimiter rune
	Format    Format
}

// NewLoader creates a loader with a 30 second HTTP timeout and comma delimiter.
func NewLoader(layout Layout) *Loader {
	return &Loader{
		Layout:    layout,
		Client:    &http.Client{Timeout: 30 * time.Second},
		Delimiter: ',',
	}
}

// Load fetches location (URL or path) and returns the cleaned table.
// On failure the returned table is empty, never nil.
func (l *Loader) Load(ctx context.Context, location string) (*Table, error) {
	empty := NewTable(l.Layout.KeyColumn, nil, nil)

	body, format, err := l.open(ctx, location)
	if err != nil {
		return empty, err
	}

	var records [][]string
	switch format {
	case FormatXLSX:
		records, err = readXLSX(body)
	default:
		records, err = l.readCSV(body)
	}
	if err != nil {
		return empty, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	table, err := l.Build(records)
	if err != nil {
		return empty, err
	}
	return table, nil
}

// Build turns raw records (header first) into a Table. The key column keeps
// its text; every other column goes through ParseNumber. Records whose cells
// are all blank stay as rows with an empty label and null cells, so the
// trailing-row windows in metrics count them.
func (l *Loader) Build(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return NewTable(l.Layout.KeyColumn, nil, nil), fmt.Errorf("%w: no header row", ErrMissingKeyColumn)
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	keyIdx := -1
	for i, h := range header {
		if h == l.Layout.KeyColumn {
			keyIdx = i
			break
		}
	}
	if keyIdx < 0 {
		return NewTable(l.Layout.KeyColumn, nil, nil),
			fmt.Errorf("%w: %q", ErrMissingKeyColumn, l.Layout.KeyColumn)
	}

	columns := make([]string, 0, len(header)-1)
	for i, h := range header {
		if i != keyIdx {
			columns = append(columns, h)
		}
	}

	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := Row{Values: make([]Cell, 0, len(columns))}
		for i := range header {
			raw := ""
			if i < len(rec) {
				raw = rec[i]
			}
			if i == keyIdx {
				row.Label = strings.TrimSpace(raw)
				continue
			}
			row.Values = append(row.Values, ParseNumber(raw, l.Layout.Locale))
		}
		rows = append(rows, row)
	}

	return NewTable(l.Layout.KeyColumn, columns, rows), nil
}

// =============================================================================
// SOURCES
// =============================================================================

func (l *Loader) open(ctx context.Context, location string) ([]byte, Format, error) {
	format := l.Format
	if format == FormatAuto {
		format = formatFromLocation(location)
	}

	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return l.fetch(ctx, location, format)
	}

	data, err := os.ReadFile(location)
	if err != nil {
		return nil, format, fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
	}
	return data, format, nil
}

func (l *Loader) fetch(ctx context.Context, location string, format Format) ([]byte, Format, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, format, fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
	}

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, format, fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, format, fmt.Errorf("%w: %s returned %s", ErrSourceUnreachable, location, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, format, fmt.Errorf("%w: reading body: %v", ErrSourceUnreachable, err)
	}

	if l.Format == FormatAuto && strings.Contains(resp.Header.Get("Content-Type"), "spreadsheetml") {
		format = FormatXLSX
	}
	return data, format, nil
}

func formatFromLocation(location string) Format {
	if u, err := url.Parse(location); err == nil {
		if strings.EqualFold(u.Query().Get("format"), "xlsx") {
			return FormatXLSX
		}
		if strings.EqualFold(filepath.Ext(u.Path), ".xlsx") {
			return FormatXLSX
		}
	}
	if strings.EqualFold(filepath.Ext(location), ".xlsx") {
		return FormatXLSX
	}
	return FormatCSV
}

// =============================================================================
// DECODERS
// =============================================================================

func (l *Loader) readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	if l.Delimiter != 0 {
		r.Comma = l.Delimiter
	}
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	return r.ReadAll()
}

func readXLSX(data []byte) ([][]string, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	sheetName := file.GetSheetName(0)
	if sheetName == "" {
		return nil, errors.New("no worksheet found")
	}
	return file.GetRows(sheetName)
}
