package engine

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Dataset is tabular data with named columns.
type Dataset interface {
	Columns() []string
	Len() int
	// Row returns the values of row i keyed by column name.
	Row(i int) map[string]any
}

// Table is an in-memory Dataset.
type Table struct {
	columns []string
	rows    []map[string]any
}

func NewTable(columns []string, rows []map[string]any) *Table {
	return &Table{columns: columns, rows: rows}
}

func (t *Table) Columns() []string { return t.columns }
func (t *Table) Len() int          { return len(t.rows) }

func (t *Table) Row(i int) map[string]any {
	out := make(map[string]any, len(t.columns))
	for _, c := range t.columns {
		out[c] = t.rows[i][c]
	}
	return out
}

// TableFromColumns builds a table from a column map. Every column must have
// the same number of values. Columns are ordered by name.
func TableFromColumns(data map[string][]any) (*Table, error) {
	columns := make([]string, 0, len(data))
	for c := range data {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	n := -1
	for _, c := range columns {
		if n == -1 {
			n = len(data[c])
		} else if len(data[c]) != n {
			return nil, fmt.Errorf("column %q has %d values, expected %d", c, len(data[c]), n)
		}
	}
	if n < 0 {
		n = 0
	}

	rows := make([]map[string]any, n)
	for i := range rows {
		row := make(map[string]any, len(columns))
		for _, c := range columns {
			row[c] = normalizeJSONValue(data[c][i])
		}
		rows[i] = row
	}
	return NewTable(columns, rows), nil
}

// TableFromRecords builds a table from row objects. The column set is the
// union of all keys, ordered by name; missing cells are nil.
func TableFromRecords(records []map[string]any) *Table {
	seen := make(map[string]bool)
	var columns []string
	for _, r := range records {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)
	rows := make([]map[string]any, len(records))
	for i, r := range records {
		row := make(map[string]any, len(columns))
		for _, c := range columns {
			row[c] = normalizeJSONValue(r[c])
		}
		rows[i] = row
	}
	return NewTable(columns, rows)
}

// TableFromJSON accepts either a column map {"col": [...]} or a list of row
// objects [{"col": ...}].
func TableFromJSON(raw []byte) (*Table, error) {
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case strings.HasPrefix(trimmed, "{"):
		var cols map[string][]any
		if err := json.Unmarshal(raw, &cols); err != nil {
			return nil, fmt.Errorf("data must map column names to value lists: %w", err)
		}
		return TableFromColumns(cols)
	case strings.HasPrefix(trimmed, "["):
		var records []map[string]any
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("data must be a list of row objects: %w", err)
		}
		return TableFromRecords(records), nil
	}
	return nil, errors.New("data must be a column map or a list of row objects")
}

// TableFromCSV reads a CSV with a header row. Cell types are inferred: empty
// cells are nil, then int, float and bool are tried before falling back to
// string.
func TableFromCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	var rows []map[string]any
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", len(rows)+2, err)
		}
		row := make(map[string]any, len(columns))
		for i, c := range columns {
			if i < len(rec) {
				row[c] = inferCell(rec[i])
			} else {
				row[c] = nil
			}
		}
		rows = append(rows, row)
	}
	return NewTable(columns, rows), nil
}

func inferCell(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return int(n)
	}
	if strings.ContainsAny(s, "0123456789") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

// normalizeJSONValue turns whole-number floats from JSON into ints so that
// integer columns compare and print naturally.
func normalizeJSONValue(v any) any {
	if f, ok := v.(float64); ok && f == float64(int64(f)) && f >= -1<<53 && f <= 1<<53 {
		return int(f)
	}
	return v
}
