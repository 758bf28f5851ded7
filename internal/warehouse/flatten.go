package warehouse

import "sort"

// Table is a strictly flat result: every cell is a scalar.
type Table struct {
	Columns []string
	Rows    [][]any
}

func (t Table) Len() int {
	return len(t.Rows)
}

func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

func (t Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

func (t Table) ColumnIndex(name string) int {
	for i, column := range t.Columns {
		if column == name {
			return i
		}
	}
	return -1
}

// Head returns the first n rows; the copy shares no slices with t.
func (t Table) Head(n int) Table {
	if n < 0 || n > len(t.Rows) {
		n = len(t.Rows)
	}
	out := Table{Columns: append([]string(nil), t.Columns...)}
	if n > 0 {
		out.Rows = make([][]any, 0, n)
		for _, row := range t.Rows[:n] {
			out.Rows = append(out.Rows, append([]any(nil), row...))
		}
	}
	return out
}

func (t Table) Clone() Table {
	return t.Head(-1)
}

// Records re-serializes the table as row-oriented maps.
func (t Table) Records() []map[string]any {
	records := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		record := make(map[string]any, len(t.Columns))
		for i, column := range t.Columns {
			if i < len(row) {
				record[column] = row[i]
			}
		}
		records = append(records, record)
	}
	return records
}

// Flatten turns nested records into a flat table, naming nested values
// "parent.child" at any depth. Column order follows result.Columns, with
// nested keys expanded in sorted order. A key holding a map in any row is
// treated as nested for every row.
func Flatten(result Result) Table {
	keys := result.Columns
	if len(keys) == 0 {
		keys = unionKeys(rowMaps(result.Rows))
	}
	if len(result.Rows) == 0 {
		return Table{Columns: append([]string{}, keys...)}
	}

	var paths [][]string
	for _, key := range keys {
		values := make([]any, len(result.Rows))
		for i, row := range result.Rows {
			values[i] = row[key]
		}
		paths = append(paths, leafPaths([]string{key}, values)...)
	}

	table := Table{Columns: make([]string, 0, len(paths)), Rows: make([][]any, 0, len(result.Rows))}
	for _, path := range paths {
		table.Columns = append(table.Columns, joinPath(path))
	}
	for _, row := range result.Rows {
		cells := make([]any, len(paths))
		for i, path := range paths {
			cells[i] = lookup(map[string]any(row), path)
		}
		table.Rows = append(table.Rows, cells)
	}
	return table
}

func leafPaths(prefix []string, values []any) [][]string {
	var nested []map[string]any
	for _, value := range values {
		if m, ok := asMap(value); ok {
			nested = append(nested, m)
		}
	}
	if len(nested) == 0 {
		return [][]string{prefix}
	}

	var out [][]string
	for _, child := range unionKeys(nested) {
		childValues := make([]any, 0, len(values))
		for _, value := range values {
			if m, ok := asMap(value); ok {
				childValues = append(childValues, m[child])
			}
		}
		path := append(append([]string(nil), prefix...), child)
		out = append(out, leafPaths(path, childValues)...)
	}
	return out
}

func lookup(record map[string]any, path []string) any {
	var current any = record
	for _, part := range path {
		m, ok := asMap(current)
		if !ok {
			return nil
		}
		current = m[part]
	}
	if _, ok := asMap(current); ok {
		return nil
	}
	return current
}

func asMap(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, typed != nil
	case Row:
		return map[string]any(typed), typed != nil
	default:
		return nil, false
	}
}

func rowMaps(rows []Row) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, map[string]any(row))
	}
	return out
}

func unionKeys(records []map[string]any) []string {
	seen := map[string]struct{}{}
	for _, record := range records {
		for key := range record {
			seen[key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func joinPath(path []string) string {
	out := path[0]
	for _, part := range path[1:] {
		out += "." + part
	}
	return out
}
