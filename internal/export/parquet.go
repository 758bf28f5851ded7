package export

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/spf13/cast"
)

type columnKind int

const (
	kindString columnKind = iota
	kindBool
	kindInt
	kindDouble
	kindTimestamp
)

// Parquet writes the result with one optional column per result column. Each
// column's type is inferred from its non-nil cells; mixed or unknown cells
// fall back to strings.
func Parquet(doc Document) ([]byte, error) {
	names := uniqueColumns(doc.Columns)
	kinds := make(map[string]columnKind, len(names))
	group := make(parquet.Group, len(names))
	for i, name := range names {
		kind := inferKind(doc.Rows, i)
		kinds[name] = kind
		group[name] = parquet.Optional(parquetNode(kind))
	}
	schema := parquet.NewSchema("result", group)

	// Group fields are ordered by name; leaf indexes follow that order.
	position := make(map[string]int, len(names))
	for i, name := range names {
		position[name] = i
	}
	fields := schema.Fields()
	rows := make([]parquet.Row, 0, len(doc.Rows))
	for r, row := range doc.Rows {
		out := make(parquet.Row, len(fields))
		for leaf, field := range fields {
			name := field.Name()
			value, err := parquetValue(kinds[name], cell(row, position[name]))
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", r+1, name, err)
			}
			if value.IsNull() {
				out[leaf] = parquet.NullValue().Level(0, 0, leaf)
			} else {
				out[leaf] = value.Level(0, 1, leaf)
			}
		}
		rows = append(rows, out)
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewWriter(buf, schema)
	if len(rows) > 0 {
		if _, err := writer.WriteRows(rows); err != nil {
			return nil, fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// uniqueColumns suffixes repeated or empty names so every column survives.
func uniqueColumns(columns []string) []string {
	seen := make(map[string]bool, len(columns))
	out := make([]string, 0, len(columns))
	for i, name := range columns {
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		base := name
		for n := 1; seen[name]; n++ {
			name = base + "_" + strconv.Itoa(n+1)
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func inferKind(rows [][]any, i int) columnKind {
	kind, found := kindString, false
	for _, row := range rows {
		v := cell(row, i)
		if v == nil {
			continue
		}
		k := kindOf(v)
		switch {
		case !found:
			kind, found = k, true
		case k == kind:
		case (k == kindInt && kind == kindDouble) || (k == kindDouble && kind == kindInt):
			kind = kindDouble
		default:
			return kindString
		}
	}
	return kind
}

func kindOf(v any) columnKind {
	switch v.(type) {
	case bool:
		return kindBool
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return kindInt
	case float32, float64:
		return kindDouble
	case time.Time:
		return kindTimestamp
	default:
		return kindString
	}
}

func parquetNode(kind columnKind) parquet.Node {
	switch kind {
	case kindBool:
		return parquet.Leaf(parquet.BooleanType)
	case kindInt:
		return parquet.Int(64)
	case kindDouble:
		return parquet.Leaf(parquet.DoubleType)
	case kindTimestamp:
		return parquet.Timestamp(parquet.Millisecond)
	default:
		return parquet.String()
	}
}

func parquetValue(kind columnKind, v any) (parquet.Value, error) {
	if v == nil {
		return parquet.NullValue(), nil
	}
	switch kind {
	case kindBool:
		b, err := cast.ToBoolE(v)
		return parquet.BooleanValue(b), err
	case kindInt:
		n, err := cast.ToInt64E(v)
		return parquet.Int64Value(n), err
	case kindDouble:
		f, err := cast.ToFloat64E(v)
		return parquet.DoubleValue(f), err
	case kindTimestamp:
		t, err := cast.ToTimeE(v)
		return parquet.Int64Value(t.UTC().UnixMilli()), err
	default:
		return parquet.ByteArrayValue([]byte(cellString(v))), nil
	}
}
