package warehouse

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

var describeOperators = map[Operator]string{
	OpEq:    "=",
	OpGt:    ">",
	OpLt:    "<",
	OpGte:   ">=",
	OpLte:   "<=",
	OpLike:  "LIKE",
	OpILike: "ILIKE",
}

// Describe renders fetch as readable SQL with inlined literals. It is meant
// for display only; execution always goes through Compile.
func Describe(fetch Fetch) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if len(fetch.Select) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(strings.Join(fetch.Select, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(fetch.Table)

	if len(fetch.Filters) > 0 {
		parts := make([]string, 0, len(fetch.Filters))
		for _, filter := range fetch.Filters {
			parts = append(parts, describeFilter(filter))
		}
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(parts, " AND "))
	}
	if fetch.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(fetch.OrderBy)
		if fetch.Descending {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}
	if fetch.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", fetch.Limit)
	}
	return b.String()
}

func describeFilter(filter Filter) string {
	if filter.Operator == OpIn {
		values := ListValues(filter.Value)
		if len(values) == 0 {
			return "FALSE"
		}
		literals := make([]string, 0, len(values))
		for _, value := range values {
			literals = append(literals, literal(value))
		}
		return filter.Column + " IN (" + strings.Join(literals, ", ") + ")"
	}
	if filter.Operator == OpEq && filter.Value == nil {
		return filter.Column + " IS NULL"
	}
	symbol, ok := describeOperators[filter.Operator]
	if !ok {
		symbol = string(filter.Operator)
	}
	return filter.Column + " " + symbol + " " + literal(filter.Value)
}

func literal(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(typed, "'", "''") + "'"
	case time.Time:
		if typed.Hour() == 0 && typed.Minute() == 0 && typed.Second() == 0 && typed.Nanosecond() == 0 {
			return "'" + typed.Format(time.DateOnly) + "'"
		}
		return "'" + typed.Format(time.RFC3339) + "'"
	case bool:
		if typed {
			return "TRUE"
		}
		return "FALSE"
	default:
		text, err := cast.ToStringE(value)
		if err != nil {
			return fmt.Sprintf("'%v'", value)
		}
		return text
	}
}
