// Package warehouse defines the generic table-query contract used by the
// assistant: a whitelisted fetch description, its SQL compilation, and the
// flat table shape handed to callers.
package warehouse

import (
	"context"
	"errors"
	"strings"
)

var ErrUnavailable = errors.New("warehouse unavailable")

type Operator string

const (
	OpEq    Operator = "eq"
	OpGt    Operator = "gt"
	OpLt    Operator = "lt"
	OpGte   Operator = "gte"
	OpLte   Operator = "lte"
	OpLike  Operator = "like"
	OpILike Operator = "ilike"
	OpIn    Operator = "in"
)

var operators = []Operator{OpEq, OpGt, OpLt, OpGte, OpLte, OpLike, OpILike, OpIn}

func Operators() []Operator {
	out := make([]Operator, len(operators))
	copy(out, operators)
	return out
}

func (o Operator) Valid() bool {
	for _, candidate := range operators {
		if o == candidate {
			return true
		}
	}
	return false
}

// ParseOperator accepts operator names case-insensitively.
func ParseOperator(raw string) (Operator, bool) {
	op := Operator(strings.ToLower(strings.TrimSpace(raw)))
	return op, op.Valid()
}

type Filter struct {
	Column   string
	Operator Operator
	Value    any
}

type Fetch struct {
	Table      string
	Select     []string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Clone returns a copy that shares no slices with f.
func (f Fetch) Clone() Fetch {
	out := f
	out.Select = append([]string(nil), f.Select...)
	out.Filters = append([]Filter(nil), f.Filters...)
	return out
}

// With returns a copy of f with extra filters appended.
func (f Fetch) With(filters ...Filter) Fetch {
	out := f.Clone()
	out.Filters = append(out.Filters, filters...)
	return out
}

// Row is one record as returned by a backend: flat, or with relation
// columns holding a nested map.
type Row map[string]any

type Result struct {
	Columns []string
	Rows    []Row
}

type Querier interface {
	Query(ctx context.Context, fetch Fetch) (Result, error)
	Ping(ctx context.Context) error
}

// Relation describes a foreign-key lookup reachable from a table through a
// dotted projection such as "execution.status".
type Relation struct {
	Name          string
	Table         string
	LocalColumn   string
	ForeignColumn string
}

type Relations interface {
	Relation(table, name string) (Relation, bool)
}

type Tenant struct {
	ID   int64
	Name string
}

// SplitColumn splits "relation.column" into its parts. Plain columns return
// an empty relation.
func SplitColumn(column string) (relation, name string) {
	if idx := strings.Index(column, "."); idx > 0 {
		return column[:idx], column[idx+1:]
	}
	return "", column
}
