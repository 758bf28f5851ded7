package warehouse

import (
	"fmt"
	"reflect"
	"strings"
)

// Dialect captures the few places where backends differ when compiling a
// Fetch to SQL.
type Dialect interface {
	Name() string
	Placeholder(n int) string
	// Object renders an expression building one nested record from fields.
	Object(fields []ObjectField) string
	// DecodeObject converts a scanned Object value back into a map.
	DecodeObject(value any) (map[string]any, error)
}

type ObjectField struct {
	Key  string
	Expr string
}

type Statement struct {
	SQL  string
	Args []any
	// Objects names the output columns produced by Dialect.Object.
	Objects map[string]bool
}

// Compile renders fetch as a single SELECT. Identifiers are always quoted
// and values are always bound as arguments.
func Compile(fetch Fetch, relations Relations, dialect Dialect) (Statement, error) {
	if strings.TrimSpace(fetch.Table) == "" {
		return Statement{}, fmt.Errorf("fetch table is required")
	}
	c := &compiler{fetch: fetch, relations: relations, dialect: dialect, base: quoteIdent(fetch.Table)}
	return c.compile()
}

type compiler struct {
	fetch     Fetch
	relations Relations
	dialect   Dialect
	base      string

	args  []any
	joins []Relation
}

func (c *compiler) compile() (Statement, error) {
	projections, objects, err := c.projections()
	if err != nil {
		return Statement{}, err
	}

	var where []string
	for _, filter := range c.fetch.Filters {
		predicate, err := c.predicate(filter)
		if err != nil {
			return Statement{}, err
		}
		where = append(where, predicate)
	}

	var order string
	if c.fetch.OrderBy != "" {
		expr, err := c.column(c.fetch.OrderBy)
		if err != nil {
			return Statement{}, err
		}
		direction := "ASC"
		if c.fetch.Descending {
			direction = "DESC"
		}
		order = "ORDER BY " + expr + " " + direction
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(projections, ", "))
	b.WriteString(" FROM ")
	b.WriteString(c.base)
	for _, rel := range c.joins {
		fmt.Fprintf(&b, " LEFT JOIN %s AS %s ON %s.%s = %s.%s",
			quoteIdent(rel.Table), quoteIdent(rel.Name),
			quoteIdent(rel.Name), quoteIdent(rel.ForeignColumn),
			c.base, quoteIdent(rel.LocalColumn))
	}
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	if order != "" {
		b.WriteString(" ")
		b.WriteString(order)
	}
	if c.fetch.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", c.fetch.Limit)
	}

	return Statement{SQL: b.String(), Args: c.args, Objects: objects}, nil
}

func (c *compiler) projections() ([]string, map[string]bool, error) {
	if len(c.fetch.Select) == 0 {
		return []string{c.base + ".*"}, nil, nil
	}

	var projections []string
	objects := map[string]bool{}
	fieldsByRelation := map[string][]ObjectField{}
	var relationOrder []string

	for _, item := range c.fetch.Select {
		item = strings.TrimSpace(item)
		if item == "*" {
			projections = append(projections, c.base+".*")
			continue
		}
		relName, name := SplitColumn(item)
		if relName == "" {
			if name == "" {
				return nil, nil, fmt.Errorf("empty select column")
			}
			projections = append(projections, c.base+"."+quoteIdent(name)+" AS "+quoteIdent(name))
			continue
		}
		rel, err := c.join(relName)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := fieldsByRelation[rel.Name]; !ok {
			relationOrder = append(relationOrder, rel.Name)
		}
		fieldsByRelation[rel.Name] = append(fieldsByRelation[rel.Name], ObjectField{
			Key:  name,
			Expr: quoteIdent(rel.Name) + "." + quoteIdent(name),
		})
	}

	for _, name := range relationOrder {
		projections = append(projections, c.dialect.Object(fieldsByRelation[name])+" AS "+quoteIdent(name))
		objects[name] = true
	}
	if len(objects) == 0 {
		objects = nil
	}
	return projections, objects, nil
}

func (c *compiler) join(name string) (Relation, error) {
	for _, rel := range c.joins {
		if rel.Name == name {
			return rel, nil
		}
	}
	if c.relations == nil {
		return Relation{}, fmt.Errorf("unknown relation %q on %q", name, c.fetch.Table)
	}
	rel, ok := c.relations.Relation(c.fetch.Table, name)
	if !ok {
		return Relation{}, fmt.Errorf("unknown relation %q on %q", name, c.fetch.Table)
	}
	c.joins = append(c.joins, rel)
	return rel, nil
}

func (c *compiler) column(column string) (string, error) {
	relName, name := SplitColumn(strings.TrimSpace(column))
	if name == "" {
		return "", fmt.Errorf("empty column")
	}
	if relName == "" {
		return c.base + "." + quoteIdent(name), nil
	}
	rel, err := c.join(relName)
	if err != nil {
		return "", err
	}
	return quoteIdent(rel.Name) + "." + quoteIdent(name), nil
}

func (c *compiler) bind(value any) string {
	c.args = append(c.args, value)
	return c.dialect.Placeholder(len(c.args))
}

func (c *compiler) predicate(filter Filter) (string, error) {
	expr, err := c.column(filter.Column)
	if err != nil {
		return "", err
	}
	switch filter.Operator {
	case OpEq:
		if filter.Value == nil {
			return expr + " IS NULL", nil
		}
		return expr + " = " + c.bind(filter.Value), nil
	case OpGt:
		return expr + " > " + c.bind(filter.Value), nil
	case OpLt:
		return expr + " < " + c.bind(filter.Value), nil
	case OpGte:
		return expr + " >= " + c.bind(filter.Value), nil
	case OpLte:
		return expr + " <= " + c.bind(filter.Value), nil
	case OpLike:
		return expr + " LIKE " + c.bind(filter.Value), nil
	case OpILike:
		return expr + " ILIKE " + c.bind(filter.Value), nil
	case OpIn:
		values := ListValues(filter.Value)
		if len(values) == 0 {
			return "1 = 0", nil
		}
		placeholders := make([]string, 0, len(values))
		for _, value := range values {
			placeholders = append(placeholders, c.bind(value))
		}
		return expr + " IN (" + strings.Join(placeholders, ", ") + ")", nil
	default:
		return "", fmt.Errorf("unsupported operator %q", filter.Operator)
	}
}

// ListValues expands an "in" operand into its members. Scalars become a
// one-element list and nil becomes an empty list.
func ListValues(value any) []any {
	if value == nil {
		return nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{value}
	}
	if _, isBytes := value.([]byte); isBytes {
		return []any{value}
	}
	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out = append(out, rv.Index(i).Interface())
	}
	return out
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
