package translator

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/amcassist/amcassist/internal/catalog"
	"github.com/amcassist/amcassist/internal/warehouse"
)

const (
	ReasonUnknownTable    = "unknown_table"
	ReasonInvalidOperator = "invalid_operator"
	ReasonUnknownColumn   = "unknown_column"
	ReasonUnknownSelect   = "unknown_select"
	ReasonUnknownOrderBy  = "unknown_order_by"
	ReasonInvalidLimit    = "invalid_limit"
)

// Rejection records one part of a descriptor that was dropped.
type Rejection struct {
	Reason string
	Detail string
}

type Validator struct {
	catalog      *catalog.Catalog
	defaultLimit int
	maxLimit     int
}

func NewValidator(cat *catalog.Catalog, defaultLimit, maxLimit int) Validator {
	if defaultLimit <= 0 {
		defaultLimit = 100
	}
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	return Validator{catalog: cat, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// Validate converts a model QuerySpec into a fetch restricted to catalog tables, columns
// and operators. ok is false when the table itself is rejected; otherwise
// invalid parts are dropped individually and reported.
func (v Validator) Validate(qs QuerySpec) (fetch warehouse.Fetch, rejections []Rejection, ok bool) {
	table := strings.TrimSpace(qs.Table)
	if _, known := v.catalog.Table(table); !known {
		return warehouse.Fetch{}, []Rejection{{Reason: ReasonUnknownTable, Detail: table}}, false
	}
	fetch.Table = table

	// A missing select means every column.
	var selects []string
	if qs.Select != nil {
		cols, err := cast.ToStringSliceE(qs.Select)
		if err != nil {
			rejections = append(rejections, Rejection{Reason: ReasonUnknownSelect, Detail: fmt.Sprint(qs.Select)})
		}
		selects = cols
	}
	for _, column := range selects {
		column = strings.TrimSpace(column)
		if column == "" || column == "*" {
			continue
		}
		if !v.catalog.HasColumn(table, column) {
			rejections = append(rejections, Rejection{Reason: ReasonUnknownSelect, Detail: column})
			continue
		}
		fetch.Select = append(fetch.Select, column)
	}

	for _, f := range qs.Filters {
		column := strings.TrimSpace(f.Column)
		op, valid := warehouse.ParseOperator(f.Operator)
		if !valid {
			rejections = append(rejections, Rejection{Reason: ReasonInvalidOperator, Detail: f.Operator})
			continue
		}
		if !v.catalog.HasColumn(table, column) {
			rejections = append(rejections, Rejection{Reason: ReasonUnknownColumn, Detail: column})
			continue
		}
		fetch.Filters = append(fetch.Filters, warehouse.Filter{Column: column, Operator: op, Value: f.Value})
	}

	if orderBy := strings.TrimSpace(qs.OrderBy); orderBy != "" {
		if v.catalog.HasColumn(table, orderBy) {
			fetch.OrderBy = orderBy
			fetch.Descending = strings.EqualFold(strings.TrimSpace(qs.OrderDirection), "desc")
		} else {
			rejections = append(rejections, Rejection{Reason: ReasonUnknownOrderBy, Detail: orderBy})
		}
	}

	fetch.Limit = v.defaultLimit
	if qs.Limit != nil {
		limit, err := cast.ToIntE(qs.Limit)
		switch {
		case err != nil || limit <= 0:
			rejections = append(rejections, Rejection{Reason: ReasonInvalidLimit, Detail: fmt.Sprint(qs.Limit)})
		case limit > v.maxLimit:
			fetch.Limit = v.maxLimit
		default:
			fetch.Limit = limit
		}
	}
	return fetch, rejections, true
}
