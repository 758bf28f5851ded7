// Package explorer serves raw catalog tables under an advertiser scope and
// summarizes them with totals and a default chart.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/amcassist/amcassist/internal/catalog"
	"github.com/amcassist/amcassist/internal/chart"
	"github.com/amcassist/amcassist/internal/observability"
	"github.com/amcassist/amcassist/internal/scope"
	"github.com/amcassist/amcassist/internal/warehouse"
)

const (
	DefaultLimit = 1000
	MaxLimit     = 50000
)

var ErrUnknownDataset = errors.New("dataset is not in the catalog")

// metricPriority orders the measures preferred for the default chart.
var metricPriority = []string{"spend", "sales", "impressions", "clicks", "purchases", "users"}

type Constrainer interface {
	Constrain(ctx context.Context, fetch warehouse.Fetch, s scope.Scope, w scope.DateWindow) (warehouse.Fetch, error)
}

type KPI struct {
	Column string  `json:"column"`
	Total  float64 `json:"total"`
}

type Snapshot struct {
	Rows      int    `json:"rows"`
	Columns   int    `json:"columns"`
	DateStart string `json:"date_start,omitempty"`
	DateEnd   string `json:"date_end,omitempty"`
}

// Point is one aggregated chart value: the sum of Y over rows sharing X.
type Point struct {
	X string  `json:"x"`
	Y float64 `json:"y"`
}

type Dataset struct {
	Table    string      `json:"table"`
	Scope    string      `json:"scope"`
	Snapshot Snapshot    `json:"snapshot"`
	KPIs     []KPI       `json:"kpis"`
	Chart    *chart.Hint `json:"chart,omitempty"`
	Series   []Point     `json:"series,omitempty"`
	Columns  []string    `json:"columns"`
	Rows     [][]any     `json:"rows"`
}

type Explorer struct {
	catalog  *catalog.Catalog
	enforcer Constrainer
	querier  warehouse.Querier
	logger   *slog.Logger
}

func New(cat *catalog.Catalog, enforcer Constrainer, querier warehouse.Querier, logger *slog.Logger) *Explorer {
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &Explorer{catalog: cat, enforcer: enforcer, querier: querier, logger: logger}
}

// Datasets lists the catalog tables in name order.
func (e *Explorer) Datasets() []catalog.TableDef {
	tables := e.catalog.Tables()
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	return tables
}

// Explore fetches up to limit rows of table visible to s. A failed scope
// lookup aborts the fetch instead of running an unconstrained query.
func (e *Explorer) Explore(ctx context.Context, table string, s scope.Scope, limit int) (Dataset, error) {
	def, ok := e.catalog.Table(table)
	if !ok {
		return Dataset{}, fmt.Errorf("%w: %q", ErrUnknownDataset, table)
	}
	if e.querier == nil {
		return Dataset{}, warehouse.ErrUnavailable
	}
	if e.enforcer == nil {
		return Dataset{}, errors.New("scope enforcer is not configured")
	}
	limit = clampLimit(limit)

	base := warehouse.Fetch{Table: def.Name, Select: def.ColumnNames(), Limit: limit}
	if def.DateColumn != "" {
		base.OrderBy, base.Descending = def.DateColumn, true
	}
	fetch, err := e.enforcer.Constrain(ctx, base, s, scope.DateWindow{})
	if err != nil {
		e.logger.WarnContext(ctx, "dataset scope lookup failed",
			observability.TraceAttr(ctx),
			slog.String("table", def.Name),
			slog.Any("error", err),
		)
		return Dataset{}, fmt.Errorf("constrain %s: %w", def.Name, err)
	}
	result, err := e.querier.Query(ctx, fetch)
	observability.ObserveWarehouseQuery(err)
	if err != nil {
		return Dataset{}, fmt.Errorf("query %s: %w", def.Name, err)
	}

	ds := Summarize(def, warehouse.Flatten(result))
	ds.Scope = s.Describe()
	return ds, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Summarize computes the snapshot, column totals and default chart of t.
// Column roles come from the catalog types of def.
func Summarize(def catalog.TableDef, t warehouse.Table) Dataset {
	ds := Dataset{
		Table:    def.Name,
		Snapshot: Snapshot{Rows: t.Len(), Columns: len(t.Columns)},
		KPIs:     []KPI{},
		Columns:  t.Columns,
		Rows:     t.Rows,
	}
	if ds.Columns == nil {
		ds.Columns = []string{}
	}
	if ds.Rows == nil {
		ds.Rows = [][]any{}
	}
	types := make(map[string]string, len(def.Columns))
	for _, column := range def.Columns {
		types[column.Name] = strings.ToLower(column.Type)
	}

	var dateColumn, category string
	var measures []string
	for _, name := range t.Columns {
		switch kind := types[name]; {
		case kind == "date" || kind == "timestamp":
			if dateColumn == "" {
				dateColumn = name
			}
		case kind == "text":
			if category == "" {
				category = name
			}
		case isNumeric(kind) && !isIdentifier(name):
			measures = append(measures, name)
		}
	}

	for _, name := range measures {
		ds.KPIs = append(ds.KPIs, KPI{Column: name, Total: columnSum(t, name)})
	}
	if dateColumn != "" {
		ds.Snapshot.DateStart, ds.Snapshot.DateEnd = dateRange(t, dateColumn)
	}

	measure := pickMeasure(measures)
	switch {
	case measure == "":
	case dateColumn != "":
		ds.Chart = chart.New(string(chart.Line), dateColumn, measure)
		ds.Series = aggregate(t, dateColumn, measure)
		sort.Slice(ds.Series, func(i, j int) bool { return ds.Series[i].X < ds.Series[j].X })
	case category != "":
		ds.Chart = chart.New(string(chart.Bar), category, measure)
		ds.Series = aggregate(t, category, measure)
		sort.SliceStable(ds.Series, func(i, j int) bool { return ds.Series[i].Y > ds.Series[j].Y })
	}
	return ds
}

func isNumeric(kind string) bool {
	switch kind {
	case "bigint", "integer", "int", "numeric", "double", "real", "float":
		return true
	default:
		return false
	}
}

func isIdentifier(name string) bool {
	return name == "id" || strings.HasSuffix(name, "_id")
}

func pickMeasure(measures []string) string {
	for _, metric := range metricPriority {
		for _, name := range measures {
			if strings.Contains(name, metric) {
				return name
			}
		}
	}
	if len(measures) > 0 {
		return measures[0]
	}
	return ""
}

func columnSum(t warehouse.Table, column string) float64 {
	idx := t.ColumnIndex(column)
	var total float64
	for _, row := range t.Rows {
		if v, ok := number(row, idx); ok {
			total += v
		}
	}
	return total
}

// aggregate sums measure per distinct x value, keeping first-seen order.
func aggregate(t warehouse.Table, x, measure string) []Point {
	xi, yi := t.ColumnIndex(x), t.ColumnIndex(measure)
	index := map[string]int{}
	var points []Point
	for _, row := range t.Rows {
		key := label(value(row, xi))
		v, _ := number(row, yi)
		if i, ok := index[key]; ok {
			points[i].Y += v
			continue
		}
		index[key] = len(points)
		points = append(points, Point{X: key, Y: v})
	}
	return points
}

func dateRange(t warehouse.Table, column string) (string, string) {
	idx := t.ColumnIndex(column)
	var first, last time.Time
	for _, row := range t.Rows {
		v := value(row, idx)
		if v == nil {
			continue
		}
		ts, err := cast.ToTimeE(v)
		if err != nil {
			continue
		}
		if first.IsZero() || ts.Before(first) {
			first = ts
		}
		if last.IsZero() || ts.After(last) {
			last = ts
		}
	}
	if first.IsZero() {
		return "", ""
	}
	return first.Format(time.DateOnly), last.Format(time.DateOnly)
}

func value(row []any, idx int) any {
	if idx < 0 || idx >= len(row) {
		return nil
	}
	return row[idx]
}

func number(row []any, idx int) (float64, bool) {
	v := value(row, idx)
	if v == nil {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

func label(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case time.Time:
		return typed.Format(time.DateOnly)
	default:
		return cast.ToString(typed)
	}
}
