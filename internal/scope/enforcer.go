package scope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cast"

	"github.com/amcassist/amcassist/internal/catalog"
	"github.com/amcassist/amcassist/internal/observability"
	"github.com/amcassist/amcassist/internal/warehouse"
)

var ErrUnknownTable = errors.New("table is not in the catalog")

const executionsTable = "amc_executions"

// Enforcer appends tenant and date predicates to fetches using each table's
// declared tenant key.
type Enforcer struct {
	catalog   *catalog.Catalog
	directory TenantDirectory
	querier   warehouse.Querier
	logger    *slog.Logger
}

func NewEnforcer(cat *catalog.Catalog, directory TenantDirectory, querier warehouse.Querier, logger *slog.Logger) *Enforcer {
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &Enforcer{catalog: cat, directory: directory, querier: querier, logger: logger}
}

// Constrain returns fetch restricted to s and w. When a lookup needed for the
// restriction fails, the returned fetch matches no rows and the error is
// returned alongside it.
func (e *Enforcer) Constrain(ctx context.Context, fetch warehouse.Fetch, s Scope, w DateWindow) (warehouse.Fetch, error) {
	def, ok := e.catalog.Table(fetch.Table)
	if !ok {
		return fetch, fmt.Errorf("%w: %q", ErrUnknownTable, fetch.Table)
	}
	if w.Inverted() {
		e.logger.WarnContext(ctx, "date window start is after end; ignoring window",
			observability.TraceAttr(ctx),
			slog.String("start", w.Start.Format(time.DateOnly)),
			slog.String("end", w.End.Format(time.DateOnly)),
		)
	}

	switch def.Tenant.Kind {
	case catalog.TenantInstance:
		out := fetch.With(TenantFilters(def.Tenant.Column, s)...)
		return out.With(e.dateFilters(def, w)...), nil

	case catalog.TenantAdvertiser:
		out := fetch
		if !s.IsGlobal() {
			advertiserIDs, err := e.advertiserIDs(ctx, s)
			if err != nil {
				return fetch.With(MatchAny(def.Tenant.Column, nil)), err
			}
			out = out.With(MatchAny(def.Tenant.Column, advertiserIDs))
		}
		return out.With(e.dateFilters(def, w)...), nil

	case catalog.TenantExecution:
		if s.IsGlobal() && !w.Constrains() {
			return fetch.Clone(), nil
		}
		ids, err := e.ExecutionIDs(ctx, def.ReportType, s, w)
		if err != nil {
			return fetch.With(MatchAny(def.Tenant.Column, nil)), err
		}
		return fetch.With(MatchAny(def.Tenant.Column, ids)), nil

	default:
		return fetch.With(MatchAny(def.Tenant.Column, nil)), fmt.Errorf("table %q has unsupported tenant kind %q", def.Name, def.Tenant.Kind)
	}
}

// ExecutionIDs lists executions of reportType visible to s whose time window
// overlaps w.
func (e *Enforcer) ExecutionIDs(ctx context.Context, reportType string, s Scope, w DateWindow) ([]int64, error) {
	if e.querier == nil {
		return nil, warehouse.ErrUnavailable
	}
	def, ok := e.catalog.Table(executionsTable)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, executionsTable)
	}

	fetch := warehouse.Fetch{Table: executionsTable, Select: []string{"execution_id"}}
	fetch = fetch.With(TenantFilters(def.Tenant.Column, s)...)
	fetch = fetch.With(OverlapFilters(def.Window.Start, def.Window.End, w)...)
	if reportType != "" {
		fetch = fetch.With(warehouse.Filter{Column: "report_type", Operator: warehouse.OpEq, Value: reportType})
	}

	result, err := e.querier.Query(ctx, fetch)
	if err != nil {
		return nil, fmt.Errorf("lookup executions: %w", err)
	}
	ids := make([]int64, 0, len(result.Rows))
	for _, row := range result.Rows {
		id, err := cast.ToInt64E(row["execution_id"])
		if err != nil {
			return nil, fmt.Errorf("execution id %v: %w", row["execution_id"], err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (e *Enforcer) advertiserIDs(ctx context.Context, s Scope) ([]int64, error) {
	if len(s.TenantIDs) == 0 {
		return nil, nil
	}
	if e.directory == nil {
		return nil, ErrNoDirectory
	}
	ids, err := e.directory.AdvertiserIDsByInstance(ctx, s.TenantIDs)
	if err != nil {
		return nil, fmt.Errorf("map tenant %q to advertisers: %w", s.TenantName, err)
	}
	return ids, nil
}

func (e *Enforcer) dateFilters(def catalog.TableDef, w DateWindow) []warehouse.Filter {
	if def.Window.Start != "" && def.Window.End != "" {
		return OverlapFilters(def.Window.Start, def.Window.End, w)
	}
	if def.DateColumn != "" {
		return RangeFilters(def.DateColumn, w)
	}
	return nil
}
