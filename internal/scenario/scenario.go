// Package scenario holds the pre-built analytical reports the assistant
// answers without asking the language model for a query.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand/v2"

	"github.com/amcassist/amcassist/internal/chart"
	"github.com/amcassist/amcassist/internal/intent"
	"github.com/amcassist/amcassist/internal/observability"
	"github.com/amcassist/amcassist/internal/scope"
	"github.com/amcassist/amcassist/internal/warehouse"
)

// maxSourceRows bounds the raw rows read before aggregation.
const maxSourceRows = 5000

type Request struct {
	Scope  scope.Scope
	Window scope.DateWindow
}

type Scenario struct {
	ID       string
	Title    string
	Summary  string
	Keywords []string
	Columns  []string
	Chart    *chart.Hint

	// Fetch is the unconstrained source query; scope and window are
	// enforced by the Runner.
	Fetch func(req Request) warehouse.Fetch
	// Shape turns source rows into table rows matching Columns.
	Shape func(rows []warehouse.Row) [][]any
	// Synthesize builds demonstration rows when no warehouse is configured.
	Synthesize func(req Request, rng *rand.Rand) [][]any
}

type Library struct {
	scenarios []Scenario
	byID      map[string]int
}

func NewLibrary(scenarios ...Scenario) (*Library, error) {
	l := &Library{byID: make(map[string]int, len(scenarios))}
	for _, sc := range scenarios {
		if err := l.Register(sc); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Register appends sc at the lowest priority.
func (l *Library) Register(sc Scenario) error {
	if sc.ID == "" {
		return fmt.Errorf("scenario id is required")
	}
	if _, dup := l.byID[sc.ID]; dup {
		return fmt.Errorf("duplicate scenario %q", sc.ID)
	}
	if len(sc.Keywords) == 0 || len(sc.Columns) == 0 || sc.Fetch == nil || sc.Shape == nil || sc.Synthesize == nil {
		return fmt.Errorf("scenario %q is incomplete", sc.ID)
	}
	if sc.Chart != nil && !sc.Chart.Fits(sc.Columns) {
		return fmt.Errorf("scenario %q chart axes are not among its columns", sc.ID)
	}
	l.byID[sc.ID] = len(l.scenarios)
	l.scenarios = append(l.scenarios, sc)
	return nil
}

func (l *Library) Get(id string) (Scenario, bool) {
	idx, ok := l.byID[id]
	if !ok {
		return Scenario{}, false
	}
	return l.scenarios[idx], true
}

func (l *Library) Scenarios() []Scenario {
	out := make([]Scenario, len(l.scenarios))
	copy(out, l.scenarios)
	return out
}

// Rules exposes the library as classifier rules in priority order.
func (l *Library) Rules() []intent.Rule {
	rules := make([]intent.Rule, 0, len(l.scenarios))
	for _, sc := range l.scenarios {
		rules = append(rules, intent.Rule{ScenarioID: sc.ID, Matches: intent.Keywords(sc.Keywords...)})
	}
	return rules
}

type Outcome struct {
	Table warehouse.Table
	// Fetch is the constrained query that was, or would have been, run.
	Fetch     warehouse.Fetch
	Synthetic bool
	Err       error
}

type Runner struct {
	querier  warehouse.Querier
	enforcer *scope.Enforcer
	logger   *slog.Logger
}

// NewRunner builds a runner; a nil querier switches every scenario to
// synthetic data.
func NewRunner(querier warehouse.Querier, enforcer *scope.Enforcer, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &Runner{querier: querier, enforcer: enforcer, logger: logger}
}

func (r *Runner) Synthetic() bool {
	return r.querier == nil
}

// Run never fails: warehouse errors are logged and yield an empty table
// with the scenario's columns.
func (r *Runner) Run(ctx context.Context, sc Scenario, req Request) Outcome {
	base := sc.Fetch(req)
	if r.querier == nil {
		rows := sc.Synthesize(req, seededRand(sc.ID, req))
		return Outcome{
			Table:     warehouse.Table{Columns: append([]string(nil), sc.Columns...), Rows: rows},
			Fetch:     base,
			Synthetic: true,
		}
	}

	empty := warehouse.Table{Columns: append([]string(nil), sc.Columns...)}
	if r.enforcer == nil {
		return r.degrade(ctx, sc, Outcome{Table: empty, Fetch: base, Err: errors.New("scope enforcer is not configured")})
	}
	fetch, err := r.enforcer.Constrain(ctx, base, req.Scope, req.Window)
	if err != nil {
		return r.degrade(ctx, sc, Outcome{Table: empty, Fetch: fetch, Err: err})
	}

	result, err := r.querier.Query(ctx, fetch)
	observability.ObserveWarehouseQuery(err)
	if err != nil {
		return r.degrade(ctx, sc, Outcome{Table: empty, Fetch: fetch, Err: err})
	}

	rows := sc.Shape(result.Rows)
	if len(rows) == 0 {
		return Outcome{Table: empty, Fetch: fetch}
	}
	return Outcome{Table: warehouse.Table{Columns: empty.Columns, Rows: rows}, Fetch: fetch}
}

func (r *Runner) degrade(ctx context.Context, sc Scenario, out Outcome) Outcome {
	r.logger.WarnContext(ctx, "scenario fetch failed",
		observability.TraceAttr(ctx),
		slog.String("scenario", sc.ID),
		slog.String("table", out.Fetch.Table),
		slog.Any("error", out.Err),
	)
	return out
}

// seededRand makes synthetic data stable for a given scenario, tenant and
// window.
func seededRand(id string, req Request) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(req.Scope.TenantName))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(req.Window.Describe()))
	sum := h.Sum64()
	return rand.New(rand.NewPCG(sum, sum>>1|1))
}
