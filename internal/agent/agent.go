// Package agent answers one conversational turn by routing it to a
// built-in scenario, the diagnostics check or the dynamic translator.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/amcassist/amcassist/internal/intent"
	"github.com/amcassist/amcassist/internal/llm"
	"github.com/amcassist/amcassist/internal/observability"
	"github.com/amcassist/amcassist/internal/scenario"
	"github.com/amcassist/amcassist/internal/scope"
	"github.com/amcassist/amcassist/internal/translator"
	"github.com/amcassist/amcassist/internal/warehouse"
)

const (
	degradedText  = "Something went wrong while preparing this answer. Please try again."
	syntheticNote = "_No warehouse is connected; this table shows synthetic demonstration data._"
	diagnoseLimit = 5
)

// SessionContext is the locked state of the chat a turn belongs to.
type SessionContext struct {
	Scope   scope.Scope
	Window  scope.DateWindow
	History []translator.Turn
}

type Deps struct {
	Library    *scenario.Library
	Runner     *scenario.Runner
	Translator *translator.Translator
	Enforcer   *scope.Enforcer
	// Model narrates scenario results; nil falls back to scenario summaries.
	Model   llm.Model
	Querier warehouse.Querier
	Logger  *slog.Logger
}

type Agent struct {
	classifier *intent.Classifier
	library    *scenario.Library
	runner     *scenario.Runner
	translator *translator.Translator
	enforcer   *scope.Enforcer
	model      llm.Model
	querier    warehouse.Querier
	logger     *slog.Logger
}

func New(deps Deps) *Agent {
	logger := deps.Logger
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	library := deps.Library
	if library == nil {
		library = scenario.Default()
	}
	return &Agent{
		classifier: intent.NewClassifier(library.Rules()...),
		library:    library,
		runner:     deps.Runner,
		translator: deps.Translator,
		enforcer:   deps.Enforcer,
		model:      deps.Model,
		querier:    deps.Querier,
		logger:     logger,
	}
}

// Respond never fails. Any panic below it is logged and turned into a
// text-only envelope.
func (a *Agent) Respond(ctx context.Context, session SessionContext, text string) (env Envelope) {
	started := time.Now()
	match := intent.Match{Route: intent.RouteDynamic}
	defer func() {
		if recovered := recover(); recovered != nil {
			a.logger.ErrorContext(ctx, "turn panicked",
				observability.TraceAttr(ctx),
				slog.String("route", string(match.Route)),
				slog.Any("panic", recovered),
				slog.String("stack", string(debug.Stack())),
			)
			env = Envelope{Text: degradedText, Route: match.Route, ScenarioID: match.ScenarioID}
		}
		observability.ObserveTurn(string(match.Route), time.Since(started))
	}()

	match = a.classifier.Classify(text)
	switch match.Route {
	case intent.RouteControl:
		env = a.diagnose(ctx, session)
	case intent.RouteScenario:
		env = a.scenario(ctx, session, text, match.ScenarioID)
	default:
		env = a.dynamic(ctx, session, text)
	}
	if strings.TrimSpace(env.Text) == "" {
		env.Text = degradedText
	}
	env.Route = match.Route
	return env
}

func (a *Agent) scenario(ctx context.Context, session SessionContext, text, id string) Envelope {
	sc, ok := a.library.Get(id)
	if !ok || a.runner == nil {
		return a.dynamic(ctx, session, text)
	}
	out := a.runner.Run(ctx, sc, scenario.Request{Scope: session.Scope, Window: session.Window})

	narration := a.narrate(ctx, session, text)
	if narration == "" {
		narration = sc.Summary
	}
	if out.Synthetic {
		narration += "\n\n" + syntheticNote
	}

	env := Assemble(narration, warehouse.Describe(out.Fetch), &out.Table, sc.Chart)
	env.ScenarioID = sc.ID
	env.Synthetic = out.Synthetic
	return env
}

// narrate asks the model for a short free-text answer. It returns "" when
// no model is configured or the call fails.
func (a *Agent) narrate(ctx context.Context, session SessionContext, text string) string {
	if a.model == nil {
		return ""
	}
	reply, err := a.model.Complete(ctx, llm.Request{
		System: translator.SystemInstruction(session.Scope),
		User:   translator.FreeTextPrompt(text, session.Scope, session.Window),
	})
	if err != nil {
		a.logger.WarnContext(ctx, "scenario narration failed",
			observability.TraceAttr(ctx),
			slog.String("provider", a.model.Provider()),
			slog.Any("error", err),
		)
		return ""
	}
	return strings.TrimSpace(reply)
}

func (a *Agent) dynamic(ctx context.Context, session SessionContext, text string) Envelope {
	if a.translator == nil {
		return Envelope{Text: "Dynamic questions are not available. Try one of the starter prompts."}
	}
	out := a.translator.Translate(ctx, text, session.Scope, session.Window, session.History)
	query := ""
	if out.Fetch != nil {
		query = warehouse.Describe(*out.Fetch)
	}
	return Assemble(out.Text, query, out.Table, out.Chart)
}

// diagnose checks warehouse connectivity and lists a few visible instances.
func (a *Agent) diagnose(ctx context.Context, session SessionContext) Envelope {
	fetch := warehouse.Fetch{
		Table:   "amc_instances",
		Select:  []string{"instance_id", "instance_name"},
		OrderBy: "instance_id",
		Limit:   diagnoseLimit,
	}
	if a.querier == nil {
		table := warehouse.Table{Columns: []string{"instance_id", "instance_name"}}
		for _, tenant := range scenario.SyntheticTenants[:min(diagnoseLimit, len(scenario.SyntheticTenants))] {
			table.Rows = append(table.Rows, []any{tenant.ID, tenant.Name})
		}
		env := Assemble("No warehouse is configured. The assistant is running on synthetic demonstration data.", warehouse.Describe(fetch), &table, nil)
		env.Synthetic = true
		return env
	}

	if err := a.querier.Ping(ctx); err != nil {
		a.logger.WarnContext(ctx, "warehouse ping failed", observability.TraceAttr(ctx), slog.Any("error", err))
		return Envelope{Text: fmt.Sprintf("Warehouse connection failed: %v", err)}
	}
	if a.enforcer != nil {
		constrained, err := a.enforcer.Constrain(ctx, fetch, session.Scope, scope.DateWindow{})
		if err != nil {
			return Envelope{Text: "The warehouse is reachable, but the advertiser restriction could not be applied."}
		}
		fetch = constrained
	}
	result, err := a.querier.Query(ctx, fetch)
	observability.ObserveWarehouseQuery(err)
	if err != nil {
		a.logger.WarnContext(ctx, "diagnostic query failed", observability.TraceAttr(ctx), slog.Any("error", err))
		return Envelope{Text: fmt.Sprintf("The warehouse is reachable, but the instance lookup failed: %v", err), Query: warehouse.Describe(fetch)}
	}
	table := warehouse.Flatten(result)
	text := fmt.Sprintf("Connection to the warehouse is healthy. Showing %d instance(s).", table.Len())
	return Assemble(text, warehouse.Describe(fetch), &table, nil)
}
