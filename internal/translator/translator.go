// Package translator turns free-text questions into validated, scoped
// warehouse fetches by way of a language model.
package translator

import (
	"context"
	"log/slog"
	"strings"

	"github.com/amcassist/amcassist/internal/catalog"
	"github.com/amcassist/amcassist/internal/chart"
	"github.com/amcassist/amcassist/internal/llm"
	"github.com/amcassist/amcassist/internal/observability"
	"github.com/amcassist/amcassist/internal/scope"
	"github.com/amcassist/amcassist/internal/warehouse"
)

const (
	noticeNoModel      = "The language model is not configured, so I can only run the built-in analyses. Try one of the starter prompts."
	noticeModelFailed  = "I could not reach the language model for this question, so no query was run. Please try again or use a starter prompt."
	fallbackAnswerText = "Here is what I found."
)

// Outcome is the result of one dynamic turn. Table and Fetch are nil when no
// query ran.
type Outcome struct {
	Text       string
	Descriptor *Descriptor
	Fetch      *warehouse.Fetch
	Table      *warehouse.Table
	Chart      *chart.Hint
	Note       string
}

type Options struct {
	HistoryTurns int
	PreviewRows  int
	DefaultLimit int
	MaxLimit     int
}

type Translator struct {
	model     llm.Model
	catalog   *catalog.Catalog
	enforcer  *scope.Enforcer
	querier   warehouse.Querier
	validator Validator
	opts      Options
	logger    *slog.Logger
}

// New builds a translator. A nil model answers every question with a notice;
// a nil querier validates descriptors without running them.
func New(model llm.Model, cat *catalog.Catalog, enforcer *scope.Enforcer, querier warehouse.Querier, opts Options, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	if opts.HistoryTurns < 0 {
		opts.HistoryTurns = 0
	}
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = 3
	}
	validator := NewValidator(cat, opts.DefaultLimit, opts.MaxLimit)
	opts.DefaultLimit, opts.MaxLimit = validator.defaultLimit, validator.maxLimit
	return &Translator{
		model:     model,
		catalog:   cat,
		enforcer:  enforcer,
		querier:   querier,
		validator: validator,
		opts:      opts,
		logger:    logger,
	}
}

func (t *Translator) Translate(ctx context.Context, text string, s scope.Scope, w scope.DateWindow, history []Turn) Outcome {
	if t.model == nil {
		return Outcome{Text: noticeNoModel}
	}

	raw, err := t.model.Complete(ctx, llm.Request{
		System: buildSystemPrompt(t.catalog, s, t.opts.DefaultLimit, t.opts.MaxLimit),
		User:   buildUserPrompt(text, s, w, recent(history, t.opts.HistoryTurns), t.opts.PreviewRows),
		JSON:   true,
	})
	if err != nil {
		t.logger.WarnContext(ctx, "language model request failed",
			observability.TraceAttr(ctx),
			slog.String("provider", t.model.Provider()),
			slog.Any("error", err),
		)
		return Outcome{Text: noticeModelFailed}
	}

	switch decoded := Decode(raw).(type) {
	case PlainText:
		return Outcome{Text: decoded.Text}
	case Structured:
		if decoded.Repaired {
			t.logger.DebugContext(ctx, "model reply required json repair", observability.TraceAttr(ctx))
		}
		return t.execute(ctx, decoded.Descriptor, s, w)
	default:
		return Outcome{Text: strings.TrimSpace(raw)}
	}
}

func (t *Translator) execute(ctx context.Context, desc Descriptor, s scope.Scope, w scope.DateWindow) Outcome {
	out := Outcome{Text: strings.TrimSpace(desc.ResponseText), Descriptor: &desc}
	if out.Text == "" {
		out.Text = fallbackAnswerText
	}
	if desc.ChartConfig != nil {
		out.Chart = chart.New(desc.ChartConfig.Type, desc.ChartConfig.X, desc.ChartConfig.Y)
	}
	if desc.Query == nil {
		return out
	}

	fetch, rejections, ok := t.validator.Validate(*desc.Query)
	for _, rejection := range rejections {
		observability.IncrementDescriptorRejection(rejection.Reason)
		t.logger.WarnContext(ctx, "dropped part of model query",
			observability.TraceAttr(ctx),
			slog.String("reason", rejection.Reason),
			slog.String("detail", rejection.Detail),
		)
	}
	if !ok {
		return out
	}

	if t.querier == nil || t.enforcer == nil {
		return out.withNote("No warehouse is connected, so the query was not run.")
	}
	fetch, err := t.enforcer.Constrain(ctx, fetch, s, w)
	if err != nil {
		t.logger.WarnContext(ctx, "could not apply scope to model query",
			observability.TraceAttr(ctx),
			slog.String("table", fetch.Table),
			slog.Any("error", err),
		)
		return out.withNote("The advertiser or date restriction could not be applied, so the query was not run.")
	}
	out.Fetch = &fetch

	result, err := t.querier.Query(ctx, fetch)
	observability.ObserveWarehouseQuery(err)
	if err != nil {
		t.logger.WarnContext(ctx, "model query failed",
			observability.TraceAttr(ctx),
			slog.String("table", fetch.Table),
			slog.Any("error", err),
		)
		return out.withNote("The query could not be executed against the warehouse.")
	}
	table := warehouse.Flatten(result)
	out.Table = &table
	return out
}

func (o Outcome) withNote(note string) Outcome {
	o.Note = note
	o.Text = o.Text + "\n\n_" + note + "_"
	return o
}

func recent(history []Turn, n int) []Turn {
	if n <= 0 {
		return nil
	}
	if len(history) > n {
		return history[len(history)-n:]
	}
	return history
}
