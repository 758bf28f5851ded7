package agent

import (
	"github.com/amcassist/amcassist/internal/chart"
	"github.com/amcassist/amcassist/internal/intent"
	"github.com/amcassist/amcassist/internal/warehouse"
)

// Envelope is the uniform reply of one turn, whichever route produced it.
type Envelope struct {
	Text       string       `json:"text"`
	Query      string       `json:"query,omitempty"`
	Columns    []string     `json:"columns,omitempty"`
	Rows       [][]any      `json:"rows"`
	Chart      *chart.Hint  `json:"chart"`
	Route      intent.Route `json:"route"`
	ScenarioID string       `json:"scenario_id,omitempty"`
	Synthetic  bool         `json:"synthetic"`
}

// Table returns the envelope's result as a table, or nil when it has no
// columns.
func (e Envelope) Table() *warehouse.Table {
	if len(e.Columns) == 0 {
		return nil
	}
	table := warehouse.Table{Columns: e.Columns, Rows: e.Rows}
	return &table
}

// Assemble normalizes a reply. The chart is dropped unless both axes are
// columns of table, and a table without rows yields nil Rows.
func Assemble(text, query string, table *warehouse.Table, hint *chart.Hint) Envelope {
	env := Envelope{Text: text, Query: query}
	if table == nil {
		return env
	}
	clone := table.Clone()
	env.Columns = clone.Columns
	if len(clone.Rows) > 0 {
		env.Rows = clone.Rows
	}
	if hint.Fits(clone.Columns) {
		env.Chart = hint.Clone()
	}
	return env
}
