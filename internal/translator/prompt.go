package translator

import (
	"fmt"
	"strings"

	"github.com/amcassist/amcassist/internal/catalog"
	"github.com/amcassist/amcassist/internal/scope"
	"github.com/amcassist/amcassist/internal/warehouse"
)

const DefaultSystemInstruction = "You are an expert Amazon Marketing Cloud (AMC) Analyst. You help users optimize campaigns, analyze ROAS, and identify New-To-Brand opportunities. Keep answers concise and professional."

// Turn is one prior message of the conversation.
type Turn struct {
	Role  string
	Text  string
	Table *warehouse.Table
}

// SystemInstruction adds the tenant restriction of s to the analyst persona.
func SystemInstruction(s scope.Scope) string {
	if s.IsGlobal() {
		return DefaultSystemInstruction + " You have access to data for all advertisers."
	}
	return fmt.Sprintf("%s You only have access to data for %s. Never discuss other advertisers.", DefaultSystemInstruction, s.TenantName)
}

const outputContract = `Reply with a single JSON object and nothing else:
{
  "response_text": "short answer for the user",
  "query": {
    "table": "<table name>",
    "select": ["column", "relation.column"],
    "filters": [{"column": "<column>", "operator": "<operator>", "value": <value>}],
    "order_by": "<column>",
    "order_direction": "asc" | "desc",
    "limit": <number>
  } | null,
  "chart_config": {"type": "bar" | "line" | "pie" | "area", "x": "<column>", "y": "<column>"} | null
}

Rules:
- Use only the tables and columns listed in the schema.
- Allowed operators: %s.
- Use "in" with a JSON array value.
- Do not filter on advertiser, instance or date; those restrictions are applied for you.
- Set "query" to null when the question does not need data.
- chart_config axes must be columns returned by the query.
- Default limit is %d and the maximum is %d.`

const workedExamples = `Example question: Which campaigns had the highest ROAS?
Example reply: {"response_text": "Here are your campaigns ranked by ROAS.", "query": {"table": "ads_report", "select": ["campaign_name", "spend", "sales", "roas"], "filters": [{"column": "spend", "operator": "gt", "value": 0}], "order_by": "roas", "order_direction": "desc", "limit": 10}, "chart_config": {"type": "bar", "x": "campaign_name", "y": "roas"}}

Example question: What does NTB mean?
Example reply: {"response_text": "New-To-Brand (NTB) customers are shoppers who purchased from the brand for the first time in the lookback window.", "query": null, "chart_config": null}`

func buildSystemPrompt(cat *catalog.Catalog, s scope.Scope, defaultLimit, maxLimit int) string {
	names := make([]string, 0, len(warehouse.Operators()))
	for _, op := range warehouse.Operators() {
		names = append(names, string(op))
	}
	var b strings.Builder
	b.WriteString(SystemInstruction(s))
	b.WriteString("\n\nYou translate questions into queries over this warehouse schema:\n\n")
	b.WriteString(cat.Describe())
	b.WriteString("\n")
	fmt.Fprintf(&b, outputContract, strings.Join(names, ", "), defaultLimit, maxLimit)
	b.WriteString("\n\n")
	b.WriteString(workedExamples)
	return b.String()
}

func buildUserPrompt(text string, s scope.Scope, w scope.DateWindow, history []Turn, previewRows int) string {
	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, strings.TrimSpace(turn.Text))
			if turn.Table != nil && !turn.Table.Empty() {
				b.WriteString(renderPreview(turn.Table.Head(previewRows)))
			}
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Question: %s\n\n", strings.TrimSpace(text))
	fmt.Fprintf(&b, "Constraints: data is limited to %s, covering %s.", s.Describe(), w.Describe())
	return b.String()
}

func renderPreview(table warehouse.Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  [table preview] %s\n", strings.Join(table.Columns, " | "))
	for _, row := range table.Rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = fmt.Sprint(cell)
		}
		fmt.Fprintf(&b, "  %s\n", strings.Join(cells, " | "))
	}
	return b.String()
}

// FreeTextPrompt frames a question for narration without a structured reply.
func FreeTextPrompt(text string, s scope.Scope, w scope.DateWindow) string {
	focus := "Global Context"
	if !s.IsGlobal() {
		focus = fmt.Sprintf("Filtered Context: [%s]", s.TenantName)
	}
	dates := "Last 30 Days"
	if w.Constrains() {
		dates = w.Describe()
	}
	return fmt.Sprintf("%s\n\n[Context: User is analyzing data for %s during %s.]", strings.TrimSpace(text), focus, dates)
}
