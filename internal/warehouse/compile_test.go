package warehouse

import (
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"
)

type testDialect struct{}

func (testDialect) Name() string             { return "test" }
func (testDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }
func (testDialect) Object(fields []ObjectField) string {
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field.Key+"="+field.Expr)
	}
	return "obj(" + strings.Join(parts, ",") + ")"
}
func (testDialect) DecodeObject(value any) (map[string]any, error) {
	m, _ := value.(map[string]any)
	return m, nil
}

type testRelations map[string]Relation

func (r testRelations) Relation(table, name string) (Relation, bool) {
	rel, ok := r[table+"/"+name]
	return rel, ok
}

var executionRelation = testRelations{
	"amc_time_to_conversion/execution": {
		Name:          "execution",
		Table:         "amc_executions",
		LocalColumn:   "execution_id",
		ForeignColumn: "execution_id",
	},
}

func TestCompileSimpleFetch(t *testing.T) {
	stmt, err := Compile(Fetch{
		Table:      "ads_report",
		Select:     []string{"campaign_name", "spend"},
		Filters:    []Filter{{Column: "spend", Operator: OpGt, Value: 10}, {Column: "campaign_name", Operator: OpILike, Value: "%brand%"}},
		OrderBy:    "spend",
		Descending: true,
		Limit:      50,
	}, nil, testDialect{})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	want := `SELECT "ads_report"."campaign_name" AS "campaign_name", "ads_report"."spend" AS "spend" FROM "ads_report" WHERE "ads_report"."spend" > $1 AND "ads_report"."campaign_name" ILIKE $2 ORDER BY "ads_report"."spend" DESC LIMIT 50`
	if stmt.SQL != want {
		t.Fatalf("SQL =\n%s\nwant\n%s", stmt.SQL, want)
	}
	if !reflect.DeepEqual(stmt.Args, []any{10, "%brand%"}) {
		t.Fatalf("Args = %#v", stmt.Args)
	}
	if stmt.Objects != nil {
		t.Fatalf("Objects = %#v", stmt.Objects)
	}
}

func TestCompileDottedProjectionJoinsRelationOnce(t *testing.T) {
	stmt, err := Compile(Fetch{
		Table:   "amc_time_to_conversion",
		Select:  []string{"purchases", "execution.status", "execution.report_type"},
		Filters: []Filter{{Column: "execution.status", Operator: OpEq, Value: "SUCCEEDED"}},
	}, executionRelation, testDialect{})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	want := `SELECT "amc_time_to_conversion"."purchases" AS "purchases", obj(status="execution"."status",report_type="execution"."report_type") AS "execution" FROM "amc_time_to_conversion" LEFT JOIN "amc_executions" AS "execution" ON "execution"."execution_id" = "amc_time_to_conversion"."execution_id" WHERE "execution"."status" = $1`
	if stmt.SQL != want {
		t.Fatalf("SQL =\n%s\nwant\n%s", stmt.SQL, want)
	}
	if !stmt.Objects["execution"] {
		t.Fatalf("Objects = %#v", stmt.Objects)
	}
}

func TestCompileEmptyInMatchesNothing(t *testing.T) {
	stmt, err := Compile(Fetch{
		Table:   "ads_report",
		Filters: []Filter{{Column: "advertiser_id", Operator: OpIn, Value: []int64{}}},
	}, nil, testDialect{})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if !strings.HasSuffix(stmt.SQL, "WHERE 1 = 0") {
		t.Fatalf("SQL = %s", stmt.SQL)
	}
	if len(stmt.Args) != 0 {
		t.Fatalf("Args = %#v", stmt.Args)
	}
}

func TestCompileInExpandsSliceValues(t *testing.T) {
	stmt, err := Compile(Fetch{
		Table:   "ads_report",
		Filters: []Filter{{Column: "advertiser_id", Operator: OpIn, Value: []int64{7, 9}}},
	}, nil, testDialect{})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if !strings.Contains(stmt.SQL, `"ads_report"."advertiser_id" IN ($1, $2)`) {
		t.Fatalf("SQL = %s", stmt.SQL)
	}
	if !reflect.DeepEqual(stmt.Args, []any{int64(7), int64(9)}) {
		t.Fatalf("Args = %#v", stmt.Args)
	}
}

func TestCompileSelectAllWithDateRange(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stmt, err := Compile(Fetch{
		Table:   "ads_report",
		Filters: []Filter{{Column: "report_date", Operator: OpGte, Value: start}},
	}, nil, testDialect{})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if !strings.HasPrefix(stmt.SQL, `SELECT "ads_report".* FROM "ads_report"`) {
		t.Fatalf("SQL = %s", stmt.SQL)
	}
	if stmt.Args[0] != start {
		t.Fatalf("Args = %#v", stmt.Args)
	}
}

func TestCompileRejectsUnknownRelationAndOperator(t *testing.T) {
	if _, err := Compile(Fetch{Table: "ads_report", Select: []string{"campaign.name"}}, nil, testDialect{}); err == nil {
		t.Fatal("expected error for unknown relation")
	}
	if _, err := Compile(Fetch{Table: "ads_report", Filters: []Filter{{Column: "spend", Operator: "between", Value: 1}}}, nil, testDialect{}); err == nil {
		t.Fatal("expected error for unsupported operator")
	}
	if _, err := Compile(Fetch{}, nil, testDialect{}); err == nil {
		t.Fatal("expected error for missing table")
	}
}

func TestCompileQuotesHostileIdentifiers(t *testing.T) {
	stmt, err := Compile(Fetch{Table: `ads"; DROP TABLE x; --`, Select: []string{`a"b`}}, nil, testDialect{})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if !strings.Contains(stmt.SQL, `"ads""; DROP TABLE x; --"`) || !strings.Contains(stmt.SQL, `"a""b"`) {
		t.Fatalf("SQL = %s", stmt.SQL)
	}
}

func TestOperatorWhitelist(t *testing.T) {
	for _, raw := range []string{"eq", "GT", "lt", "gte", "lte", "like", "ILike", "in"} {
		if _, ok := ParseOperator(raw); !ok {
			t.Fatalf("ParseOperator(%q) rejected a whitelisted operator", raw)
		}
	}
	for _, raw := range []string{"neq", "between", "; drop", ""} {
		if _, ok := ParseOperator(raw); ok {
			t.Fatalf("ParseOperator(%q) accepted an unknown operator", raw)
		}
	}
}
