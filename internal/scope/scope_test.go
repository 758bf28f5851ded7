package scope

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/amcassist/amcassist/internal/catalog"
	"github.com/amcassist/amcassist/internal/observability"
	"github.com/amcassist/amcassist/internal/warehouse"
)

type fakeDirectory struct {
	instances   map[string][]int64
	advertisers map[int64][]int64
	err         error
	calls       int
}

func (f *fakeDirectory) InstanceIDsByName(_ context.Context, name string) ([]int64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.instances[name], nil
}

func (f *fakeDirectory) AdvertiserIDsByInstance(_ context.Context, ids []int64) ([]int64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []int64
	for _, id := range ids {
		out = append(out, f.advertisers[id]...)
	}
	return out, nil
}

func (f *fakeDirectory) ListTenants(context.Context) ([]warehouse.Tenant, error) {
	return nil, f.err
}

type fakeQuerier struct {
	fetches []warehouse.Fetch
	result  warehouse.Result
	err     error
}

func (f *fakeQuerier) Query(_ context.Context, fetch warehouse.Fetch) (warehouse.Result, error) {
	f.fetches = append(f.fetches, fetch)
	return f.result, f.err
}

func (f *fakeQuerier) Ping(context.Context) error { return f.err }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t
}

func TestResolveEmptySelectionIsGlobal(t *testing.T) {
	dir := &fakeDirectory{}
	s, err := NewResolver(dir, quietLogger()).Resolve(context.Background(), []string{" ", ""})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !s.IsGlobal() || s.Mode != ModeGlobal {
		t.Fatalf("scope = %#v", s)
	}
	if dir.calls != 0 {
		t.Fatalf("directory calls = %d, want 0", dir.calls)
	}
}

func TestResolveHonorsFirstNameOnly(t *testing.T) {
	dir := &fakeDirectory{instances: map[string][]int64{"Brand A (Electronics)": {1, 5}}}
	s, err := NewResolver(dir, quietLogger()).Resolve(context.Background(), []string{"Brand A (Electronics)", "Global Corp"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if s.Mode != ModeInstance || s.TenantName != "Brand A (Electronics)" {
		t.Fatalf("scope = %#v", s)
	}
	if !reflect.DeepEqual(s.TenantIDs, []int64{1, 5}) {
		t.Fatalf("TenantIDs = %#v", s.TenantIDs)
	}
	if !reflect.DeepEqual(s.Ignored, []string{"Global Corp"}) {
		t.Fatalf("Ignored = %#v", s.Ignored)
	}
}

func TestResolveZeroMatchesFiltersToNothing(t *testing.T) {
	dir := &fakeDirectory{instances: map[string][]int64{}}
	s, err := NewResolver(dir, quietLogger()).Resolve(context.Background(), []string{"Unknown Brand"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if s.IsGlobal() || len(s.TenantIDs) != 0 {
		t.Fatalf("scope = %#v", s)
	}
	filters := TenantFilters("instance_id", s)
	if len(filters) != 1 || len(warehouse.ListValues(filters[0].Value)) != 0 {
		t.Fatalf("filters = %#v", filters)
	}
}

func TestResolveDirectoryFailureNeverWidens(t *testing.T) {
	boom := errors.New("directory down")
	s, err := NewResolver(&fakeDirectory{err: boom}, quietLogger()).Resolve(context.Background(), []string{"Brand B (Fashion)"})
	if !errors.Is(err, boom) {
		t.Fatalf("Resolve() error = %v", err)
	}
	if s.IsGlobal() || len(s.TenantIDs) != 0 {
		t.Fatalf("scope widened on failure: %#v", s)
	}

	s, err = NewResolver(nil, quietLogger()).Resolve(context.Background(), []string{"Brand B (Fashion)"})
	if !errors.Is(err, ErrNoDirectory) || s.IsGlobal() {
		t.Fatalf("Resolve() without directory = %#v, %v", s, err)
	}
}

func TestGlobalScopeAttachesNoTenantFilter(t *testing.T) {
	if filters := TenantFilters("instance_id", Global()); len(filters) != 0 {
		t.Fatalf("filters = %#v", filters)
	}
	if filters := TenantFilters("instance_id", Scope{}); len(filters) != 0 {
		t.Fatalf("zero scope filters = %#v", filters)
	}
}

func TestOverlapFilters(t *testing.T) {
	w := NewDateWindow(day("2024-01-01"), day("2024-01-31"))
	filters := OverlapFilters("time_window_start", "time_window_end", w)
	want := []warehouse.Filter{
		{Column: "time_window_start", Operator: warehouse.OpLte, Value: day("2024-01-31")},
		{Column: "time_window_end", Operator: warehouse.OpGte, Value: day("2024-01-01")},
	}
	if !reflect.DeepEqual(filters, want) {
		t.Fatalf("filters = %#v", filters)
	}

	if got := OverlapFilters("a", "b", DateWindow{Start: day("2024-01-01")}); got != nil {
		t.Fatalf("half-open window filters = %#v", got)
	}
}

func TestInvertedWindowIsUnconstrained(t *testing.T) {
	w := NewDateWindow(day("2024-02-01"), day("2024-01-01"))
	if !w.Inverted() || w.Constrains() {
		t.Fatalf("window = %#v", w)
	}
	if got := OverlapFilters("a", "b", w); got != nil {
		t.Fatalf("overlap filters = %#v", got)
	}
	if got := RangeFilters("report_date", w); got != nil {
		t.Fatalf("range filters = %#v", got)
	}
}

func TestDateWindowJSON(t *testing.T) {
	w := NewDateWindow(day("2024-03-01"), day("2024-03-31"))
	raw, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(raw) != `{"start":"2024-03-01","end":"2024-03-31"}` {
		t.Fatalf("json = %s", raw)
	}
	var decoded DateWindow
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !decoded.Start.Equal(w.Start) || !decoded.End.Equal(w.End) {
		t.Fatalf("decoded = %#v", decoded)
	}
	if err := json.Unmarshal([]byte(`{"start":"March"}`), &decoded); err == nil {
		t.Fatal("expected error for invalid date")
	}
}

func TestLastDays(t *testing.T) {
	w := LastDays(time.Date(2024, 5, 30, 15, 4, 0, 0, time.UTC), 30)
	if w.Start.Format(time.DateOnly) != "2024-05-01" || w.End.Format(time.DateOnly) != "2024-05-30" {
		t.Fatalf("window = %s", w.Describe())
	}
}

func TestConstrainAdvertiserTable(t *testing.T) {
	dir := &fakeDirectory{advertisers: map[int64][]int64{1: {900, 901}}}
	enforcer := NewEnforcer(catalog.Default(), dir, &fakeQuerier{}, quietLogger())
	s := Scope{Mode: ModeInstance, TenantName: "Brand A (Electronics)", TenantIDs: []int64{1}}
	w := NewDateWindow(day("2024-01-01"), day("2024-01-31"))

	out, err := enforcer.Constrain(context.Background(), warehouse.Fetch{Table: "ads_report"}, s, w)
	if err != nil {
		t.Fatalf("Constrain() error = %v", err)
	}
	want := []warehouse.Filter{
		{Column: "advertiser_id", Operator: warehouse.OpIn, Value: []int64{900, 901}},
		{Column: "report_date", Operator: warehouse.OpGte, Value: day("2024-01-01")},
		{Column: "report_date", Operator: warehouse.OpLte, Value: day("2024-01-31")},
	}
	if !reflect.DeepEqual(out.Filters, want) {
		t.Fatalf("filters = %#v", out.Filters)
	}
}

func TestConstrainGlobalUnboundedLeavesFetchUntouched(t *testing.T) {
	q := &fakeQuerier{}
	enforcer := NewEnforcer(catalog.Default(), &fakeDirectory{}, q, quietLogger())
	for _, table := range []string{"ads_report", "amc_instances", "amc_executions", "amc_time_to_conversion"} {
		out, err := enforcer.Constrain(context.Background(), warehouse.Fetch{Table: table}, Global(), DateWindow{})
		if err != nil {
			t.Fatalf("Constrain(%s) error = %v", table, err)
		}
		if len(out.Filters) != 0 {
			t.Fatalf("Constrain(%s) filters = %#v", table, out.Filters)
		}
	}
	if len(q.fetches) != 0 {
		t.Fatalf("unexpected execution lookups: %#v", q.fetches)
	}
}

func TestConstrainExecutionTableResolvesExecutions(t *testing.T) {
	q := &fakeQuerier{result: warehouse.Result{Rows: []warehouse.Row{{"execution_id": int64(10)}, {"execution_id": "11"}}}}
	enforcer := NewEnforcer(catalog.Default(), &fakeDirectory{}, q, quietLogger())
	s := Scope{Mode: ModeInstance, TenantName: "Global Corp", TenantIDs: []int64{4}}
	w := NewDateWindow(day("2024-01-01"), day("2024-01-31"))

	out, err := enforcer.Constrain(context.Background(), warehouse.Fetch{Table: "amc_time_to_conversion"}, s, w)
	if err != nil {
		t.Fatalf("Constrain() error = %v", err)
	}
	if !reflect.DeepEqual(out.Filters, []warehouse.Filter{{Column: "execution_id", Operator: warehouse.OpIn, Value: []int64{10, 11}}}) {
		t.Fatalf("filters = %#v", out.Filters)
	}

	if len(q.fetches) != 1 {
		t.Fatalf("lookups = %d", len(q.fetches))
	}
	lookup := q.fetches[0]
	wantLookup := []warehouse.Filter{
		{Column: "instance_id", Operator: warehouse.OpIn, Value: []int64{4}},
		{Column: "time_window_start", Operator: warehouse.OpLte, Value: day("2024-01-31")},
		{Column: "time_window_end", Operator: warehouse.OpGte, Value: day("2024-01-01")},
		{Column: "report_type", Operator: warehouse.OpEq, Value: "time_to_conversion"},
	}
	if lookup.Table != "amc_executions" || !reflect.DeepEqual(lookup.Filters, wantLookup) {
		t.Fatalf("lookup = %#v", lookup)
	}
}

func TestConstrainFailureMatchesNothing(t *testing.T) {
	boom := errors.New("warehouse down")
	enforcer := NewEnforcer(catalog.Default(), &fakeDirectory{err: boom}, &fakeQuerier{err: boom}, quietLogger())
	s := Scope{Mode: ModeInstance, TenantName: "Brand C (Home & Kitchen)", TenantIDs: []int64{3}}

	for _, table := range []string{"ads_report", "amc_new_to_brand"} {
		out, err := enforcer.Constrain(context.Background(), warehouse.Fetch{Table: table}, s, DateWindow{})
		if !errors.Is(err, boom) {
			t.Fatalf("Constrain(%s) error = %v", table, err)
		}
		last := out.Filters[len(out.Filters)-1]
		if last.Operator != warehouse.OpIn || len(warehouse.ListValues(last.Value)) != 0 {
			t.Fatalf("Constrain(%s) did not fail closed: %#v", table, out.Filters)
		}
	}
}

func TestConstrainRejectsUnknownTable(t *testing.T) {
	enforcer := NewEnforcer(catalog.Default(), nil, nil, quietLogger())
	if _, err := enforcer.Constrain(context.Background(), warehouse.Fetch{Table: "secret_table"}, Global(), DateWindow{}); !errors.Is(err, ErrUnknownTable) {
		t.Fatalf("Constrain() error = %v", err)
	}
}

func TestConstrainDoesNotMutateInput(t *testing.T) {
	enforcer := NewEnforcer(catalog.Default(), nil, nil, quietLogger())
	in := warehouse.Fetch{Table: "amc_instances", Filters: make([]warehouse.Filter, 0, 4)}
	s := Scope{Mode: ModeInstance, TenantIDs: []int64{2}}
	if _, err := enforcer.Constrain(context.Background(), in, s, DateWindow{}); err != nil {
		t.Fatalf("Constrain() error = %v", err)
	}
	if len(in.Filters) != 0 || len(in.Filters[:cap(in.Filters)][0].Column) != 0 {
		t.Fatalf("input fetch mutated: %#v", in.Filters[:cap(in.Filters)])
	}
}

func TestScopeWarningsCarryTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := observability.ContextWithTraceID(context.Background(), "trace-42")

	dir := &fakeDirectory{instances: map[string][]int64{"Acme": {1}}}
	if _, err := NewResolver(dir, logger).Resolve(ctx, []string{"Acme", "Globex"}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	inverted := DateWindow{
		Start: time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	enforcer := NewEnforcer(catalog.Default(), dir, nil, logger)
	if _, err := enforcer.Constrain(ctx, warehouse.Fetch{Table: "amc_instances"}, Global(), inverted); err != nil {
		t.Fatalf("Constrain() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %q", lines)
	}
	for _, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if entry["trace_id"] != "trace-42" {
			t.Fatalf("entry = %#v", entry)
		}
	}
	if !strings.Contains(lines[1], `"start":"2024-06-30"`) {
		t.Fatalf("window log = %s", lines[1])
	}
}

func TestNilLoggersAreSafe(t *testing.T) {
	if NewResolver(nil, nil).logger == nil || NewEnforcer(catalog.Default(), nil, nil, nil).logger == nil {
		t.Fatal("constructors should install a logger")
	}
}
