package api

import (
	"context"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/amcassist/amcassist/internal/catalog"
	"github.com/amcassist/amcassist/internal/explorer"
	"github.com/amcassist/amcassist/internal/scope"
	"github.com/amcassist/amcassist/internal/warehouse"
)

type fakeWarehouse struct {
	results map[string]warehouse.Result
	fetches []warehouse.Fetch
}

func (f *fakeWarehouse) Query(_ context.Context, fetch warehouse.Fetch) (warehouse.Result, error) {
	f.fetches = append(f.fetches, fetch)
	return f.results[fetch.Table], nil
}

func (f *fakeWarehouse) Ping(context.Context) error { return nil }

func (fakeTenants) InstanceIDsByName(_ context.Context, name string) ([]int64, error) {
	if name == "Acme" {
		return []int64{1}, nil
	}
	return nil, nil
}

func (fakeTenants) AdvertiserIDsByInstance(_ context.Context, ids []int64) ([]int64, error) {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		out = append(out, id+100)
	}
	return out, nil
}

func newDatasetDeps(t *testing.T, wh *fakeWarehouse) Dependencies {
	t.Helper()
	deps := newTestDeps(t)
	cat := catalog.Default()
	var querier warehouse.Querier
	if wh != nil {
		querier = wh
	}
	deps.Explorer = explorer.New(cat, scope.NewEnforcer(cat, fakeTenants{}, querier, nil), querier, nil)
	return deps
}

func TestListDatasets(t *testing.T) {
	h := NewHandler(testConfig(t, nil), newDatasetDeps(t, &fakeWarehouse{}))
	rr := do(h, http.MethodGet, "/v1/datasets", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	items := decodeBody(t, rr)["datasets"].([]any)
	if len(items) != len(catalog.Default().Tables()) {
		t.Fatalf("datasets = %d", len(items))
	}
	first := items[0].(map[string]any)
	if first["name"] != "ads_report" || first["tenant"] != "advertiser" {
		t.Fatalf("first dataset = %#v", first)
	}
	column := first["columns"].([]any)[0].(map[string]any)
	if column["name"] != "report_date" || column["type"] != "date" {
		t.Fatalf("column = %#v", column)
	}
}

func TestDatasetIsScopedToAdvertiser(t *testing.T) {
	wh := &fakeWarehouse{results: map[string]warehouse.Result{
		"ads_report": {
			Columns: []string{"report_date", "advertiser_id", "campaign_name", "clicks", "spend"},
			Rows: []warehouse.Row{
				{"report_date": time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), "advertiser_id": int64(101), "campaign_name": "Brand", "clicks": int64(12), "spend": 3.5},
				{"report_date": time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), "advertiser_id": int64(101), "campaign_name": "Brand", "clicks": int64(8), "spend": 1.5},
			},
		},
	}}
	h := NewHandler(testConfig(t, nil), newDatasetDeps(t, wh))

	rr := do(h, http.MethodGet, "/v1/datasets/ads_report?advertiser=Acme&limit=200", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if len(wh.fetches) != 1 {
		t.Fatalf("fetches = %#v", wh.fetches)
	}
	fetch := wh.fetches[0]
	want := []warehouse.Filter{{Column: "advertiser_id", Operator: warehouse.OpIn, Value: []int64{101}}}
	if fetch.Limit != 200 || !reflect.DeepEqual(fetch.Filters, want) {
		t.Fatalf("fetch = %#v", fetch)
	}

	ds := decodeBody(t, rr)["dataset"].(map[string]any)
	hint := ds["chart"].(map[string]any)
	if hint["type"] != "line" || hint["x"] != "report_date" || hint["y"] != "spend" {
		t.Fatalf("chart = %#v", hint)
	}
	kpis := ds["kpis"].([]any)
	if len(kpis) != 2 {
		t.Fatalf("kpis = %#v", kpis)
	}
	spend := kpis[1].(map[string]any)
	if spend["column"] != "spend" || spend["total"] != 5.0 {
		t.Fatalf("spend kpi = %#v", spend)
	}

	do(h, http.MethodGet, "/v1/datasets/ads_report", "")
	if global := wh.fetches[len(wh.fetches)-1]; len(global.Filters) != 0 || global.Limit != explorer.DefaultLimit {
		t.Fatalf("global fetch = %#v", global)
	}
}

func TestDatasetWithoutDatesDefaultsToBar(t *testing.T) {
	wh := &fakeWarehouse{results: map[string]warehouse.Result{
		"amc_ntb_gateway": {
			Columns: []string{"execution_id", "asin", "product_name", "ntb_purchases", "ntb_sales"},
			Rows: []warehouse.Row{
				{"execution_id": int64(7), "asin": "B001", "product_name": "Kettle", "ntb_purchases": int64(4), "ntb_sales": 80.0},
				{"execution_id": int64(7), "asin": "B002", "product_name": "Toaster", "ntb_purchases": int64(9), "ntb_sales": 120.0},
			},
		},
	}}
	h := NewHandler(testConfig(t, nil), newDatasetDeps(t, wh))

	rr := do(h, http.MethodGet, "/v1/datasets/amc_ntb_gateway", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	ds := decodeBody(t, rr)["dataset"].(map[string]any)
	hint := ds["chart"].(map[string]any)
	if hint["type"] != "bar" || hint["x"] != "asin" || hint["y"] != "ntb_sales" {
		t.Fatalf("chart = %#v", hint)
	}
	series := ds["series"].([]any)
	if top := series[0].(map[string]any); top["x"] != "B002" || top["y"] != 120.0 {
		t.Fatalf("series = %#v", series)
	}
}

func TestDatasetErrors(t *testing.T) {
	h := NewHandler(testConfig(t, nil), newDatasetDeps(t, &fakeWarehouse{}))
	if rr := do(h, http.MethodGet, "/v1/datasets/secret_table", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown dataset status = %d", rr.Code)
	}
	if rr := do(h, http.MethodGet, "/v1/datasets/ads_report?limit=zero", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", rr.Code)
	}

	offline := NewHandler(testConfig(t, nil), newDatasetDeps(t, nil))
	if rr := do(offline, http.MethodGet, "/v1/datasets/ads_report", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("offline status = %d", rr.Code)
	}

	bare := NewHandler(testConfig(t, nil), newTestDeps(t))
	if rr := do(bare, http.MethodGet, "/v1/datasets", ""); rr.Code != http.StatusNotImplemented {
		t.Fatalf("unconfigured status = %d", rr.Code)
	}
}
