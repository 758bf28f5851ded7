package scenario

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/amcassist/amcassist/internal/chart"
	"github.com/amcassist/amcassist/internal/warehouse"
)

// Default returns the built-in scenarios in classification priority order.
func Default() *Library {
	l, err := NewLibrary(
		CampaignAudit(),
		TimeToConversion(),
		GatewayProducts(),
		NewToBrand(),
		CrossChannelOverlap(),
		LifestyleSegments(),
		SpendTrend(),
		PerformanceDashboard(),
		ExecutionLog(),
		AdvertiserList(),
	)
	if err != nil {
		panic(fmt.Sprintf("built-in scenarios are invalid: %v", err))
	}
	return l
}

func CampaignAudit() Scenario {
	columns := []string{"campaign_name", "spend", "impressions", "clicks", "sales", "roas"}
	return Scenario{
		ID:       "campaign_audit",
		Title:    "Campaign efficiency audit",
		Summary:  "Campaigns returning less than one dollar of sales per dollar spent, highest spend first. Zero-sales campaigns are the clearest waste.",
		Keywords: []string{"audit", "wasted", "efficiency", "zero sales"},
		Columns:  columns,
		Chart:    &chart.Hint{Type: chart.Bar, X: "campaign_name", Y: "spend"},
		Fetch: func(Request) warehouse.Fetch {
			return warehouse.Fetch{
				Table:  "ads_report",
				Select: []string{"campaign_name", "spend", "impressions", "clicks", "sales"},
				Limit:  maxSourceRows,
			}
		},
		Shape: func(rows []warehouse.Row) [][]any {
			groups := aggregate(rows, "campaign_name", "spend", "impressions", "clicks", "sales")
			sortGroupsDesc(groups, "spend")
			out := make([][]any, 0)
			for _, g := range groups {
				spend, sales := g.sum("spend"), g.sum("sales")
				roas := ratio(sales, spend)
				if spend <= 0 || roas >= 1 {
					continue
				}
				out = append(out, []any{g.key, round2(spend), count(g.sum("impressions")), count(g.sum("clicks")), round2(sales), round2(roas)})
				if len(out) == 10 {
					break
				}
			}
			return out
		},
		Synthesize: func(_ Request, rng *rand.Rand) [][]any {
			out := make([][]any, 0, 5)
			for i := range 5 {
				spend := round2(1000 + rng.Float64()*4000)
				sales := 0.0
				if i >= 3 {
					sales = round2(spend * rng.Float64() * 0.8)
				}
				out = append(out, []any{
					fmt.Sprintf("Inefficient_Camp_%d", i+1),
					spend,
					int64(10000 + rng.IntN(40000)),
					int64(50 + rng.IntN(400)),
					sales,
					round2(ratio(sales, spend)),
				})
			}
			sortRowsDesc(out, 1)
			return out
		},
	}
}

var syntheticBuckets = []string{"0-1 days", "2-3 days", "4-7 days", "8-14 days", "15-21 days", "22-30 days", "31+ days"}

func TimeToConversion() Scenario {
	return Scenario{
		ID:       "time_to_conversion",
		Title:    "Time to conversion",
		Summary:  "Purchases by time elapsed between first ad exposure and conversion, from AMC time-to-conversion executions.",
		Keywords: []string{"time to conversion", "time-to-conversion", "conversion time", "days to convert", "conversion lag", "path to conversion"},
		Columns:  []string{"time_to_conversion_bucket", "purchases"},
		Chart:    &chart.Hint{Type: chart.Bar, X: "time_to_conversion_bucket", Y: "purchases"},
		Fetch: func(Request) warehouse.Fetch {
			return warehouse.Fetch{
				Table:  "amc_time_to_conversion",
				Select: []string{"time_to_conversion_bucket", "purchases"},
				Limit:  maxSourceRows,
			}
		},
		Shape: func(rows []warehouse.Row) [][]any {
			groups := aggregate(rows, "time_to_conversion_bucket", "purchases")
			bucketOrder(groups)
			out := make([][]any, 0, len(groups))
			for _, g := range groups {
				out = append(out, []any{g.key, count(g.sum("purchases"))})
			}
			return out
		},
		Synthesize: func(_ Request, rng *rand.Rand) [][]any {
			out := make([][]any, 0, len(syntheticBuckets))
			base := 800 + rng.IntN(400)
			for i, bucket := range syntheticBuckets {
				out = append(out, []any{bucket, int64(base / (i + 1))})
			}
			return out
		},
	}
}

func GatewayProducts() Scenario {
	return Scenario{
		ID:       "gateway_products",
		Title:    "Gateway products",
		Summary:  "Products new-to-brand customers bought first, ranked by new-to-brand purchases.",
		Keywords: []string{"gateway", "entry point", "first purchase"},
		Columns:  []string{"asin", "product_name", "ntb_purchases", "ntb_sales"},
		Chart:    &chart.Hint{Type: chart.Bar, X: "asin", Y: "ntb_purchases"},
		Fetch: func(Request) warehouse.Fetch {
			return warehouse.Fetch{
				Table:  "amc_ntb_gateway",
				Select: []string{"asin", "product_name", "ntb_purchases", "ntb_sales"},
				Limit:  maxSourceRows,
			}
		},
		Shape: func(rows []warehouse.Row) [][]any {
			groups := aggregate(rows, "asin", "ntb_purchases", "ntb_sales")
			sortGroupsDesc(groups, "ntb_purchases")
			out := make([][]any, 0)
			for _, g := range top(groups, 10) {
				out = append(out, []any{g.key, g.label("product_name"), count(g.sum("ntb_purchases")), round2(g.sum("ntb_sales"))})
			}
			return out
		},
		Synthesize: func(_ Request, rng *rand.Rand) [][]any {
			out := make([][]any, 0, 5)
			for i := range 5 {
				out = append(out, []any{
					fmt.Sprintf("B00%05d", 10000+rng.IntN(89999)),
					fmt.Sprintf("Product %d", i+1),
					int64(50 + rng.IntN(450)),
					round2(5000 + rng.Float64()*15000),
				})
			}
			sortRowsDesc(out, 2)
			return out
		},
	}
}

func NewToBrand() Scenario {
	return Scenario{
		ID:       "new_to_brand",
		Title:    "New-to-brand acquisition",
		Summary:  "New-to-brand purchases, sales and rate by product.",
		Keywords: []string{"new-to-brand", "new to brand", "ntb", "acquisition"},
		Columns:  []string{"asin", "product_name", "ntb_purchases", "ntb_sales", "ntb_rate"},
		Chart:    &chart.Hint{Type: chart.Bar, X: "product_name", Y: "ntb_purchases"},
		Fetch: func(Request) warehouse.Fetch {
			return warehouse.Fetch{
				Table:  "amc_new_to_brand",
				Select: []string{"asin", "product_name", "ntb_purchases", "ntb_sales", "ntb_rate"},
				Limit:  maxSourceRows,
			}
		},
		Shape: func(rows []warehouse.Row) [][]any {
			groups := aggregate(rows, "asin", "ntb_purchases", "ntb_sales", "ntb_rate")
			sortGroupsDesc(groups, "ntb_purchases")
			out := make([][]any, 0)
			for _, g := range top(groups, 10) {
				out = append(out, []any{g.key, g.label("product_name"), count(g.sum("ntb_purchases")), round2(g.sum("ntb_sales")), round2(g.mean("ntb_rate"))})
			}
			return out
		},
		Synthesize: func(_ Request, rng *rand.Rand) [][]any {
			out := make([][]any, 0, 6)
			for i := range 6 {
				out = append(out, []any{
					fmt.Sprintf("B0%07d", 1000000+rng.IntN(8999999)),
					fmt.Sprintf("Product %d", i+1),
					int64(20 + rng.IntN(600)),
					round2(1000 + rng.Float64()*25000),
					round2(0.2 + rng.Float64()*0.6),
				})
			}
			sortRowsDesc(out, 2)
			return out
		},
	}
}

var exposureGroups = []string{"sponsored_ads_only", "dsp_only", "both"}

func CrossChannelOverlap() Scenario {
	return Scenario{
		ID:       "cross_channel_overlap",
		Title:    "Sponsored Ads and DSP overlap",
		Summary:  "Users, purchases and conversion rate by ad exposure group across Sponsored Ads and DSP.",
		Keywords: []string{"overlap", "cross-channel", "cross channel", "dsp", "exposure"},
		Columns:  []string{"exposure_group", "users", "purchases", "conversion_rate"},
		Chart:    &chart.Hint{Type: chart.Bar, X: "exposure_group", Y: "users"},
		Fetch: func(Request) warehouse.Fetch {
			return warehouse.Fetch{
				Table:  "amc_sponsored_ads_dsp_overlap",
				Select: []string{"exposure_group", "users", "purchases"},
				Limit:  maxSourceRows,
			}
		},
		Shape: func(rows []warehouse.Row) [][]any {
			groups := aggregate(rows, "exposure_group", "users", "purchases")
			rank := map[string]int{}
			for i, name := range exposureGroups {
				rank[name] = i + 1
			}
			sortByRank(groups, rank)
			out := make([][]any, 0, len(groups))
			for _, g := range groups {
				users, purchases := g.sum("users"), g.sum("purchases")
				out = append(out, []any{g.key, count(users), count(purchases), round4(ratio(purchases, users))})
			}
			return out
		},
		Synthesize: func(_ Request, rng *rand.Rand) [][]any {
			out := make([][]any, 0, len(exposureGroups))
			for i, name := range exposureGroups {
				users := int64(20000/(i+1) + rng.IntN(5000))
				rate := 0.01 + 0.02*float64(i) + rng.Float64()*0.01
				purchases := int64(float64(users) * rate)
				out = append(out, []any{name, users, purchases, round4(ratio(float64(purchases), float64(users)))})
			}
			return out
		},
	}
}

var syntheticSegments = []string{"Fitness Enthusiasts", "Home Chefs", "Tech Early Adopters", "Outdoor Adventurers", "Pet Owners", "Parents of Young Children"}

func LifestyleSegments() Scenario {
	return Scenario{
		ID:       "lifestyle_segments",
		Title:    "Lifestyle segment sizing",
		Summary:  "Reachable audience size per Amazon lifestyle segment.",
		Keywords: []string{"lifestyle", "segment", "audience size"},
		Columns:  []string{"lifestyle_segment", "users"},
		Chart:    &chart.Hint{Type: chart.Bar, X: "lifestyle_segment", Y: "users"},
		Fetch: func(Request) warehouse.Fetch {
			return warehouse.Fetch{
				Table:  "amc_lifestyle_size",
				Select: []string{"lifestyle_segment", "users"},
				Limit:  maxSourceRows,
			}
		},
		Shape: func(rows []warehouse.Row) [][]any {
			groups := aggregate(rows, "lifestyle_segment", "users")
			sortGroupsDesc(groups, "users")
			out := make([][]any, 0)
			for _, g := range top(groups, 15) {
				out = append(out, []any{g.key, count(g.sum("users"))})
			}
			return out
		},
		Synthesize: func(_ Request, rng *rand.Rand) [][]any {
			out := make([][]any, 0, len(syntheticSegments))
			for _, segment := range syntheticSegments {
				out = append(out, []any{segment, int64(5000 + rng.IntN(95000))})
			}
			sortRowsDesc(out, 1)
			return out
		},
	}
}

func SpendTrend() Scenario {
	return Scenario{
		ID:       "spend_trend",
		Title:    "Spend and sales trend",
		Summary:  "Daily advertising spend and attributed sales.",
		Keywords: []string{"trend", "over time", "daily spend", "spend by day"},
		Columns:  []string{"report_date", "spend", "sales"},
		Chart:    &chart.Hint{Type: chart.Line, X: "report_date", Y: "spend"},
		Fetch: func(Request) warehouse.Fetch {
			return warehouse.Fetch{
				Table:   "ads_report",
				Select:  []string{"report_date", "spend", "sales"},
				OrderBy: "report_date",
				Limit:   maxSourceRows,
			}
		},
		Shape: func(rows []warehouse.Row) [][]any {
			groups := aggregate(rows, "report_date", "spend", "sales")
			sortByKey(groups)
			out := make([][]any, 0, len(groups))
			for _, g := range groups {
				out = append(out, []any{g.key, round2(g.sum("spend")), round2(g.sum("sales"))})
			}
			return out
		},
		Synthesize: func(req Request, rng *rand.Rand) [][]any {
			start, end := syntheticRange(req)
			out := make([][]any, 0)
			for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
				spend := round2(100 + rng.Float64()*4900)
				out = append(out, []any{day.Format(time.DateOnly), spend, round2(spend * (1.5 + rng.Float64()*3))})
			}
			return out
		},
	}
}

func PerformanceDashboard() Scenario {
	return Scenario{
		ID:       "performance_dashboard",
		Title:    "Performance dashboard",
		Summary:  "Top products by attributed sales with spend and ROAS.",
		Keywords: []string{"dashboard", "performance", "overview", "top products", "sales"},
		Columns:  []string{"product_name", "asin", "sales", "spend", "roas"},
		Chart:    &chart.Hint{Type: chart.Bar, X: "product_name", Y: "sales"},
		Fetch: func(Request) warehouse.Fetch {
			return warehouse.Fetch{
				Table:  "ads_report",
				Select: []string{"asin", "product_name", "sales", "spend"},
				Limit:  maxSourceRows,
			}
		},
		Shape: func(rows []warehouse.Row) [][]any {
			groups := aggregate(rows, "asin", "sales", "spend")
			sortGroupsDesc(groups, "sales")
			out := make([][]any, 0)
			for _, g := range top(groups, 10) {
				sales, spend := g.sum("sales"), g.sum("spend")
				out = append(out, []any{g.label("product_name"), g.key, round2(sales), round2(spend), round2(ratio(sales, spend))})
			}
			return out
		},
		Synthesize: func(_ Request, rng *rand.Rand) [][]any {
			out := make([][]any, 0, 8)
			for i := range 8 {
				spend := round2(500 + rng.Float64()*4500)
				sales := round2(spend * (0.5 + rng.Float64()*5))
				out = append(out, []any{
					fmt.Sprintf("Product %d", i+1),
					fmt.Sprintf("B0%07d", 1000000+rng.IntN(8999999)),
					sales,
					spend,
					round2(ratio(sales, spend)),
				})
			}
			sortRowsDesc(out, 2)
			return out
		},
	}
}

var executionColumns = []string{"execution_id", "report_type", "status", "time_window_start", "time_window_end", "created_at"}

func ExecutionLog() Scenario {
	return Scenario{
		ID:       "execution_log",
		Title:    "Workflow execution log",
		Summary:  "Most recent AMC workflow executions with their report type, status and covered window.",
		Keywords: []string{"execution", "logs", "workflow runs", "run history"},
		Columns:  executionColumns,
		Fetch: func(Request) warehouse.Fetch {
			return warehouse.Fetch{
				Table:      "amc_executions",
				Select:     append([]string(nil), executionColumns...),
				OrderBy:    "created_at",
				Descending: true,
				Limit:      50,
			}
		},
		Shape: func(rows []warehouse.Row) [][]any {
			return passthrough(rows, executionColumns)
		},
		Synthesize: func(req Request, rng *rand.Rand) [][]any {
			reportTypes := []string{"time_to_conversion", "ntb_gateway", "new_to_brand", "sponsored_ads_dsp_overlap", "lifestyle_size"}
			statuses := []string{"SUCCEEDED", "SUCCEEDED", "SUCCEEDED", "FAILED", "RUNNING"}
			start, end := syntheticRange(req)
			out := make([][]any, 0, len(reportTypes))
			for i, reportType := range reportTypes {
				created := end.Add(time.Duration(-i*6-rng.IntN(6)) * time.Hour)
				out = append(out, []any{
					int64(1000 + i),
					reportType,
					statuses[rng.IntN(len(statuses))],
					start.Format(time.DateOnly),
					end.Format(time.DateOnly),
					created.Format(time.RFC3339),
				})
			}
			return out
		},
	}
}

func AdvertiserList() Scenario {
	columns := []string{"instance_name", "instance_id"}
	return Scenario{
		ID:       "advertiser_list",
		Title:    "Advertisers",
		Summary:  "Advertiser instances available to this chat.",
		Keywords: []string{"advertisers", "advertiser list", "instances", "accounts"},
		Columns:  columns,
		Fetch: func(Request) warehouse.Fetch {
			return warehouse.Fetch{
				Table:   "amc_instances",
				Select:  append([]string(nil), columns...),
				OrderBy: "instance_name",
				Limit:   500,
			}
		},
		Shape: func(rows []warehouse.Row) [][]any {
			return passthrough(rows, columns)
		},
		Synthesize: func(req Request, _ *rand.Rand) [][]any {
			out := make([][]any, 0, len(SyntheticTenants))
			for _, tenant := range SyntheticTenants {
				if !req.Scope.IsGlobal() && tenant.Name != req.Scope.TenantName {
					continue
				}
				out = append(out, []any{tenant.Name, tenant.ID})
			}
			return out
		},
	}
}

func syntheticRange(req Request) (time.Time, time.Time) {
	if req.Window.Constrains() {
		start, end := req.Window.Start, req.Window.End
		if end.Sub(start) > 30*24*time.Hour {
			start = end.AddDate(0, 0, -30)
		}
		return start, end
	}
	y, m, d := time.Now().UTC().Date()
	end := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return end.AddDate(0, 0, -13), end
}
