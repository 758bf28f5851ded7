// Package seed generates a synthetic AMC warehouse as one parquet file per
// table, readable by the DuckDB warehouse driver.
package seed

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/amcassist/amcassist/internal/scenario"
)

type InstanceRow struct {
	InstanceID   int64  `parquet:"instance_id"`
	InstanceName string `parquet:"instance_name"`
}

type InstanceAdvertiserRow struct {
	InstanceID   int64 `parquet:"instance_id"`
	AdvertiserID int64 `parquet:"advertiser_id"`
}

type ExecutionRow struct {
	ExecutionID     int64     `parquet:"execution_id"`
	InstanceID      int64     `parquet:"instance_id"`
	ReportType      string    `parquet:"report_type"`
	Status          string    `parquet:"status"`
	TimeWindowStart time.Time `parquet:"time_window_start"`
	TimeWindowEnd   time.Time `parquet:"time_window_end"`
	CreatedAt       time.Time `parquet:"created_at"`
}

type TimeToConversionRow struct {
	ExecutionID int64  `parquet:"execution_id"`
	Bucket      string `parquet:"time_to_conversion_bucket"`
	Purchases   int64  `parquet:"purchases"`
	Users       int64  `parquet:"users"`
}

type GatewayRow struct {
	ExecutionID  int64   `parquet:"execution_id"`
	ASIN         string  `parquet:"asin"`
	ProductName  string  `parquet:"product_name"`
	NTBPurchases int64   `parquet:"ntb_purchases"`
	NTBSales     float64 `parquet:"ntb_sales"`
}

type NewToBrandRow struct {
	ExecutionID  int64   `parquet:"execution_id"`
	ASIN         string  `parquet:"asin"`
	ProductName  string  `parquet:"product_name"`
	NTBPurchases int64   `parquet:"ntb_purchases"`
	NTBSales     float64 `parquet:"ntb_sales"`
	NTBRate      float64 `parquet:"ntb_rate"`
}

type OverlapRow struct {
	ExecutionID    int64   `parquet:"execution_id"`
	ExposureGroup  string  `parquet:"exposure_group"`
	Users          int64   `parquet:"users"`
	Purchases      int64   `parquet:"purchases"`
	ConversionRate float64 `parquet:"conversion_rate"`
}

type LifestyleRow struct {
	ExecutionID      int64  `parquet:"execution_id"`
	LifestyleSegment string `parquet:"lifestyle_segment"`
	Users            int64  `parquet:"users"`
}

type AdsReportRow struct {
	ReportDate   time.Time `parquet:"report_date"`
	AdvertiserID int64     `parquet:"advertiser_id"`
	CampaignID   int64     `parquet:"campaign_id"`
	CampaignName string    `parquet:"campaign_name"`
	AdProduct    string    `parquet:"ad_product"`
	ASIN         string    `parquet:"asin"`
	ProductName  string    `parquet:"product_name"`
	Impressions  int64     `parquet:"impressions"`
	Clicks       int64     `parquet:"clicks"`
	Spend        float64   `parquet:"spend"`
	Sales        float64   `parquet:"sales"`
	Purchases    int64     `parquet:"purchases"`
	ROAS         float64   `parquet:"roas"`
}

// Dataset holds every generated table.
type Dataset struct {
	Instances           []InstanceRow
	InstanceAdvertisers []InstanceAdvertiserRow
	Executions          []ExecutionRow
	TimeToConversion    []TimeToConversionRow
	Gateway             []GatewayRow
	NewToBrand          []NewToBrandRow
	Overlap             []OverlapRow
	Lifestyle           []LifestyleRow
	AdsReport           []AdsReportRow
}

var (
	reportTypes = []string{"time_to_conversion", "ntb_gateway", "new_to_brand", "sponsored_ads_dsp_overlap", "lifestyle_size"}
	buckets     = []string{"0-1 days", "2-3 days", "4-7 days", "8-14 days", "15-21 days", "22-30 days", "31+ days"}
	groups      = []string{"sponsored_ads_only", "dsp_only", "both"}
	segments    = []string{"Fitness Enthusiasts", "Home Chefs", "Tech Early Adopters", "Outdoor Adventurers", "Pet Owners", "Parents of Young Children"}
	adProducts  = []string{"SPONSORED_PRODUCTS", "SPONSORED_BRANDS", "SPONSORED_DISPLAY"}
)

// advertiserOffset matches scenario.SyntheticDirectory.
const advertiserOffset = 100

const productsPerTenant = 5

type Generator struct {
	rnd *rand.Rand
	cfg Config
}

func NewGenerator(cfg Config) *Generator {
	return &Generator{
		rnd: rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)^0x9e3779b97f4a7c15)),
		cfg: cfg,
	}
}

// Generate builds the dataset for scenario.SyntheticTenants. The same config
// always yields the same rows.
func (g *Generator) Generate() Dataset {
	var ds Dataset
	end := g.cfg.EndDate.UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -(g.cfg.Days - 1))
	var executionID int64

	for _, tenant := range scenario.SyntheticTenants {
		advertiserID := tenant.ID + advertiserOffset
		ds.Instances = append(ds.Instances, InstanceRow{InstanceID: tenant.ID, InstanceName: tenant.Name})
		ds.InstanceAdvertisers = append(ds.InstanceAdvertisers, InstanceAdvertiserRow{InstanceID: tenant.ID, AdvertiserID: advertiserID})

		products := g.products(tenant.ID)
		ds.AdsReport = append(ds.AdsReport, g.adsReport(advertiserID, products, start, end)...)

		for _, reportType := range reportTypes {
			for i := 0; i < g.cfg.ExecutionsPerType; i++ {
				executionID++
				// Executions cover consecutive 30 day windows ending at end.
				windowEnd := end.AddDate(0, 0, -30*i)
				exec := ExecutionRow{
					ExecutionID:     executionID,
					InstanceID:      tenant.ID,
					ReportType:      reportType,
					Status:          g.status(),
					TimeWindowStart: windowEnd.AddDate(0, 0, -29),
					TimeWindowEnd:   windowEnd,
					CreatedAt:       windowEnd.Add(26 * time.Hour),
				}
				ds.Executions = append(ds.Executions, exec)
				if exec.Status != "SUCCEEDED" {
					continue
				}
				g.report(&ds, exec, products)
			}
		}
	}
	return ds
}

type product struct {
	asin string
	name string
}

func (g *Generator) products(instanceID int64) []product {
	out := make([]product, 0, productsPerTenant)
	for i := 0; i < productsPerTenant; i++ {
		out = append(out, product{
			asin: fmt.Sprintf("B0%02d%06d", instanceID, g.rnd.IntN(1000000)),
			name: fmt.Sprintf("Product %d-%d", instanceID, i+1),
		})
	}
	return out
}

func (g *Generator) status() string {
	p := g.rnd.IntN(100)
	switch {
	case p < 85:
		return "SUCCEEDED"
	case p < 95:
		return "FAILED"
	default:
		return "RUNNING"
	}
}

func (g *Generator) report(ds *Dataset, exec ExecutionRow, products []product) {
	id := exec.ExecutionID
	switch exec.ReportType {
	case "time_to_conversion":
		purchases := int64(2000 + g.rnd.IntN(3000))
		for _, bucket := range buckets {
			purchases = purchases * int64(55+g.rnd.IntN(30)) / 100
			ds.TimeToConversion = append(ds.TimeToConversion, TimeToConversionRow{
				ExecutionID: id,
				Bucket:      bucket,
				Purchases:   purchases,
				Users:       purchases * int64(80+g.rnd.IntN(20)) / 100,
			})
		}
	case "ntb_gateway":
		for _, p := range products {
			purchases := int64(50 + g.rnd.IntN(900))
			ds.Gateway = append(ds.Gateway, GatewayRow{
				ExecutionID:  id,
				ASIN:         p.asin,
				ProductName:  p.name,
				NTBPurchases: purchases,
				NTBSales:     round2(float64(purchases) * (15 + g.rnd.Float64()*60)),
			})
		}
	case "new_to_brand":
		for _, p := range products {
			purchases := int64(100 + g.rnd.IntN(1500))
			ds.NewToBrand = append(ds.NewToBrand, NewToBrandRow{
				ExecutionID:  id,
				ASIN:         p.asin,
				ProductName:  p.name,
				NTBPurchases: purchases,
				NTBSales:     round2(float64(purchases) * (15 + g.rnd.Float64()*60)),
				NTBRate:      round2(0.2 + g.rnd.Float64()*0.6),
			})
		}
	case "sponsored_ads_dsp_overlap":
		for _, group := range groups {
			users := int64(10000 + g.rnd.IntN(90000))
			rate := 0.01 + g.rnd.Float64()*0.05
			if group == "both" {
				rate *= 1.8
			}
			purchases := int64(float64(users) * rate)
			ds.Overlap = append(ds.Overlap, OverlapRow{
				ExecutionID:    id,
				ExposureGroup:  group,
				Users:          users,
				Purchases:      purchases,
				ConversionRate: round4(float64(purchases) / float64(users)),
			})
		}
	case "lifestyle_size":
		for _, segment := range segments {
			ds.Lifestyle = append(ds.Lifestyle, LifestyleRow{
				ExecutionID:      id,
				LifestyleSegment: segment,
				Users:            int64(50000 + g.rnd.IntN(950000)),
			})
		}
	}
}

func (g *Generator) adsReport(advertiserID int64, products []product, start, end time.Time) []AdsReportRow {
	type campaign struct {
		id      int64
		name    string
		adType  string
		product product
		// efficiency scales sales per dollar; some campaigns lose money.
		efficiency float64
	}
	campaigns := make([]campaign, 0, g.cfg.CampaignsPerTenant)
	for i := 0; i < g.cfg.CampaignsPerTenant; i++ {
		campaigns = append(campaigns, campaign{
			id:         advertiserID*1000 + int64(i+1),
			name:       fmt.Sprintf("Campaign_%d_%02d", advertiserID, i+1),
			adType:     pickOne(g.rnd, adProducts),
			product:    products[i%len(products)],
			efficiency: 0.3 + g.rnd.Float64()*4,
		})
	}

	var rows []AdsReportRow
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		for _, c := range campaigns {
			impressions := int64(1000 + g.rnd.IntN(20000))
			clicks := impressions * int64(1+g.rnd.IntN(4)) / 100
			spend := round2(float64(clicks) * (0.4 + g.rnd.Float64()*1.6))
			sales := round2(spend * c.efficiency * (0.7 + g.rnd.Float64()*0.6))
			roas := 0.0
			if spend > 0 {
				roas = round2(sales / spend)
			}
			rows = append(rows, AdsReportRow{
				ReportDate:   day,
				AdvertiserID: advertiserID,
				CampaignID:   c.id,
				CampaignName: c.name,
				AdProduct:    c.adType,
				ASIN:         c.product.asin,
				ProductName:  c.product.name,
				Impressions:  impressions,
				Clicks:       clicks,
				Spend:        spend,
				Sales:        sales,
				Purchases:    int64(sales / 35),
				ROAS:         roas,
			})
		}
	}
	return rows
}

func pickOne(rnd *rand.Rand, values []string) string {
	return values[rnd.IntN(len(values))]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
