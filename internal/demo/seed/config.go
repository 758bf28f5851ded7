package seed

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	OutputDir string
	Seed      int64
	Days      int
	// EndDate is the last day of generated ads_report rows.
	EndDate            time.Time
	CampaignsPerTenant int
	ExecutionsPerType  int
	Overwrite          bool
}

func DefaultConfig() Config {
	return Config{
		OutputDir:          "./data/warehouse",
		Seed:               42,
		Days:               90,
		EndDate:            time.Now().UTC().Truncate(24 * time.Hour),
		CampaignsPerTenant: 6,
		ExecutionsPerType:  3,
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyString(lookup, "AMCASSIST_DEMO_OUTPUT_DIR", &cfg.OutputDir); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "AMCASSIST_DEMO_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "AMCASSIST_DEMO_DAYS", &cfg.Days); err != nil {
		return Config{}, err
	}
	if err := applyDate(lookup, "AMCASSIST_DEMO_END_DATE", &cfg.EndDate); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "AMCASSIST_DEMO_CAMPAIGNS_PER_TENANT", &cfg.CampaignsPerTenant); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "AMCASSIST_DEMO_EXECUTIONS_PER_TYPE", &cfg.ExecutionsPerType); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "AMCASSIST_DEMO_OVERWRITE", &cfg.Overwrite); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.OutputDir) == "" {
		return Config{}, fmt.Errorf("AMCASSIST_DEMO_OUTPUT_DIR is required")
	}
	if cfg.Days <= 0 {
		return Config{}, fmt.Errorf("AMCASSIST_DEMO_DAYS must be > 0")
	}
	if cfg.CampaignsPerTenant <= 0 {
		return Config{}, fmt.Errorf("AMCASSIST_DEMO_CAMPAIGNS_PER_TENANT must be > 0")
	}
	if cfg.ExecutionsPerType <= 0 {
		return Config{}, fmt.Errorf("AMCASSIST_DEMO_EXECUTIONS_PER_TYPE must be > 0")
	}
	return cfg, nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDate(lookup LookupFunc, key string, dst *time.Time) error {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	v, err := time.Parse(time.DateOnly, strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v.UTC()
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
