package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	WarehouseDriverPostgres = "postgres"
	WarehouseDriverDuckDB   = "duckdb"
	WarehouseDriverNone     = "none"

	AIProviderOpenAI = "openai"
	AIProviderGemini = "gemini"
	AIProviderNone   = "none"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Warehouse     WarehouseConfig
	ChatStore     ChatStoreConfig
	ObjectStore   ObjectStoreConfig
	AI            AIConfig
	Agent         AgentConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type WarehouseConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type ChatStoreConfig struct {
	DSN         string
	AutoMigrate bool
}

type ObjectStoreConfig struct {
	ArchiveExports   bool
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type AIConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type AgentConfig struct {
	HistoryTurns int
	DefaultLimit int
	MaxLimit     int
	PreviewRows  int
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("AMCASSIST_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid AMCASSIST_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "AMCASSIST_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AMCASSIST_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "AMCASSIST_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "AMCASSIST_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "AMCASSIST_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AMCASSIST_WAREHOUSE_DRIVER", &cfg.Warehouse.Driver); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AMCASSIST_WAREHOUSE_DSN", &cfg.Warehouse.DSN); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "AMCASSIST_WAREHOUSE_MAX_OPEN_CONNS", &cfg.Warehouse.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "AMCASSIST_WAREHOUSE_MAX_IDLE_CONNS", &cfg.Warehouse.MaxIdleConns); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "AMCASSIST_WAREHOUSE_CONN_MAX_IDLE_TIME", &cfg.Warehouse.ConnMaxIdleTime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "AMCASSIST_WAREHOUSE_CONN_MAX_LIFETIME", &cfg.Warehouse.ConnMaxLifetime); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AMCASSIST_CHATSTORE_DSN", &cfg.ChatStore.DSN); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "AMCASSIST_CHATSTORE_AUTO_MIGRATE", &cfg.ChatStore.AutoMigrate); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "AMCASSIST_OBJECTSTORE_ARCHIVE_EXPORTS", &cfg.ObjectStore.ArchiveExports); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AMCASSIST_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AMCASSIST_OBJECTSTORE_REGION", &cfg.ObjectStore.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AMCASSIST_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AMCASSIST_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AMCASSIST_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "AMCASSIST_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AMCASSIST_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "AMCASSIST_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AMCASSIST_AI_PROVIDER", &cfg.AI.Provider); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AMCASSIST_AI_BASE_URL", &cfg.AI.BaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AMCASSIST_AI_API_KEY", &cfg.AI.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AMCASSIST_AI_MODEL", &cfg.AI.Model); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "AMCASSIST_AI_TEMPERATURE", &cfg.AI.Temperature); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "AMCASSIST_AI_TIMEOUT", &cfg.AI.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "AMCASSIST_AGENT_HISTORY_TURNS", &cfg.Agent.HistoryTurns); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "AMCASSIST_AGENT_DEFAULT_LIMIT", &cfg.Agent.DefaultLimit); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "AMCASSIST_AGENT_MAX_LIMIT", &cfg.Agent.MaxLimit); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "AMCASSIST_AGENT_PREVIEW_ROWS", &cfg.Agent.PreviewRows); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "AMCASSIST_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "AMCASSIST_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "AMCASSIST_AUTH_REQUIRED", &cfg.Auth.Required); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AMCASSIST_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys); err != nil {
		return Config{}, err
	}

	cfg.Warehouse.Driver = strings.ToLower(cfg.Warehouse.Driver)
	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	switch cfg.Warehouse.Driver {
	case WarehouseDriverPostgres, WarehouseDriverDuckDB:
		if cfg.Warehouse.DSN == "" {
			return Config{}, fmt.Errorf("warehouse dsn is required for driver %q", cfg.Warehouse.Driver)
		}
	case WarehouseDriverNone:
	default:
		return Config{}, fmt.Errorf("invalid AMCASSIST_WAREHOUSE_DRIVER: %q", cfg.Warehouse.Driver)
	}
	switch cfg.AI.Provider {
	case AIProviderOpenAI, AIProviderGemini, AIProviderNone:
	default:
		return Config{}, fmt.Errorf("invalid AMCASSIST_AI_PROVIDER: %q", cfg.AI.Provider)
	}
	if cfg.Agent.HistoryTurns < 0 {
		return Config{}, fmt.Errorf("agent history turns must be >= 0")
	}
	if cfg.Agent.DefaultLimit <= 0 || cfg.Agent.MaxLimit < cfg.Agent.DefaultLimit {
		return Config{}, fmt.Errorf("agent limits must satisfy 0 < default <= max")
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "amcassist-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Warehouse: WarehouseConfig{
			Driver:          WarehouseDriverNone,
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		ChatStore: ChatStoreConfig{
			DSN:         "file:amcassist-chats.db?_pragma=busy_timeout(5000)",
			AutoMigrate: true,
		},
		ObjectStore: ObjectStoreConfig{
			ArchiveExports:   false,
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "amcassist",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		AI: AIConfig{
			Provider:    AIProviderNone,
			BaseURL:     "https://api.openai.com",
			Model:       "gpt-5",
			Temperature: 0.1,
			Timeout:     30 * time.Second,
		},
		Agent: AgentConfig{
			HistoryTurns: 5,
			DefaultLimit: 100,
			MaxLimit:     1000,
			PreviewRows:  3,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.ChatStore.DSN = "file::memory:?cache=shared"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ChatStore.AutoMigrate = false
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
