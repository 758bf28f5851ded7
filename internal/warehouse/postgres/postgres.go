package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/amcassist/amcassist/internal/warehouse"
)

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("warehouse dsn is required")
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open warehouse db: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping warehouse db: %w", err)
	}

	return db, nil
}

// Dialect renders relations with json_build_object and binds $n
// placeholders.
type Dialect struct{}

func (Dialect) Name() string {
	return "postgres"
}

func (Dialect) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func (Dialect) Object(fields []warehouse.ObjectField) string {
	parts := make([]string, 0, len(fields)*2)
	for _, field := range fields {
		parts = append(parts, "'"+strings.ReplaceAll(field.Key, "'", "''")+"'", field.Expr)
	}
	return "json_build_object(" + strings.Join(parts, ", ") + ")"
}

func (Dialect) DecodeObject(value any) (map[string]any, error) {
	var raw []byte
	switch typed := value.(type) {
	case nil:
		return nil, nil
	case string:
		raw = []byte(typed)
	case []byte:
		raw = typed
	case map[string]any:
		return typed, nil
	default:
		return nil, fmt.Errorf("unexpected relation value %T", value)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func NewQuerier(db *sql.DB, relations warehouse.Relations) *warehouse.SQLQuerier {
	return warehouse.NewSQLQuerier(db, Dialect{}, relations)
}

func NewDirectory(db *sql.DB) *warehouse.SQLDirectory {
	return warehouse.NewSQLDirectory(db, Dialect{})
}
