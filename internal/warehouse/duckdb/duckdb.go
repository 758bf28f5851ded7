// Package duckdb serves the warehouse from a local DuckDB database file or
// from a directory of per-table parquet files.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/amcassist/amcassist/internal/warehouse"
)

// Open opens path as a DuckDB warehouse. When path is a directory every
// "<table>.parquet" file inside it is exposed as a view named <table>.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("warehouse path is required")
	}

	info, statErr := os.Stat(path)
	dsn := path
	if statErr == nil && info.IsDir() {
		dsn = ""
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	if dsn == "" {
		files, err := parquetTables(path)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if err := RegisterParquetViews(ctx, db, files); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

// RegisterParquetViews creates one view per table over its parquet files.
func RegisterParquetViews(ctx context.Context, db *sql.DB, files map[string][]string) error {
	tables := make([]string, 0, len(files))
	for table := range files {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	for _, table := range tables {
		paths := files[table]
		if len(paths) == 0 {
			continue
		}
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(table), quoteStringArray(paths))
		if _, err := db.ExecContext(ctx, viewSQL); err != nil {
			return fmt.Errorf("create view for table %q: %w", table, err)
		}
	}
	return nil
}

func parquetTables(dir string) (map[string][]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read warehouse dir: %w", err)
	}
	files := map[string][]string{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".parquet") {
			continue
		}
		table := strings.TrimSuffix(entry.Name(), ".parquet")
		if idx := strings.Index(table, "."); idx > 0 {
			// ads_report.2024-01.parquet feeds ads_report.
			table = table[:idx]
		}
		files[table] = append(files[table], filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

// Dialect renders relations with struct_pack and binds ? placeholders.
type Dialect struct{}

func (Dialect) Name() string {
	return "duckdb"
}

func (Dialect) Placeholder(int) string {
	return "?"
}

func (Dialect) Object(fields []warehouse.ObjectField) string {
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, quoteIdent(field.Key)+" := "+field.Expr)
	}
	return "struct_pack(" + strings.Join(parts, ", ") + ")"
}

func (Dialect) DecodeObject(value any) (map[string]any, error) {
	switch typed := value.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return typed, nil
	default:
		return nil, fmt.Errorf("unexpected relation value %T", value)
	}
}

func NewQuerier(db *sql.DB, relations warehouse.Relations) *warehouse.SQLQuerier {
	return warehouse.NewSQLQuerier(db, Dialect{}, relations)
}

func NewDirectory(db *sql.DB) *warehouse.SQLDirectory {
	return warehouse.NewSQLDirectory(db, Dialect{})
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}
