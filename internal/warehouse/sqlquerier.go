package warehouse

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLQuerier executes fetches against a database/sql handle. Backends
// provide the dialect; relation metadata comes from the catalog.
type SQLQuerier struct {
	db        *sql.DB
	dialect   Dialect
	relations Relations
}

func NewSQLQuerier(db *sql.DB, dialect Dialect, relations Relations) *SQLQuerier {
	return &SQLQuerier{db: db, dialect: dialect, relations: relations}
}

func (q *SQLQuerier) Ping(ctx context.Context) error {
	if q == nil || q.db == nil {
		return ErrUnavailable
	}
	if err := q.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s warehouse: %w", q.dialect.Name(), err)
	}
	return nil
}

func (q *SQLQuerier) Query(ctx context.Context, fetch Fetch) (Result, error) {
	if q == nil || q.db == nil {
		return Result{}, ErrUnavailable
	}
	stmt, err := Compile(fetch, q.relations, q.dialect)
	if err != nil {
		return Result{}, fmt.Errorf("compile fetch on %q: %w", fetch.Table, err)
	}

	rows, err := q.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return Result{}, fmt.Errorf("query %q: %w", fetch.Table, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("query columns: %w", err)
	}

	result := Result{Columns: columns, Rows: make([]Row, 0)}
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}

		row := make(Row, len(columns))
		for i, column := range columns {
			value := normalizeValue(values[i])
			if stmt.Objects[column] {
				object, err := q.dialect.DecodeObject(value)
				if err != nil {
					return Result{}, fmt.Errorf("decode relation %q: %w", column, err)
				}
				row[column] = object
				continue
			}
			row[column] = value
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	default:
		return typed
	}
}
