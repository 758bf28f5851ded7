package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLDirectory resolves tenant names and join keys from the reference
// tables amc_instances and amc_instance_advertisers.
type SQLDirectory struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLDirectory(db *sql.DB, dialect Dialect) *SQLDirectory {
	return &SQLDirectory{db: db, dialect: dialect}
}

func (d *SQLDirectory) InstanceIDsByName(ctx context.Context, name string) ([]int64, error) {
	query := `
SELECT instance_id
FROM amc_instances
WHERE instance_name = ` + d.dialect.Placeholder(1) + `
ORDER BY instance_id`
	return d.queryIDs(ctx, query, "lookup instances by name", name)
}

func (d *SQLDirectory) AdvertiserIDsByInstance(ctx context.Context, instanceIDs []int64) ([]int64, error) {
	if len(instanceIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, 0, len(instanceIDs))
	args := make([]any, 0, len(instanceIDs))
	for i, id := range instanceIDs {
		placeholders = append(placeholders, d.dialect.Placeholder(i+1))
		args = append(args, id)
	}
	query := `
SELECT DISTINCT advertiser_id
FROM amc_instance_advertisers
WHERE instance_id IN (` + strings.Join(placeholders, ", ") + `)
ORDER BY advertiser_id`
	return d.queryIDs(ctx, query, "lookup advertisers by instance", args...)
}

func (d *SQLDirectory) ListTenants(ctx context.Context) ([]Tenant, error) {
	query := `
SELECT instance_id, instance_name
FROM amc_instances
ORDER BY instance_name, instance_id`
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tenants := make([]Tenant, 0)
	for rows.Next() {
		var tenant Tenant
		if err := rows.Scan(&tenant.ID, &tenant.Name); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}
	return tenants, nil
}

func (d *SQLDirectory) queryIDs(ctx context.Context, query, action string, args ...any) ([]int64, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", action, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", action, err)
	}
	return ids, nil
}
