package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/amcassist/amcassist/internal/catalog"
	"github.com/amcassist/amcassist/internal/warehouse"
)

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), DBConfig{})
	if err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestQueryDecodesRelationObjects(t *testing.T) {
	db, mock := newSQLMock(t)
	querier := NewQuerier(db, catalog.Default())

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "amc_time_to_conversion"."time_to_conversion_bucket" AS "time_to_conversion_bucket", json_build_object('status', "execution"."status") AS "execution" FROM "amc_time_to_conversion" LEFT JOIN "amc_executions" AS "execution" ON "execution"."execution_id" = "amc_time_to_conversion"."execution_id" WHERE "amc_time_to_conversion"."execution_id" IN ($1, $2) LIMIT 10`)).
		WithArgs(int64(11), int64(12)).
		WillReturnRows(sqlmock.NewRows([]string{"time_to_conversion_bucket", "execution"}).
			AddRow("0-1 days", []byte(`{"status":"SUCCEEDED"}`)).
			AddRow("2-7 days", nil))

	result, err := querier.Query(context.Background(), warehouse.Fetch{
		Table:   "amc_time_to_conversion",
		Select:  []string{"time_to_conversion_bucket", "execution.status"},
		Filters: []warehouse.Filter{{Column: "execution_id", Operator: warehouse.OpIn, Value: []int64{11, 12}}},
		Limit:   10,
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	nested, ok := result.Rows[0]["execution"].(map[string]any)
	if !ok || nested["status"] != "SUCCEEDED" {
		t.Fatalf("execution = %#v", result.Rows[0]["execution"])
	}
	if result.Rows[1]["execution"] != nil && len(result.Rows[1]["execution"].(map[string]any)) != 0 {
		t.Fatalf("row1 execution = %#v", result.Rows[1]["execution"])
	}

	table := warehouse.Flatten(result)
	if table.ColumnIndex("execution.status") != 1 {
		t.Fatalf("flattened columns = %#v", table.Columns)
	}
	assertSQLMock(t, mock)
}

func TestQueryWrapsDriverErrors(t *testing.T) {
	db, mock := newSQLMock(t)
	querier := NewQuerier(db, catalog.Default())
	boom := errors.New("connection reset")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "amc_instances".* FROM "amc_instances" LIMIT 5`)).
		WillReturnError(boom)

	_, err := querier.Query(context.Background(), warehouse.Fetch{Table: "amc_instances", Limit: 5})
	if !errors.Is(err, boom) {
		t.Fatalf("Query() error = %v, want wrapped %v", err, boom)
	}
	assertSQLMock(t, mock)
}

func TestDirectoryInstanceIDsByName(t *testing.T) {
	db, mock := newSQLMock(t)
	directory := NewDirectory(db)

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT instance_id
FROM amc_instances
WHERE instance_name = $1
ORDER BY instance_id`)).
		WithArgs("Brand A (Electronics)").
		WillReturnRows(sqlmock.NewRows([]string{"instance_id"}).AddRow(int64(3)).AddRow(int64(8)))

	ids, err := directory.InstanceIDsByName(context.Background(), "Brand A (Electronics)")
	if err != nil {
		t.Fatalf("InstanceIDsByName() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 8 {
		t.Fatalf("ids = %#v", ids)
	}
	assertSQLMock(t, mock)
}

func TestDirectoryAdvertiserIDsByInstance(t *testing.T) {
	db, mock := newSQLMock(t)
	directory := NewDirectory(db)

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT DISTINCT advertiser_id
FROM amc_instance_advertisers
WHERE instance_id IN ($1, $2)
ORDER BY advertiser_id`)).
		WithArgs(int64(3), int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"advertiser_id"}).AddRow(int64(900)))

	ids, err := directory.AdvertiserIDsByInstance(context.Background(), []int64{3, 8})
	if err != nil {
		t.Fatalf("AdvertiserIDsByInstance() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != 900 {
		t.Fatalf("ids = %#v", ids)
	}

	none, err := directory.AdvertiserIDsByInstance(context.Background(), nil)
	if err != nil || len(none) != 0 {
		t.Fatalf("AdvertiserIDsByInstance(nil) = %#v, %v", none, err)
	}
	assertSQLMock(t, mock)
}

func TestDirectoryListTenants(t *testing.T) {
	db, mock := newSQLMock(t)
	directory := NewDirectory(db)

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT instance_id, instance_name
FROM amc_instances
ORDER BY instance_name, instance_id`)).
		WillReturnRows(sqlmock.NewRows([]string{"instance_id", "instance_name"}).
			AddRow(int64(1), "Brand A (Electronics)").
			AddRow(int64(2), "Global Corp"))

	tenants, err := directory.ListTenants(context.Background())
	if err != nil {
		t.Fatalf("ListTenants() error = %v", err)
	}
	if len(tenants) != 2 || tenants[1].Name != "Global Corp" {
		t.Fatalf("tenants = %#v", tenants)
	}
	assertSQLMock(t, mock)
}

func TestDecodeObject(t *testing.T) {
	object, err := Dialect{}.DecodeObject(`{"report_type":"new_to_brand"}`)
	if err != nil || object["report_type"] != "new_to_brand" {
		t.Fatalf("DecodeObject() = %#v, %v", object, err)
	}
	if _, err := (Dialect{}).DecodeObject(42); err == nil {
		t.Fatal("expected error for non-json relation value")
	}
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
