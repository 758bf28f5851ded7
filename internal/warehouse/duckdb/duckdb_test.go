package duckdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/amcassist/amcassist/internal/catalog"
	"github.com/amcassist/amcassist/internal/warehouse"
)

type instanceRow struct {
	InstanceID   int64  `parquet:"instance_id"`
	InstanceName string `parquet:"instance_name"`
}

type executionRow struct {
	ExecutionID int64  `parquet:"execution_id"`
	InstanceID  int64  `parquet:"instance_id"`
	ReportType  string `parquet:"report_type"`
	Status      string `parquet:"status"`
}

func TestQueryReadsParquetDirectoryWithRelations(t *testing.T) {
	dir := t.TempDir()
	writeParquet(t, filepath.Join(dir, "amc_instances.parquet"), []instanceRow{
		{InstanceID: 1, InstanceName: "Brand A (Electronics)"},
		{InstanceID: 2, InstanceName: "Global Corp"},
	})
	writeParquet(t, filepath.Join(dir, "amc_executions.2024.parquet"), []executionRow{
		{ExecutionID: 10, InstanceID: 1, ReportType: "time_to_conversion", Status: "SUCCEEDED"},
		{ExecutionID: 11, InstanceID: 2, ReportType: "new_to_brand", Status: "FAILED"},
	})

	ctx := context.Background()
	db, err := Open(ctx, dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	querier := NewQuerier(db, catalog.Default())
	result, err := querier.Query(ctx, warehouse.Fetch{
		Table:   "amc_executions",
		Select:  []string{"execution_id", "report_type", "instance.instance_name"},
		Filters: []warehouse.Filter{{Column: "instance_id", Operator: warehouse.OpIn, Value: []int64{1}}},
		OrderBy: "execution_id",
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	table := warehouse.Flatten(result)
	if table.Len() != 1 {
		t.Fatalf("rows = %d", table.Len())
	}
	idx := table.ColumnIndex("instance.instance_name")
	if idx < 0 || table.Rows[0][idx] != "Brand A (Electronics)" {
		t.Fatalf("table = %#v", table)
	}

	ids, err := NewDirectory(db).InstanceIDsByName(ctx, "Global Corp")
	if err != nil {
		t.Fatalf("InstanceIDsByName() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("ids = %#v", ids)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestObjectUsesStructPack(t *testing.T) {
	got := Dialect{}.Object([]warehouse.ObjectField{{Key: "status", Expr: `"execution"."status"`}})
	if got != `struct_pack("status" := "execution"."status")` {
		t.Fatalf("Object() = %s", got)
	}
}

func writeParquet[T any](t *testing.T, path string, rows []T) {
	t.Helper()
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(rows); err != nil {
		t.Fatalf("write parquet: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close parquet writer: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
}
