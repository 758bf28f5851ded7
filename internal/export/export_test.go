package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/xuri/excelize/v2"

	"github.com/amcassist/amcassist/internal/agent"
)

func sampleDocument() Document {
	return Document{
		Question: "Analyze ROAS by Campaign",
		Text:     "Campaign B leads on ROAS.",
		Query:    "SELECT campaign, roas FROM campaign_performance",
		Columns:  []string{"campaign", "roas", "purchases"},
		Rows: [][]any{
			{"Campaign A", 2.5, int64(40)},
			{"Campaign B, Prime", 4.25, nil},
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" XLSX ")
	if err != nil || f != FormatXLSX {
		t.Fatalf("ParseFormat() = %q, %v", f, err)
	}
	if _, err := ParseFormat("docx"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
	if FormatPDF.ContentType() != "application/pdf" || FormatParquet.Extension() != "parquet" {
		t.Fatal("unexpected format metadata")
	}
}

func TestFromEnvelope(t *testing.T) {
	env := agent.Envelope{Text: "hi", Query: "SELECT 1", Columns: []string{"a"}, Rows: [][]any{{1}}}
	doc := FromEnvelope("q", env)
	if doc.Question != "q" || doc.Text != "hi" || doc.Query != "SELECT 1" || len(doc.Rows) != 1 {
		t.Fatalf("FromEnvelope() = %#v", doc)
	}
}

func TestCSV(t *testing.T) {
	data, err := CSV(sampleDocument())
	if err != nil {
		t.Fatalf("CSV() error = %v", err)
	}
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %#v", records)
	}
	if strings.Join(records[0], "|") != "campaign|roas|purchases" {
		t.Fatalf("header = %#v", records[0])
	}
	if records[1][1] != "2.5" || records[1][2] != "40" {
		t.Fatalf("row 1 = %#v", records[1])
	}
	if records[2][0] != "Campaign B, Prime" || records[2][2] != "" {
		t.Fatalf("row 2 = %#v", records[2])
	}
}

func TestXLSX(t *testing.T) {
	data, err := XLSX(sampleDocument())
	if err != nil {
		t.Fatalf("XLSX() error = %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(xlsxSheet)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 3 || rows[0][0] != "campaign" || rows[2][0] != "Campaign B, Prime" {
		t.Fatalf("rows = %#v", rows)
	}
	if rows[1][1] != "2.5" {
		t.Fatalf("roas cell = %q", rows[1][1])
	}
}

func TestPDFStartsWithHeader(t *testing.T) {
	data, err := PDF(sampleDocument())
	if err != nil {
		t.Fatalf("PDF() error = %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("pdf prefix = %q", data[:8])
	}

	textOnly := Document{Question: "Why did ROAS drop?", Text: "It did not."}
	if _, err := Render(textOnly, FormatPDF); err != nil {
		t.Fatalf("Render(pdf without table) error = %v", err)
	}
}

func TestPreviewRowsCapsAndTruncates(t *testing.T) {
	doc := Document{Columns: []string{"name", "value"}}
	for i := 0; i < 30; i++ {
		doc.Rows = append(doc.Rows, []any{strings.Repeat("x", 25), i})
	}
	rows := previewRows(doc)
	if len(rows) != pdfPreviewRows {
		t.Fatalf("preview rows = %d", len(rows))
	}
	if rows[0][0] != strings.Repeat("x", 17)+"..." {
		t.Fatalf("truncated cell = %q", rows[0][0])
	}
	if rows[3][1] != "3" {
		t.Fatalf("value cell = %q", rows[3][1])
	}
	if truncateCell("exactly twenty chars") != "exactly twenty chars" {
		t.Fatal("20-rune cell should not be truncated")
	}
}

type exportedRow struct {
	Campaign  *string  `parquet:"campaign"`
	ROAS      *float64 `parquet:"roas"`
	Purchases *int64   `parquet:"purchases"`
}

func TestParquet(t *testing.T) {
	data, err := Parquet(sampleDocument())
	if err != nil {
		t.Fatalf("Parquet() error = %v", err)
	}
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	kinds := map[string]parquet.Kind{}
	for _, field := range file.Schema().Fields() {
		kinds[field.Name()] = field.Type().Kind()
	}
	want := map[string]parquet.Kind{"campaign": parquet.ByteArray, "roas": parquet.Double, "purchases": parquet.Int64}
	for name, kind := range want {
		if got, ok := kinds[name]; !ok || got != kind {
			t.Fatalf("column %q kind = %v (present %v), want %v", name, got, ok, kind)
		}
	}

	reader := parquet.NewGenericReader[exportedRow](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()
	rows := make([]exportedRow, 2)
	count, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("reader.Read() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("read %d rows, want 2", count)
	}
	first := rows[0]
	if first.Campaign == nil || *first.Campaign != "Campaign A" || first.ROAS == nil || *first.ROAS != 2.5 || first.Purchases == nil || *first.Purchases != 40 {
		t.Fatalf("first row = %+v", first)
	}
	second := rows[1]
	if second.Campaign == nil || *second.Campaign != "Campaign B, Prime" || second.Purchases != nil {
		t.Fatalf("second row = %+v", second)
	}
}

func TestParquetMixedColumnFallsBackToString(t *testing.T) {
	doc := Document{Columns: []string{"value", "value"}, Rows: [][]any{{int64(1), "a"}, {"two", "b"}}}
	data, err := Parquet(doc)
	if err != nil {
		t.Fatalf("Parquet() error = %v", err)
	}
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	kinds := map[string]parquet.Kind{}
	for _, field := range file.Schema().Fields() {
		kinds[field.Name()] = field.Type().Kind()
	}
	if len(kinds) != 2 || kinds["value"] != parquet.ByteArray || kinds["value_2"] != parquet.ByteArray {
		t.Fatalf("kinds = %v", kinds)
	}
	if file.NumRows() != 2 {
		t.Fatalf("NumRows() = %d, want 2", file.NumRows())
	}
}

func TestRenderRequiresTableForTabularFormats(t *testing.T) {
	doc := Document{Question: "hello", Text: "Hi there"}
	for _, f := range []Format{FormatCSV, FormatXLSX, FormatParquet} {
		if _, err := Render(doc, f); err == nil {
			t.Fatalf("Render(%s) expected error without table", f)
		}
	}
}
