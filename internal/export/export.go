// Package export renders an assistant turn as a downloadable file.
package export

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/amcassist/amcassist/internal/agent"
)

type Format string

const (
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatPDF     Format = "pdf"
	FormatParquet Format = "parquet"
)

func Formats() []Format {
	return []Format{FormatCSV, FormatXLSX, FormatPDF, FormatParquet}
}

func ParseFormat(raw string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Formats() {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported export format %q", raw)
}

func (f Format) Extension() string {
	return string(f)
}

func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// Document is everything an export needs from a turn.
type Document struct {
	Question string
	Text     string
	Query    string
	Columns  []string
	Rows     [][]any
}

// FromEnvelope pairs an assistant reply with the question that produced it.
func FromEnvelope(question string, env agent.Envelope) Document {
	return Document{
		Question: question,
		Text:     env.Text,
		Query:    env.Query,
		Columns:  env.Columns,
		Rows:     env.Rows,
	}
}

func (d Document) HasTable() bool {
	return len(d.Columns) > 0
}

// Render encodes doc in format f. Tabular formats require a result table.
func Render(doc Document, f Format) ([]byte, error) {
	if f != FormatPDF && !doc.HasTable() {
		return nil, fmt.Errorf("%s export requires a result table", f)
	}
	switch f {
	case FormatCSV:
		return CSV(doc)
	case FormatXLSX:
		return XLSX(doc)
	case FormatPDF:
		return PDF(doc)
	case FormatParquet:
		return Parquet(doc)
	default:
		return nil, fmt.Errorf("unsupported export format %q", f)
	}
}

func cellString(v any) string {
	switch v.(type) {
	case nil:
		return ""
	case map[string]any, []any:
		return fmt.Sprint(v)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

func cell(row []any, i int) any {
	if i < len(row) {
		return row[i]
	}
	return nil
}
