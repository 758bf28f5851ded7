package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
)

const (
	pdfTitle        = "AMC Insights Service"
	pdfPreviewRows  = 20
	pdfCellMaxRunes = 20
	pdfTableWidth   = 190.0
)

func PDF(doc Document) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, pdfTitle, "", 1, "C", false, 0, "")
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 12)
	pdf.MultiCell(0, 10, tr("Query: "+doc.Question), "", "", false)
	pdf.Ln(5)

	pdf.SetFont("Arial", "", 11)
	pdf.MultiCell(0, 7, tr("Executive Summary:\n"+doc.Text), "", "", false)
	pdf.Ln(10)

	if doc.HasTable() && len(doc.Rows) > 0 {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 10, "Data Preview:", "", 1, "", false, 0, "")

		width := pdfTableWidth / float64(len(doc.Columns))
		pdf.SetFont("Arial", "B", 9)
		for _, column := range doc.Columns {
			pdf.CellFormat(width, 8, tr(column), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 9)
		for _, row := range previewRows(doc) {
			for _, value := range row {
				pdf.CellFormat(width, 8, tr(value), "1", 0, "", false, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// previewRows formats at most pdfPreviewRows rows for the report table.
func previewRows(doc Document) [][]string {
	rows := doc.Rows
	if len(rows) > pdfPreviewRows {
		rows = rows[:pdfPreviewRows]
	}
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		values := make([]string, len(doc.Columns))
		for i := range doc.Columns {
			values[i] = truncateCell(cellString(cell(row, i)))
		}
		out = append(out, values)
	}
	return out
}

func truncateCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= pdfCellMaxRunes {
		return s
	}
	return string(runes[:pdfCellMaxRunes-3]) + "..."
}
