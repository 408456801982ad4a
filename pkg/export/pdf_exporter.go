package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

var pdfColumns = []struct {
	title string
	width float64
	value func(Session) string
}{
	{"Day", 28, func(s Session) string { return titleCase(s.Day) }},
	{"Time", 30, func(s Session) string { return s.Start + "-" + s.End }},
	{"Course", 70, func(s Session) string { return s.Course }},
	{"Type", 22, func(s Session) string { return s.SessionType }},
	{"Teacher", 65, func(s Session) string { return s.Teacher }},
	{"Learning Space", 62, func(s Session) string { return s.Space }},
}

// PDFExporter renders one landscape table per student group.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with a title page header and a table per group.
func (e *PDFExporter) Render(data Timetable) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetTitle(data.Title, false)

	sessions := data.Sorted()
	groups := data.Groups()
	if len(groups) == 0 {
		pdf.AddPage()
		e.title(pdf, data.Title)
		pdf.SetFont("Arial", "I", 10)
		pdf.CellFormat(0, 8, "No sessions scheduled", "", 1, "C", false, 0, "")
	}
	for _, group := range groups {
		pdf.AddPage()
		e.title(pdf, data.Title)
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 8, "Group "+group, "", 1, "L", false, 0, "")

		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(220, 228, 240)
		for _, col := range pdfColumns {
			pdf.CellFormat(col.width, 7, col.title, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 9)
		for _, s := range sessions {
			if s.Group != group {
				continue
			}
			for _, col := range pdfColumns {
				pdf.CellFormat(col.width, 6, col.value(s), "1", 0, "", false, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) title(pdf *gofpdf.Fpdf, title string) {
	if title == "" {
		return
	}
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
	pdf.Ln(2)
}
