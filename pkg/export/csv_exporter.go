package export

import (
	"fmt"

	"github.com/gocarina/gocsv"
)

// CSVExporter renders timetables as CSV.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes, one line per session after the header.
func (e *CSVExporter) Render(data Timetable) ([]byte, error) {
	rows := data.Sorted()
	for i := range rows {
		rows[i].Day = titleCase(rows[i].Day)
	}
	out, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return out, nil
}
