package export

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

var gridDays = []string{"MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY", "SATURDAY", "SUNDAY"}

// XLSXExporter renders a weekly grid per group: rows are time ranges, columns are days.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// Render builds the workbook and returns its bytes.
func (e *XLSXExporter) Render(data Timetable) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DCE4F0"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	cellStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return nil, fmt.Errorf("create cell style: %w", err)
	}

	sessions := data.Sorted()
	groups := data.Groups()
	if len(groups) == 0 {
		groups = []string{"Timetable"}
	}
	used := make(map[string]bool)
	for i, group := range groups {
		sheet := sheetName(group, used)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", sheet, err)
		}
		if err := writeGrid(f, sheet, group, sessions, headerStyle, cellStyle); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func writeGrid(f *excelize.File, sheet, group string, sessions []Session, headerStyle, cellStyle int) error {
	ranges := make(map[string]bool)
	cells := make(map[string][]string)
	for _, s := range sessions {
		if s.Group != group {
			continue
		}
		key := s.Start + "-" + s.End
		ranges[key] = true
		text := fmt.Sprintf("%s (%s)\n%s\n%s", s.Course, s.SessionType, s.Teacher, s.Space)
		cells[key+"|"+s.Day] = append(cells[key+"|"+s.Day], text)
	}
	rows := make([]string, 0, len(ranges))
	for r := range ranges {
		rows = append(rows, r)
	}
	sort.Strings(rows)

	if err := f.SetCellValue(sheet, "A1", "Time"); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, day := range gridDays {
		cell, _ := excelize.CoordinatesToCellName(i+2, 1)
		if err := f.SetCellValue(sheet, cell, titleCase(day)); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(gridDays)+1, 1)
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(gridDays) + 1)
	_ = f.SetColWidth(sheet, "A", "A", 14)
	_ = f.SetColWidth(sheet, "B", lastCol, 28)

	for r, timeRange := range rows {
		row := r + 2
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetCellValue(sheet, cell, timeRange); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
		for i, day := range gridDays {
			entries := cells[timeRange+"|"+day]
			if len(entries) == 0 {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(i+2, row)
			if err := f.SetCellValue(sheet, cell, strings.Join(entries, "\n\n")); err != nil {
				return fmt.Errorf("write cell: %w", err)
			}
			if err := f.SetCellStyle(sheet, cell, cell, cellStyle); err != nil {
				return fmt.Errorf("style cell: %w", err)
			}
		}
	}
	return nil
}

// sheetName strips characters Excel rejects and keeps names unique within 31 runes.
func sheetName(raw string, used map[string]bool) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '-'
		}
		return r
	}, strings.TrimSpace(raw))
	if cleaned == "" {
		cleaned = "Group"
	}
	runes := []rune(cleaned)
	if len(runes) > 28 {
		runes = runes[:28]
	}
	name := string(runes)
	for n := 2; used[strings.ToLower(name)]; n++ {
		name = fmt.Sprintf("%s~%d", string(runes), n)
	}
	used[strings.ToLower(name)] = true
	return name
}
