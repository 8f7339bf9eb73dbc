package occupancy

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/nir/leitos/internal/domain/ward"
)

const (
	occupiedSheet = "Ocupação"
	summarySheet  = "Resumo"
)

var (
	occupiedHeaders = []string{"Leito", "Tipo", "Categoria", "Paciente", "Entrada", "Permanência", "Admissão"}
	occupiedWidths  = []float64{14, 20, 16, 36, 14, 14, 38}
	summaryHeaders  = []string{"Categoria", "Total", "Ocupados", "Taxa (%)"}
	summaryWidths   = []float64{18, 10, 12, 12}
)

// ExportBedMap renders the bed map as an XLSX workbook with the occupied-bed
// table on the first sheet and per-category totals on the second.
func ExportBedMap(m *BedMap) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(occupiedSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(idx)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "#000000", Style: 1},
			{Type: "top", Color: "#000000", Style: 1},
			{Type: "bottom", Color: "#000000", Style: 1},
			{Type: "right", Color: "#000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeHeader(f, occupiedSheet, occupiedHeaders, occupiedWidths, headerStyle); err != nil {
		return nil, err
	}
	for i, r := range m.Table {
		row := []interface{}{r.Bed, r.Type, r.Slug, r.Patient, r.Entry, r.Permanence, r.AdmissionID}
		if err := writeRow(f, occupiedSheet, i+2, row); err != nil {
			return nil, err
		}
	}

	if err := writeHeader(f, summarySheet, summaryHeaders, summaryWidths, headerStyle); err != nil {
		return nil, err
	}
	rowNum := 2
	for _, c := range ward.Categories {
		st := m.Categories[c]
		row := []interface{}{string(c), st.Total, st.Occupied, OccupancyRate(st.Occupied, st.Total)}
		if err := writeRow(f, summarySheet, rowNum, row); err != nil {
			return nil, err
		}
		rowNum++
	}
	total, occupied := m.Categories.Sum()
	if err := writeRow(f, summarySheet, rowNum, []interface{}{"Total", total, occupied, OccupancyRate(occupied, total)}); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, widths []float64, style int) error {
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("failed to set header: %w", err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(sheet, col, col, widths[i]); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("failed to set cell %s: %w", cell, err)
		}
	}
	return nil
}
