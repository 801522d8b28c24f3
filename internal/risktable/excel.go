package risktable

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Stroke Risk"

// WriteXLSX writes the table as a single-sheet workbook with a styled header
// and the citation below the data.
func (t *Table) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", WrapText: true},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	headers := []any{ScoreColumn, IschemicColumn + " (%)", EmbolicColumn + " (%)"}
	if err := f.SetSheetRow(sheetName, "A1", &headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A1", "C1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	if err := f.SetColWidth(sheetName, "A", "C", 24); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	for i, r := range t.rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{r.Score, r.Ischemic.InexactFloat64(), r.Embolic.InexactFloat64()}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", r.Score, err)
		}
	}

	citationCell, err := excelize.CoordinatesToCellName(1, len(t.rows)+3)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheetName, citationCell, Citation); err != nil {
		return fmt.Errorf("write citation: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
