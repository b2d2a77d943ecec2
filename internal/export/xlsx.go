package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/RMahshie/smuacq/internal/acquisition"
)

// SheetName is the worksheet the measurement table is written to
const SheetName = "Measurements"

// WriteXLSX writes the same table as WriteCSV into a single-sheet workbook
// Values are stored as numbers; a missing value leaves its cell empty
func WriteXLSX(w io.Writer, res *acquisition.Result) error {
	if res == nil || len(res.Columns) == 0 {
		return ErrNoData
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	header := make([]any, len(res.Columns))
	for i, q := range res.Columns {
		header[i] = q.Label()
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("writing xlsx header: %w", err)
	}

	rowNum := 2
	for _, s := range res.Samples {
		row := make([]any, len(res.Columns))
		for i, q := range res.Columns {
			if v, ok := s[q]; ok {
				row[i] = v
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("writing xlsx row %d: %w", rowNum, err)
		}
		rowNum++
	}

	if trailer, ok := Trailer(res); ok {
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		if err := f.SetCellStr(SheetName, cell, trailer); err != nil {
			return fmt.Errorf("writing xlsx trailer: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing xlsx: %w", err)
	}
	return nil
}
