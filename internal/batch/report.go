package batch

import (
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/kopfenjager/Vision-crm-agent/constants"
)

const reportSheet = "Licenses"

// ReportHeaders are the spreadsheet columns, in order.
func ReportHeaders() []string {
	h := []string{"File", "Customer ID", "Face Image"}
	h = append(h, constants.AsStringSlice()...)
	return append(h, "Partial", "Stage", "Error", "Elapsed (ms)")
}

// WriteXLSX writes one row per result to w.
func WriteXLSX(w io.Writer, results []FileResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return err
	}

	headers := ReportHeaders()
	if err := f.SetSheetRow(reportSheet, "A1", &headers); err != nil {
		return err
	}

	for i, r := range results {
		row := make([]any, 0, len(headers))
		row = append(row, r.Path, r.CustomerID, faceCell(r))
		for _, field := range constants.AllFields() {
			v, _ := r.Record.Get(field)
			row = append(row, v)
		}
		row = append(row, strconv.FormatBool(r.Partial), string(r.Stage), r.Err, r.Elapsed.Milliseconds())

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(reportSheet, cell, &row); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(reportSheet, "A", "A", 48)
	_ = f.SetColWidth(reportSheet, "B", "B", 34)
	_ = f.SetColWidth(reportSheet, "C", "C", 40)
	last, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.SetColWidth(reportSheet, "D", last, 18)
	if err := f.AutoFilter(reportSheet, "A1:"+last+"1", nil); err != nil {
		return fmt.Errorf("xlsx filter: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func faceCell(r FileResult) string {
	if r.OK() && r.FaceImage == "" {
		return constants.FaceNotFound
	}
	return r.FaceImage
}
