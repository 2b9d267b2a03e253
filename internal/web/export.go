package web

import (
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/sweeney/outlet-monitor/internal/logic"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const xlsxSheet = "Power"

// WriteXLSX writes entries as a spreadsheet with one row per slot.
func WriteXLSX(w io.Writer, entries []logic.Entry, loc *time.Location) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return err
	}
	header := []interface{}{"Slot (UTC)", "Local time (" + loc.String() + ")", "State", "Power"}
	if err := f.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(xlsxSheet, "A1", "D1", bold); err != nil {
		return err
	}
	for i, e := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			logic.FormatSlot(e.Slot),
			e.Slot.In(loc).Format("2006-01-02 15:04"),
			string(e.State),
			e.State.Bit(),
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(xlsxSheet, "A", "B", 22); err != nil {
		return err
	}
	if err := f.SetPanes(xlsxSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}
