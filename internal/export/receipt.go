// Package export renders rental receipts as Excel workbooks.
package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"machrent/internal/dates"
	"machrent/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/xuri/excelize/v2"
)

const receiptSheet = "Receipt"

// ReceiptFileName is the attachment name used for a rental.
func ReceiptFileName(r models.Receipt) string {
	return fmt.Sprintf("rental_%s_%s.xlsx", r.RentalID, dates.Format(r.StartDate))
}

// RenderReceipt builds the workbook in memory.
func RenderReceipt(r models.Receipt) ([]byte, error) {
	f, err := buildReceipt(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, errors.Wrap(err, "write receipt workbook")
	}
	return buf.Bytes(), nil
}

// SaveReceipt writes the workbook under dir and returns its path.
func SaveReceipt(dir string, r models.Receipt) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create export directory")
	}
	f, err := buildReceipt(r)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(dir, ReceiptFileName(r))
	if err := f.SaveAs(path); err != nil {
		return "", errors.Wrap(err, "save receipt")
	}
	return path, nil
}

func buildReceipt(r models.Receipt) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(receiptSheet)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "create sheet")
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetCellValue(receiptSheet, "A1", fmt.Sprintf("Rental %s", r.RentalID))
	_ = f.MergeCell(receiptSheet, "A1", "B1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(receiptSheet, "A1", "A1", titleStyle)

	flow := "Self-service"
	if r.Flow == "staff" {
		flow = "In person"
	}
	rows := [][2]interface{}{
		{"Machine", r.MachineName},
		{"Customer", r.CustomerEmail},
		{"Location", r.Location},
		{"Unit", r.UnitID},
		{"Start date", dates.Format(r.StartDate)},
		{"End date", dates.Format(r.EndDate)},
		{"Days", r.Days},
		{"Daily rate", r.DailyRate},
		{"Total price", r.TotalPrice},
		{"Booking type", flow},
		{"Created at", r.CreatedAt.UTC().Format("2006-01-02 15:04 MST")},
	}

	labelStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, row := range rows {
		labelCell, _ := excelize.CoordinatesToCellName(1, i+3)
		valueCell, _ := excelize.CoordinatesToCellName(2, i+3)
		_ = f.SetCellValue(receiptSheet, labelCell, row[0])
		_ = f.SetCellValue(receiptSheet, valueCell, row[1])
		_ = f.SetCellStyle(receiptSheet, labelCell, labelCell, labelStyle)
	}

	totalStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	totalCell, _ := excelize.CoordinatesToCellName(2, 3+8)
	_ = f.SetCellStyle(receiptSheet, totalCell, totalCell, totalStyle)

	_ = f.SetColWidth(receiptSheet, "A", "A", 18)
	_ = f.SetColWidth(receiptSheet, "B", "B", 36)
	return f, nil
}
