package reports

import (
	"fmt"
	"io"

	"bitbucket.org/mmdatafocus/stockcount_backend/models"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
	"github.com/xuri/excelize/v2"
)

const pendingReviewSheet = "Pending Review"

type ExcelExporter interface {
	GetCellValues() []interface{}
}

var pendingReviewHeadings = []string{
	"Group", "Product", "Description", "Floor", "Snapshot", "Live Stock",
	"Round 1", "Round 2", "Round 3",
	"Diff 1", "Diff 2", "Diff 3",
	"Audited", "Audit Id",
}

type pendingReviewRow struct {
	item *models.PendingReviewItem
}

func (r pendingReviewRow) GetCellValues() []interface{} {
	it := r.item
	values := []interface{}{
		it.GroupKey,
		it.ProductCode,
		utils.DereferencePtr(it.Description, ""),
		utils.DereferencePtr(it.Floor, ""),
		it.SnapshotStock.InexactFloat64(),
	}
	if it.LiveStock != nil {
		values = append(values, it.LiveStock.InexactFloat64())
	} else {
		values = append(values, "")
	}
	for n := models.FirstRoundNumber; n <= models.FinalRoundNumber; n++ {
		if h, ok := it.History[n]; ok {
			values = append(values, h.Total.InexactFloat64())
		} else {
			values = append(values, 0)
		}
	}
	for n := models.FirstRoundNumber; n <= models.FinalRoundNumber; n++ {
		values = append(values, it.Differences[n].InexactFloat64())
	}
	if it.AlreadyAudited {
		values = append(values, "Yes")
	} else {
		values = append(values, "No")
	}
	if it.AuditId != nil {
		values = append(values, *it.AuditId)
	} else {
		values = append(values, "")
	}
	return values
}

// PendingReviewWorkbook lays the pending review list out on one sheet, one product per row.
func PendingReviewWorkbook(items []*models.PendingReviewItem) (*excelize.File, error) {
	rows := make([]ExcelExporter, 0, len(items))
	for _, it := range items {
		rows = append(rows, pendingReviewRow{item: it})
	}
	return buildWorkbook(pendingReviewSheet, rows, pendingReviewHeadings...)
}

// WritePendingReview streams the workbook as xlsx.
func WritePendingReview(w io.Writer, items []*models.PendingReviewItem) error {
	f, err := PendingReviewWorkbook(items)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func buildWorkbook(sheetName string, data []ExcelExporter, headings ...string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	for i, h := range headings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, err
		}
	}

	rowNo := 2
	for _, d := range data {
		for i, value := range d.GetCellValues() {
			cell, err := excelize.CoordinatesToCellName(i+1, rowNo)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return nil, fmt.Errorf("row %d: %w", rowNo, err)
			}
		}
		rowNo++
	}
	return f, nil
}
