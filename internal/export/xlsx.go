// Package export writes family data as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"famfinance/internal/models"
)

// ContentTypeXLSX is the media type of the workbooks written here
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const transactionsSheet = "Transactions"

var transactionHeaders = []string{"Date", "Type", "Category", "Description", "Amount", "Source"}

// WriteTransactionsXLSX writes transactions as a single-sheet workbook. categories maps
// category ids to names; unknown or missing categories are left blank.
func WriteTransactionsXLSX(w io.Writer, transactions []models.Transaction, categories map[int64]string) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(transactionsSheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to remove default sheet: %w", err)
	}

	for i, h := range transactionHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(transactionsSheet, cell, h); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	for idx, t := range transactions {
		row := idx + 2

		var category string
		if t.CategoryID != nil {
			category = categories[*t.CategoryID]
		}
		source := "manual"
		if t.ExternalID != nil {
			source = "bank"
		}
		amount, _ := t.Signed().Float64()

		values := []any{t.Date.Format("2006-01-02"), string(t.Kind), category, t.Description, amount, source}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(transactionsSheet, cell, v); err != nil {
				return fmt.Errorf("failed to write row %d: %w", row, err)
			}
		}
	}

	f.SetColWidth(transactionsSheet, "A", "A", 12)
	f.SetColWidth(transactionsSheet, "B", "B", 10)
	f.SetColWidth(transactionsSheet, "C", "C", 18)
	f.SetColWidth(transactionsSheet, "D", "D", 40)
	f.SetColWidth(transactionsSheet, "E", "E", 12)
	f.SetColWidth(transactionsSheet, "F", "F", 10)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
