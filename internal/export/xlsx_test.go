package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"famfinance/internal/models"
)

func TestWriteTransactionsXLSX(t *testing.T) {
	groceries := int64(7)
	ext := "tx-1"
	transactions := []models.Transaction{
		{
			ID:          1,
			CategoryID:  &groceries,
			Amount:      decimal.RequireFromString("42.10"),
			Kind:        models.KindExpense,
			Description: "Grocer",
			Date:        time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
			ExternalID:  &ext,
		},
		{
			ID:          2,
			Amount:      decimal.RequireFromString("2500"),
			Kind:        models.KindIncome,
			Description: "Salary",
			Date:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTransactionsXLSX(&buf, transactions, map[int64]string{groceries: "Groceries"}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{transactionsSheet}, f.GetSheetList())

	rows, err := f.GetRows(transactionsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, transactionHeaders, rows[0])
	assert.Equal(t, []string{"2024-03-05", "EXPENSE", "Groceries", "Grocer", "-42.1", "bank"}, rows[1])
	assert.Equal(t, []string{"2024-03-01", "INCOME", "", "Salary", "2500", "manual"}, rows[2])
}
