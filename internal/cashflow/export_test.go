package cashflow

import (
	"context"
	"testing"
	"time"

	"oficina-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExport(t *testing.T) {
	svc := newTestService(t, day(2025, 3, 12))
	ctx := context.Background()

	d1, d2 := day(2025, 3, 1), day(2025, 3, 2)
	_, err := svc.CreateEntry(ctx, actor, EntryInput{Kind: models.LedgerCredit, Description: "Serviço", Amount: decimal.NewFromInt(200), Date: &d1})
	require.NoError(t, err)
	_, err = svc.CreateEntry(ctx, actor, EntryInput{Kind: models.LedgerDebit, Description: "Aluguel", Amount: decimal.NewFromInt(80), Date: &d2})
	require.NoError(t, err)

	buf, err := svc.Export(ctx, EntryFilter{})
	require.NoError(t, err)

	xf, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer xf.Close()

	rows, err := xf.GetRows(exportSheet)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 7)

	assert.Equal(t, "Descrição", rows[0][3])
	assert.Equal(t, "2025-03-01", rows[1][1])
	assert.Equal(t, "entrada", rows[1][2])
	assert.Equal(t, "Aluguel", rows[2][3])
	assert.Equal(t, "saida", rows[2][2])

	saldo, err := xf.GetCellValue(exportSheet, "G7")
	require.NoError(t, err)
	assert.Equal(t, "120", saldo)
}

func TestExport_Empty(t *testing.T) {
	svc := newTestService(t, time.Now().UTC())

	buf, err := svc.Export(context.Background(), EntryFilter{})
	require.NoError(t, err)

	xf, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer xf.Close()

	label, err := xf.GetCellValue(exportSheet, "F3")
	require.NoError(t, err)
	assert.Equal(t, "Total entradas", label)
}
