package inventory

import (
	"bytes"
	"context"
	"testing"

	"oficina-backend/internal/apperr"
	"oficina-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func workbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	xf := excelize.NewFile()
	defer xf.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, xf.SetSheetRow("Sheet1", cell, &r))
	}
	buf, err := xf.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestImport(t *testing.T) {
	svc := newTestService(t)
	existing := mustCreate(t, svc, "Filtro de ar", "10", "20", 1)

	buf := workbook(t, [][]any{
		{"nome", "preco_compra", "preco_venda", "quantidade"},
		{"Filtro de ar", "10", "20", 4},
		{"Cabo de vela", "12,50", "30", 2},
		{},
		{"Sensor MAP", "150", "260", ""},
	})

	res, err := svc.Import(context.Background(), actor, buf)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Restocked)

	var filter models.Part
	require.NoError(t, svc.db.First(&filter, existing.ID).Error)
	assert.Equal(t, 5, filter.Quantity)

	var cable models.Part
	require.NoError(t, svc.db.Where("name = ?", "Cabo de vela").First(&cable).Error)
	assert.Equal(t, "12.50", cable.PurchasePrice.StringFixed(2))

	// compra inicial do filtro + entrada do filtro + compra inicial dos cabos
	entries := ledger(t, svc.db)
	require.Len(t, entries, 3)
	assert.Equal(t, "40.00", entries[1].Amount.StringFixed(2))
	assert.Equal(t, "25.00", entries[2].Amount.StringFixed(2))
}

func TestImport_InvalidRowRollsBack(t *testing.T) {
	svc := newTestService(t)

	buf := workbook(t, [][]any{
		{"Peça boa", "10", "20", 1},
		{"Peça ruim", "10", "0", 1},
	})

	_, err := svc.Import(context.Background(), actor, buf)
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), "Linha 2")

	var count int64
	require.NoError(t, svc.db.Model(&models.Part{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, ledger(t, svc.db))
}

func TestImport_ParseErrors(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Import(context.Background(), actor, bytes.NewBufferString("não é xlsx"))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Import(context.Background(), actor, workbook(t, [][]any{{"nome", "preco_compra"}}))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Import(context.Background(), actor, workbook(t, [][]any{{"Peça", "abc", "10", 1}}))
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "preco_compra", apperr.As(err).Field)
}

func TestParseMoney(t *testing.T) {
	tests := map[string]string{
		"12.50":     "12.50",
		"12,50":     "12.50",
		"1.234,56":  "1234.56",
		"R$ 99,9":   "99.90",
		"1.234":     "1234.00",
		"1.234.567": "1234567.00",
		"1234.567":  "1234.57",
		"0.500":     "0.50",
	}
	for in, want := range tests {
		got, err := parseMoney(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got.StringFixed(2), in)
	}
	_, err := parseMoney("")
	assert.Error(t, err)
}
