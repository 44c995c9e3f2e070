package cashflow

import (
	"bytes"
	"context"
	"fmt"

	"oficina-backend/internal/models"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Lançamentos"

var exportHeader = []any{"ID", "Data", "Tipo", "Descrição", "Origem", "Ordem", "Valor"}

// Export gera a planilha xlsx dos lançamentos do filtro, com totais no final.
func (s *Service) Export(ctx context.Context, f EntryFilter) (*bytes.Buffer, error) {
	entries, err := s.AllEntries(ctx, f)
	if err != nil {
		return nil, err
	}
	return buildWorkbook(entries)
}

func buildWorkbook(entries []models.LedgerEntry) (*bytes.Buffer, error) {
	xf := excelize.NewFile()
	defer xf.Close()

	if err := xf.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, err
	}
	if err := xf.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return nil, err
	}

	var credits, debits float64
	row := 2
	for _, e := range entries {
		var orderRef any
		if e.OrderID != nil {
			orderRef = *e.OrderID
		}
		amount := e.Amount.InexactFloat64()
		values := []any{
			e.ID,
			e.OccurredAt.Format("2006-01-02"),
			kindLabel(e.Kind),
			e.Description,
			string(e.Source),
			orderRef,
			amount,
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := xf.SetSheetRow(exportSheet, cell, &values); err != nil {
			return nil, err
		}
		if e.Kind == models.LedgerCredit {
			credits += amount
		} else {
			debits += amount
		}
		row++
	}

	// linha em branco + totais
	row++
	totals := [][]any{
		{"Total entradas", credits},
		{"Total saídas", debits},
		{"Saldo", credits - debits},
	}
	for _, t := range totals {
		if err := xf.SetCellValue(exportSheet, fmt.Sprintf("F%d", row), t[0]); err != nil {
			return nil, err
		}
		if err := xf.SetCellValue(exportSheet, fmt.Sprintf("G%d", row), t[1]); err != nil {
			return nil, err
		}
		row++
	}

	_ = xf.SetColWidth(exportSheet, "D", "D", 45)

	buf, err := xf.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("gerar planilha: %w", err)
	}
	return buf, nil
}

func kindLabel(k models.LedgerKind) string {
	if k == models.LedgerCredit {
		return "entrada"
	}
	return "saida"
}
