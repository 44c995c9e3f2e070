package inventory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"oficina-backend/internal/apperr"
	"oficina-backend/internal/audit"
	"oficina-backend/internal/database"
	"oficina-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ImportResult resume a importação da planilha.
type ImportResult struct {
	Rows      int
	Created   int
	Restocked int
}

type importRow struct {
	line          int
	name          string
	purchasePrice decimal.Decimal
	salePrice     decimal.Decimal
	quantity      int
}

// Import lê a primeira aba da planilha (nome, preco_compra, preco_venda,
// quantidade). Peças existentes recebem entrada de estoque, novas são
// cadastradas. Tudo numa transação: qualquer linha inválida desfaz o arquivo todo.
func (s *Service) Import(ctx context.Context, actor audit.Actor, r io.Reader) (*ImportResult, error) {
	rows, err := readImportRows(r)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{Rows: len(rows)}
	err = database.RunInTx(ctx, s.db, s.txTimeout, func(tx *gorm.DB) error {
		for _, row := range rows {
			if err := s.importRow(tx, actor, row, res); err != nil {
				if e := apperr.As(err); e != nil && e.Kind == apperr.KindValidation {
					e.Message = fmt.Sprintf("Linha %d: %s", row.line, e.Message)
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) importRow(tx *gorm.DB, actor audit.Actor, row importRow, res *ImportResult) error {
	var existing models.Part
	err := tx.Where("LOWER(name) = ?", strings.ToLower(row.name)).First(&existing).Error
	switch {
	case err == nil:
		if row.quantity == 0 {
			return nil
		}
		parts, err := LockParts(tx, []uint{existing.ID})
		if err != nil {
			return err
		}
		part := parts[existing.ID]
		before := part.Quantity
		if err := s.stockInTx(tx, part, row.quantity, ""); err != nil {
			return err
		}
		res.Restocked++
		return audit.WriteLog(tx, actor, audit.LogOptions{
			EntityType:  "part",
			EntityID:    part.ID,
			Action:      models.AuditActionAdjust,
			Description: fmt.Sprintf("Importação: entrada de %d un. de %s", row.quantity, part.Name),
			Before:      map[string]any{"quantidade": before},
			After:       map[string]any{"quantidade": part.Quantity},
		})
	case errors.Is(err, gorm.ErrRecordNotFound):
		if _, err := s.createTx(tx, actor, PartInput{
			Name:          row.name,
			PurchasePrice: row.purchasePrice,
			SalePrice:     row.salePrice,
			Quantity:      row.quantity,
		}); err != nil {
			return err
		}
		res.Created++
		return nil
	default:
		return fmt.Errorf("buscar peça %q: %w", row.name, err)
	}
}

func readImportRows(r io.Reader) ([]importRow, error) {
	xf, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperr.Validation("arquivo", "Planilha inválida")
	}
	defer xf.Close()

	sheets := xf.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperr.Validation("arquivo", "Planilha sem abas")
	}
	raw, err := xf.GetRows(sheets[0])
	if err != nil {
		return nil, apperr.Validation("arquivo", "Não foi possível ler a planilha")
	}

	var rows []importRow
	for i, cells := range raw {
		line := i + 1
		if isBlank(cells) {
			continue
		}
		if i == 0 && isHeader(cells) {
			continue
		}
		row, err := parseImportRow(line, cells)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, apperr.Validation("arquivo", "Planilha sem linhas de peças")
	}
	return rows, nil
}

func parseImportRow(line int, cells []string) (importRow, error) {
	cell := func(i int) string {
		if i < len(cells) {
			return strings.TrimSpace(cells[i])
		}
		return ""
	}
	rowErr := func(field, msg string) error {
		return apperr.Validation(field, fmt.Sprintf("Linha %d: %s", line, msg))
	}

	row := importRow{line: line, name: cell(0)}
	if row.name == "" {
		return row, rowErr("nome", "nome é obrigatório")
	}

	var err error
	if row.purchasePrice, err = parseMoney(cell(1)); err != nil {
		return row, rowErr("preco_compra", "preço de compra inválido")
	}
	if row.salePrice, err = parseMoney(cell(2)); err != nil {
		return row, rowErr("preco_venda", "preço de venda inválido")
	}
	if q := cell(3); q != "" {
		if row.quantity, err = strconv.Atoi(q); err != nil || row.quantity < 0 {
			return row, rowErr("quantidade", "quantidade inválida")
		}
	}
	return row, nil
}

// parseMoney aceita "12.50", "12,50", "1.234,56" e "1.234". Sem vírgula, pontos
// seguidos de exatamente três dígitos são separadores de milhar.
func parseMoney(s string) (decimal.Decimal, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "R$")
	s = strings.TrimSpace(s)
	switch {
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case thousandsOnly(s):
		s = strings.ReplaceAll(s, ".", "")
	}
	return decimal.NewFromString(s)
}

func thousandsOnly(s string) bool {
	groups := strings.Split(s, ".")
	if len(groups) < 2 || groups[0] == "" || groups[0][0] == '0' || len(groups[0]) > 3 {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

func isHeader(cells []string) bool {
	return len(cells) > 0 && strings.EqualFold(strings.TrimSpace(cells[0]), "nome")
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
