package inventory

import (
	"fmt"
	"sort"

	"oficina-backend/internal/apperr"
	"oficina-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockParts carrega e bloqueia (FOR UPDATE) as peças em ordem crescente de id,
// sempre na mesma ordem para que duas transações não se travem mutuamente.
// Id inexistente devolve NotFound.
func LockParts(tx *gorm.DB, ids []uint) (map[uint]*models.Part, error) {
	uniq := uniqueSorted(ids)
	parts := make(map[uint]*models.Part, len(uniq))
	if len(uniq) == 0 {
		return parts, nil
	}

	var rows []models.Part
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", uniq).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("bloquear peças: %w", err)
	}
	for i := range rows {
		parts[rows[i].ID] = &rows[i]
	}

	for _, id := range uniq {
		if _, ok := parts[id]; !ok {
			e := apperr.NotFound(fmt.Sprintf("Peça %d não encontrada", id))
			e.Field = "peca_id"
			e.Details = map[string]any{"peca_id": id}
			return nil, e
		}
	}
	return parts, nil
}

// Consume baixa n unidades da peça. O UPDATE só passa se ainda houver saldo,
// então a quantidade nunca fica negativa mesmo sem o lock.
func Consume(tx *gorm.DB, part *models.Part, n int) error {
	if n <= 0 {
		return apperr.Validation("quantidade", "Quantidade deve ser maior que zero")
	}

	res := tx.Model(&models.Part{}).
		Where("id = ? AND quantity >= ?", part.ID, n).
		UpdateColumn("quantity", gorm.Expr("quantity - ?", n))
	if res.Error != nil {
		return fmt.Errorf("baixa de estoque: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		available := part.Quantity
		var current models.Part
		if err := tx.Select("quantity").First(&current, part.ID).Error; err == nil {
			available = current.Quantity
		}
		return apperr.InsufficientStock(part.ID, part.Name, n, available)
	}

	part.Quantity -= n
	return nil
}

// Restock devolve n unidades ao estoque (estorno de ordem ou entrada de compra).
func Restock(tx *gorm.DB, partID uint, n int) error {
	if n <= 0 {
		return apperr.Validation("quantidade", "Quantidade deve ser maior que zero")
	}

	res := tx.Model(&models.Part{}).
		Where("id = ?", partID).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", n))
	if res.Error != nil {
		return fmt.Errorf("entrada de estoque: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound(fmt.Sprintf("Peça %d não encontrada", partID))
	}
	return nil
}

func uniqueSorted(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
