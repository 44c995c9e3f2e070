package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderLineItem: peça usada numa ordem. UnitPrice é o preço de venda no momento do uso
// e não acompanha alterações posteriores da peça.
type OrderLineItem struct {
	ID        uint            `gorm:"primaryKey"`
	OrderID   uint            `gorm:"index;not null"`
	PartID    uint            `gorm:"index;not null"`
	Quantity  int             `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Total     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	CreatedAt time.Time
}
