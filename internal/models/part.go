package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Part struct {
	ID            uint            `gorm:"primaryKey"`
	Name          string          `gorm:"size:150;not null;uniqueIndex"`
	PurchasePrice decimal.Decimal `gorm:"type:numeric(12,2);not null"` // preço de compra
	SalePrice     decimal.Decimal `gorm:"type:numeric(12,2);not null"` // preço de venda
	Quantity      int             `gorm:"not null;check:chk_parts_quantity,quantity >= 0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
