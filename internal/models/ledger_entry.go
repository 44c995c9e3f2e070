package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type LedgerKind string

const (
	LedgerCredit LedgerKind = "credit" // entrada
	LedgerDebit  LedgerKind = "debit"  // saída
)

type LedgerSource string

const (
	LedgerSourceManual LedgerSource = "manual" // lançado pelo usuário
	LedgerSourceOrder  LedgerSource = "order"  // finalização de ordem de serviço
	LedgerSourceStock  LedgerSource = "stock"  // compra de peças
)

type LedgerEntry struct {
	ID          uint            `gorm:"primaryKey"`
	Kind        LedgerKind      `gorm:"size:10;not null;index"`
	Description string          `gorm:"size:255;not null"`
	Amount      decimal.Decimal `gorm:"type:numeric(12,2);not null"` // sempre > 0
	OccurredAt  time.Time       `gorm:"index;not null"`
	Source      LedgerSource    `gorm:"size:20;not null"`
	OrderID     *uint           `gorm:"index"`
	PartID      *uint           `gorm:"index"`
	CreatedAt   time.Time
}

// IsSystem: lançamentos gerados pelo sistema não podem ser excluídos pela API.
func (e *LedgerEntry) IsSystem() bool {
	return e.Source != LedgerSourceManual
}
