package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFinalized OrderStatus = "finalized"
)

// ServiceOrder: ordem de serviço. Total = PartsTotal + LaborTotal, PartsTotal = soma dos itens.
type ServiceOrder struct {
	ID           uint            `gorm:"primaryKey"`
	ClientName   string          `gorm:"size:150;not null;index"`
	VehicleModel string          `gorm:"size:100;not null"`
	VehicleYear  string          `gorm:"size:10"` // opcional
	VehiclePlate string          `gorm:"size:20;not null;index"`
	ServiceType  string          `gorm:"size:100;not null"`
	Description  string          `gorm:"type:text"`
	PartsTotal   decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	LaborTotal   decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Total        decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Status       OrderStatus     `gorm:"size:20;not null;index"`
	CreatedAt    time.Time       `gorm:"index"`
	UpdatedAt    time.Time
	FinalizedAt  *time.Time // nil até finalizar

	Items []OrderLineItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (o *ServiceOrder) IsFinalized() bool {
	return o.Status == OrderStatusFinalized
}
