package models

import "time"

type Appointment struct {
	ID           uint   `gorm:"primaryKey"`
	ClientName   string `gorm:"size:150;not null"`
	VehicleModel string `gorm:"size:100;not null"`
	VehiclePlate string `gorm:"size:20"`
	Service      string `gorm:"size:150;not null"`
	Date         string `gorm:"size:10;not null;uniqueIndex:idx_appointments_slot"` // YYYY-MM-DD
	Time         string `gorm:"size:5;not null;uniqueIndex:idx_appointments_slot"`  // HH:MM
	Notes        string `gorm:"type:text"`
	OrderID      *uint  // preenchido quando convertido em ordem de serviço
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
