package models

// All lista os modelos na ordem usada pelo AutoMigrate.
func All() []any {
	return []any{
		&User{},
		&Part{},
		&ServiceOrder{},
		&OrderLineItem{},
		&LedgerEntry{},
		&Appointment{},
		&AuditLog{},
	}
}
