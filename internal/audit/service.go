package audit

import (
	"encoding/json"
	"fmt"

	"oficina-backend/internal/models"

	"gorm.io/gorm"
)

// Actor identifica quem executa a operação. Os serviços recebem o Actor
// explicitamente; nenhum deles lê sessão ou cookie.
type Actor struct {
	UserID   uint
	UserName string
}

// System é usado por rotinas internas (seed, importações sem usuário).
var System = Actor{UserName: "sistema"}

type LogOptions struct {
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// WriteLog grava o log dentro da transação recebida; se a transação
// for desfeita o log some junto.
func WriteLog(tx *gorm.DB, actor Actor, opts LogOptions) error {
	// jsonb não aceita string vazia
	beforeStr := "null"
	afterStr := "null"

	if opts.Before != nil {
		b, err := json.Marshal(opts.Before)
		if err != nil {
			return fmt.Errorf("audit before: %w", err)
		}
		beforeStr = string(b)
	}
	if opts.After != nil {
		b, err := json.Marshal(opts.After)
		if err != nil {
			return fmt.Errorf("audit after: %w", err)
		}
		afterStr = string(b)
	}

	log := models.AuditLog{
		UserID:      actor.UserID,
		UserName:    actor.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  beforeStr,
		AfterData:   afterStr,
	}

	if err := tx.Create(&log).Error; err != nil {
		return fmt.Errorf("audit log não gravado: %w", err)
	}
	return nil
}
