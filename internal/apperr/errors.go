// Package apperr define os tipos de erro de domínio e o mapeamento para HTTP.
package apperr

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
	KindInsufficientStock
	KindStorage
)

// Sentinelas para errors.Is(err, apperr.ErrConflict) etc.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	ErrStorage           = &Error{Kind: KindStorage}
)

type Error struct {
	Kind    Kind
	Message string
	Field   string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is compara apenas o Kind, assim as sentinelas casam com qualquer erro do mesmo tipo.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func (k Kind) Code() string {
	switch k {
	case KindValidation:
		return "VALIDACAO"
	case KindNotFound:
		return "NAO_ENCONTRADO"
	case KindConflict:
		return "CONFLITO"
	case KindInsufficientStock:
		return "ESTOQUE_INSUFICIENTE"
	default:
		return "ERRO_INTERNO"
	}
}

func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return fiber.StatusBadRequest
	case KindNotFound:
		return fiber.StatusNotFound
	case KindConflict, KindInsufficientStock:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func InsufficientStock(partID uint, partName string, requested, available int) *Error {
	return &Error{
		Kind:    KindInsufficientStock,
		Message: fmt.Sprintf("Estoque insuficiente para a peça %s", partName),
		Details: map[string]any{
			"peca_id":    partID,
			"peca_nome":  partName,
			"solicitado": requested,
			"disponivel": available,
		},
	}
}

func Storage(message string, err error) *Error {
	return &Error{Kind: KindStorage, Message: message, Err: err}
}

// FromDB converte erros do gorm: not found vira NotFound, chave duplicada vira Conflict
// e o resto vira falha de armazenamento.
func FromDB(err error, notFoundMsg, conflictMsg, storageMsg string) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return NotFound(notFoundMsg)
	case errors.Is(err, gorm.ErrDuplicatedKey) && conflictMsg != "":
		return Conflict(conflictMsg)
	default:
		return Storage(storageMsg, err)
	}
}

// As devolve o *Error contido em err, ou nil.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}
