// Package validation valida os corpos de requisição com tags `validate` e
// devolve apperr.Validation apontando o campo (nome JSON) inválido.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"oficina-backend/internal/apperr"

	"github.com/go-playground/validator/v10"
)

var (
	dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		return dateRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return timeRe.MatchString(fl.Field().String())
	})
	return &Validator{v: v}
}

// Struct valida s e devolve o primeiro erro como *apperr.Error.
func (val *Validator) Struct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation("", "Dados inválidos")
	}

	fe := verrs[0]
	return apperr.Validation(fieldPath(fe), message(fe))
}

// fieldPath remove o nome da struct raiz: "CreateOrderRequest.pecas[0].quantidade" -> "pecas[0].quantidade".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s é obrigatório", field)
	case "email":
		return fmt.Sprintf("%s deve ser um email válido", field)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s deve ter pelo menos %s caracteres", field, fe.Param())
		}
		return fmt.Sprintf("%s deve ser no mínimo %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s deve ser no máximo %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s deve ser maior que %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s deve ser maior ou igual a %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s deve ser um de: %s", field, fe.Param())
	case "date":
		return fmt.Sprintf("%s deve estar no formato YYYY-MM-DD", field)
	case "hhmm":
		return fmt.Sprintf("%s deve estar no formato HH:MM", field)
	default:
		return fmt.Sprintf("%s inválido", field)
	}
}
