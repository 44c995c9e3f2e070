package pagination

import (
	"time"

	"oficina-backend/internal/apperr"

	"github.com/gofiber/fiber/v2"
)

const DateLayout = "2006-01-02"

// DateRange lê data_inicio/data_fim (YYYY-MM-DD, ambas inclusivas) e devolve
// [from, to) em UTC; to já aponta para o dia seguinte a data_fim.
func DateRange(c *fiber.Ctx) (from, to *time.Time, err error) {
	if s := c.Query("data_inicio"); s != "" {
		d, perr := time.ParseInLocation(DateLayout, s, time.UTC)
		if perr != nil {
			return nil, nil, apperr.Validation("data_inicio", "data_inicio deve estar no formato YYYY-MM-DD")
		}
		from = &d
	}
	if s := c.Query("data_fim"); s != "" {
		d, perr := time.ParseInLocation(DateLayout, s, time.UTC)
		if perr != nil {
			return nil, nil, apperr.Validation("data_fim", "data_fim deve estar no formato YYYY-MM-DD")
		}
		next := d.AddDate(0, 0, 1)
		to = &next
	}
	return from, to, nil
}
