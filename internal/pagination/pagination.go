// Package pagination lê page/limit e intervalos de data da query string e monta
// o envelope de listagem.
package pagination

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

type Page struct {
	Page  int
	Limit int
}

func New(page, limit int) Page {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Page{Page: page, Limit: limit}
}

// FromQuery: valores inválidos caem no padrão (página 1, limite 10).
func FromQuery(c *fiber.Ctx) Page {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return New(page, limit)
}

func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

type Result[T any] struct {
	Total       int64 `json:"total"`
	CurrentPage int   `json:"pagina_atual"`
	TotalPages  int   `json:"total_paginas"`
	Results     []T   `json:"resultados"`
}

func NewResult[T any](items []T, total int64, p Page) Result[T] {
	if items == nil {
		items = []T{}
	}
	pages := int((total + int64(p.Limit) - 1) / int64(p.Limit))
	return Result[T]{
		Total:       total,
		CurrentPage: p.Page,
		TotalPages:  pages,
		Results:     items,
	}
}
