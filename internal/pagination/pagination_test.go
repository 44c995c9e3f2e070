package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_Bounds(t *testing.T) {
	assert.Equal(t, Page{Page: 1, Limit: 10}, New(0, 0))
	assert.Equal(t, Page{Page: 3, Limit: 100}, New(3, 500))
	assert.Equal(t, 40, New(3, 20).Offset())
}

func TestNewResult(t *testing.T) {
	r := NewResult([]string{"a", "b"}, 21, New(2, 10))
	assert.Equal(t, int64(21), r.Total)
	assert.Equal(t, 2, r.CurrentPage)
	assert.Equal(t, 3, r.TotalPages)

	empty := NewResult[int](nil, 0, New(1, 10))
	assert.NotNil(t, empty.Results)
	assert.Equal(t, 0, empty.TotalPages)
}
