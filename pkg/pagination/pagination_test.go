package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PerPage)
	assert.Equal(t, 0, p.Offset)
}

func TestFromRequest(t *testing.T) {
	tests := []struct {
		query   string
		page    int
		perPage int
		offset  int
	}{
		{"", 1, 20, 0},
		{"?page=3&per_page=10", 3, 10, 20},
		{"?page=-1", 1, 20, 0},
		{"?page=0", 1, 20, 0},
		{"?page=abc", 1, 20, 0},
		{"?per_page=101", 1, 20, 0},
		{"?per_page=100", 1, 100, 0},
		{"?per_page=0", 1, 20, 0},
		{"?page=2&per_page=5", 2, 5, 5},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/orders"+tt.query, nil)
			p := FromRequest(r)
			assert.Equal(t, tt.page, p.Page)
			assert.Equal(t, tt.perPage, p.PerPage)
			assert.Equal(t, tt.offset, p.Offset)
		})
	}
}

func TestNewResult_MultiplePages(t *testing.T) {
	r := NewResult([]int{1, 2}, 25, Params{Page: 2, PerPage: 10})
	assert.Equal(t, 3, r.TotalPages)
	assert.True(t, r.HasNext)
	assert.True(t, r.HasPrev)
}

func TestNewResult_LastPage(t *testing.T) {
	r := NewResult([]int{1}, 21, Params{Page: 3, PerPage: 10})
	assert.False(t, r.HasNext)
}

func TestNewResult_NilDataBecomesEmptySlice(t *testing.T) {
	r := NewResult[string](nil, 0, DefaultParams())
	assert.NotNil(t, r.Data)
	assert.Empty(t, r.Data)
	assert.Equal(t, 0, r.TotalPages)
	assert.False(t, r.HasNext)
	assert.False(t, r.HasPrev)
}

func TestSlice(t *testing.T) {
	all := []string{"a", "b", "c", "d", "e"}

	first := Slice(all, Params{Page: 1, PerPage: 2, Offset: 0})
	assert.Equal(t, []string{"a", "b"}, first.Data)
	assert.Equal(t, 5, first.TotalCount)
	assert.Equal(t, 3, first.TotalPages)

	last := Slice(all, Params{Page: 3, PerPage: 2, Offset: 4})
	assert.Equal(t, []string{"e"}, last.Data)
	assert.False(t, last.HasNext)

	beyond := Slice(all, Params{Page: 9, PerPage: 2, Offset: 16})
	assert.Empty(t, beyond.Data)
	assert.NotNil(t, beyond.Data)
}
