package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		page, size string
		want       Page
		offset     int
	}{
		{page: "", size: "", want: Page{Number: 1, Size: DefaultSize}, offset: 0},
		{page: "3", size: "10", want: Page{Number: 3, Size: 10}, offset: 20},
		{page: "-1", size: "1000", want: Page{Number: 1, Size: DefaultSize}, offset: 0},
		{page: "x", size: "5", want: Page{Number: 1, Size: 5}, offset: 0},
	}
	for _, tt := range tests {
		got := Parse(tt.page, tt.size)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.offset, got.Offset())
	}
}

func TestPages(t *testing.T) {
	t.Parallel()

	p := New(1, 10)
	assert.Equal(t, 0, p.Pages(0))
	assert.Equal(t, 1, p.Pages(10))
	assert.Equal(t, 2, p.Pages(11))
}
