package pagination

import "strconv"

const (
	DefaultSize = 12
	MaxSize     = 100
)

// Page is a 1-based page request, already clamped.
type Page struct {
	Number int `json:"page"`
	Size   int `json:"size"`
}

// Parse reads page and size query values; garbage falls back to defaults.
func Parse(page, size string) Page {
	n, _ := strconv.Atoi(page)
	s, _ := strconv.Atoi(size)
	return New(n, s)
}

func New(number, size int) Page {
	if number < 1 {
		number = 1
	}
	if size <= 0 || size > MaxSize {
		size = DefaultSize
	}
	return Page{Number: number, Size: size}
}

// Offset is the number of records to skip.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Pages is how many pages total records span.
func (p Page) Pages(total int64) int {
	if total <= 0 {
		return 0
	}
	return int((total + int64(p.Size) - 1) / int64(p.Size))
}
