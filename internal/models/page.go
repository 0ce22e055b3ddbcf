package models

// Page is an optional offset window applied after filtering and sorting.
// The zero value means "no pagination".
type Page struct {
	From int
	Size int
	Set  bool
}

func NewPage(from, size int) Page {
	return Page{From: from, Size: size, Set: true}
}

// Valid reports whether the window bounds are acceptable.
func (p Page) Valid() bool {
	if !p.Set {
		return true
	}
	return p.From >= 0 && p.Size > 0
}

// Bounds returns the slice indices of the window for a list of n elements.
func (p Page) Bounds(n int) (int, int) {
	if !p.Set {
		return 0, n
	}
	lo := p.From
	if lo > n {
		lo = n
	}
	hi := lo + p.Size
	if hi > n {
		hi = n
	}
	return lo, hi
}
