// Package pager keeps the four-slot window of indexes into a folder listing.
package pager

// Size is the number of slots in a window.
const Size = 4

// Window holds the indexes shown on the current page.
type Window [Size]int

// First returns the initial window [0,1,2,3].
func First() Window {
	var w Window
	for i := range w {
		w[i] = i
	}
	return w
}

// Start returns the first index of the window.
func (w Window) Start() int { return w[0] }

// Previous shifts every slot back by Size. A slot that would become negative
// keeps its current value, so near the start the window can clamp partially.
// The second result is false when nothing changed.
func (w Window) Previous() (Window, bool) {
	next := w
	for i, idx := range w {
		if idx-Size >= 0 {
			next[i] = idx - Size
		}
	}
	if next == w {
		return w, false
	}
	return next, true
}

// Next shifts every slot forward by Size. The whole page is rejected when
// the new first slot is not below n, even if later slots would still be in
// range. The second result is false when the window did not move.
func (w Window) Next(n int) (Window, bool) {
	var next Window
	for i, idx := range w {
		next[i] = idx + Size
	}
	if next[0] >= n {
		return w, false
	}
	return next, true
}

// HasPrevious reports whether the previous control is enabled.
func (w Window) HasPrevious() bool { return w[0] != 0 }

// HasNext reports whether the next control is enabled for a listing of n.
func (w Window) HasNext(n int) bool { return w[Size-1] < n }

// InRange reports whether slot index idx refers to one of n known names.
func InRange(idx, n int) bool { return idx >= 0 && idx < n }

// Page returns the zero-based page number of the window.
func (w Window) Page() int { return w[0] / Size }

// ForPage returns the window for page p. Negative pages map to page 0.
func ForPage(p int) Window {
	if p < 0 {
		p = 0
	}
	var w Window
	for i := range w {
		w[i] = p*Size + i
	}
	return w
}
