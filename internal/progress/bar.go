package progress

import (
	"fmt"
	"strings"
)

// Bar renders an in-place terminal progress bar.
type Bar struct {
	width int
}

// NewBar creates a bar of the given character width.
func NewBar(width int) *Bar {
	return &Bar{width: width}
}

// Update redraws the bar for current/total.
func (b *Bar) Update(current, total int) {
	if total == 0 {
		return
	}
	percent := float64(current) / float64(total)
	filled := int(percent * float64(b.width))
	if filled > b.width {
		filled = b.width
	}
	bar := strings.Repeat("#", filled) + strings.Repeat("-", b.width-filled)
	fmt.Printf("\r[%s] %3.0f%%  (%d/%d)", bar, percent*100, current, total)
}

// Finish completes the bar and moves to the next line.
func (b *Bar) Finish(total int) {
	b.Update(total, total)
	fmt.Println()
}
