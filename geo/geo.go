// Package geo provides the geometric value types shared by all layers.
package geo

import "fmt"

// Rect is a PDF rectangle in default user space units, stored as
// lower-left and upper-right corners.
type Rect struct {
	LLX, LLY, URX, URY float64
}

func (r Rect) Width() float64  { return r.URX - r.LLX }
func (r Rect) Height() float64 { return r.URY - r.LLY }

// Normalized returns the rectangle with corners swapped so that
// LLX <= URX and LLY <= URY.
func (r Rect) Normalized() Rect {
	if r.LLX > r.URX {
		r.LLX, r.URX = r.URX, r.LLX
	}
	if r.LLY > r.URY {
		r.LLY, r.URY = r.URY, r.LLY
	}
	return r
}

// Contains reports whether the point (x, y) lies within the rectangle.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.LLX && x <= r.URX && y >= r.LLY && y <= r.URY
}

// IsZero reports whether all four corners are zero.
func (r Rect) IsZero() bool {
	return r.LLX == 0 && r.LLY == 0 && r.URX == 0 && r.URY == 0
}

func (r Rect) String() string {
	return fmt.Sprintf("[%g %g %g %g]", r.LLX, r.LLY, r.URX, r.URY)
}
