package grid

import (
	"fmt"
	"iter"
)

// Pos is a signed cell coordinate on a sheet. The grid is unbounded in
// all four directions, so negative coordinates are valid.
type Pos struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
}

func (p Pos) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Translate returns p shifted by (dx, dy).
func (p Pos) Translate(dx, dy int64) Pos {
	return Pos{X: p.X + dx, Y: p.Y + dy}
}

// Less orders positions row-major: by Y, then by X.
// This is the iteration order used by the sheet's position index.
func (p Pos) Less(q Pos) bool {
	if p.Y != q.Y {
		return p.Y < q.Y
	}
	return p.X < q.X
}

// Rect is an inclusive rectangle of cells.
// Min is the top-left corner, Max the bottom-right; Min <= Max on both axes.
type Rect struct {
	Min Pos `json:"min"`
	Max Pos `json:"max"`
}

// NewRect returns the normalized rectangle spanning both corners.
func NewRect(a, b Pos) Rect {
	r := Rect{Min: a, Max: b}
	if r.Min.X > r.Max.X {
		r.Min.X, r.Max.X = r.Max.X, r.Min.X
	}
	if r.Min.Y > r.Max.Y {
		r.Min.Y, r.Max.Y = r.Max.Y, r.Min.Y
	}
	return r
}

// SingleRect returns the 1x1 rectangle at p.
func SingleRect(p Pos) Rect {
	return Rect{Min: p, Max: p}
}

func (r Rect) String() string {
	return fmt.Sprintf("[%s..%s]", r.Min, r.Max)
}

// Width returns the number of columns covered by r.
func (r Rect) Width() int64 {
	return r.Max.X - r.Min.X + 1
}

// Height returns the number of rows covered by r.
func (r Rect) Height() int64 {
	return r.Max.Y - r.Min.Y + 1
}

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Pos) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// Intersects reports whether r and o share at least one cell.
func (r Rect) Intersects(o Rect) bool {
	return r.Min.X <= o.Max.X && r.Max.X >= o.Min.X &&
		r.Min.Y <= o.Max.Y && r.Max.Y >= o.Min.Y
}

// Union returns the smallest rectangle covering both r and o.
func (r Rect) Union(o Rect) Rect {
	u := r
	if o.Min.X < u.Min.X {
		u.Min.X = o.Min.X
	}
	if o.Min.Y < u.Min.Y {
		u.Min.Y = o.Min.Y
	}
	if o.Max.X > u.Max.X {
		u.Max.X = o.Max.X
	}
	if o.Max.Y > u.Max.Y {
		u.Max.Y = o.Max.Y
	}
	return u
}

// Positions yields every cell of r in row-major order.
func (r Rect) Positions() iter.Seq[Pos] {
	return func(yield func(Pos) bool) {
		for y := r.Min.Y; y <= r.Max.Y; y++ {
			for x := r.Min.X; x <= r.Max.X; x++ {
				if !yield(Pos{X: x, Y: y}) {
					return
				}
			}
		}
	}
}

// SheetPos is a position qualified with its sheet.
type SheetPos struct {
	Sheet SheetID `json:"sheet"`
	Pos   Pos     `json:"pos"`
}

func (sp SheetPos) String() string {
	return fmt.Sprintf("%s%s", shortID(string(sp.Sheet)), sp.Pos)
}

// SheetRect is a rectangle qualified with its sheet.
type SheetRect struct {
	Sheet SheetID `json:"sheet"`
	Rect  Rect    `json:"rect"`
}

func (sr SheetRect) String() string {
	return fmt.Sprintf("%s%s", shortID(string(sr.Sheet)), sr.Rect)
}

// Contains reports whether sp lies inside sr, on the same sheet.
func (sr SheetRect) Contains(sp SheetPos) bool {
	return sr.Sheet == sp.Sheet && sr.Rect.Contains(sp.Pos)
}

// Intersects reports whether the rectangles overlap on the same sheet.
func (sr SheetRect) Intersects(o SheetRect) bool {
	return sr.Sheet == o.Sheet && sr.Rect.Intersects(o.Rect)
}

// shortID truncates a UUID string for log/display purposes.
func shortID(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
