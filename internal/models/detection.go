package models

import (
	"fmt"
	"time"
)

// ClassID identifies the object class of a detection on the evidence wire
// format. Faces are the only class produced by the bundled detector; the
// field exists so archived evidence stays parseable if other classes are
// added later.
type ClassID uint8

const (
	ClassFace ClassID = 0
)

// String returns the class label used in JSON payloads and overlays.
func (c ClassID) String() string {
	switch c {
	case ClassFace:
		return "face"
	default:
		return fmt.Sprintf("class_%d", uint8(c))
	}
}

// Detection is a single bounding box in frame pixel space.
// Invariant: 0 <= X1 < X2 <= frame width, 0 <= Y1 < Y2 <= frame height,
// Confidence >= the configured threshold.
type Detection struct {
	X1         int32     `json:"x1"`
	Y1         int32     `json:"y1"`
	X2         int32     `json:"x2"`
	Y2         int32     `json:"y2"`
	Confidence float32   `json:"confidence"`
	Class      ClassID   `json:"-"`
	Timestamp  time.Time `json:"timestamp"`
}

// Valid reports whether the box is non-degenerate and inside a w x h frame.
func (d Detection) Valid(w, h int) bool {
	return d.X1 >= 0 && d.Y1 >= 0 &&
		d.X1 < d.X2 && d.Y1 < d.Y2 &&
		int(d.X2) <= w && int(d.Y2) <= h
}

// Padded returns the box grown by frac on each side and clipped to w x h.
// The blur stage uses 15% padding so hairlines and chin edges are covered.
func (d Detection) Padded(frac float64, w, h int) (x1, y1, x2, y2 int) {
	bw := float64(d.X2 - d.X1)
	bh := float64(d.Y2 - d.Y1)
	padX := int(bw * frac)
	padY := int(bh * frac)

	x1 = int(d.X1) - padX
	y1 = int(d.Y1) - padY
	x2 = int(d.X2) + padX
	y2 = int(d.Y2) + padY

	if x1 < 0 {
		x1 = 0
	}
	if y1 < 0 {
		y1 = 0
	}
	if x2 > w {
		x2 = w
	}
	if y2 > h {
		y2 = h
	}
	return x1, y1, x2, y2
}
