package models

import "fmt"

// Plane identifies one of the three orthogonal views. The integer value is
// the view index used by pointer events (0=axial, 1=coronal, 2=sagittal).
type Plane int

const (
	Axial Plane = iota
	Coronal
	Sagittal
)

// Planes lists every plane in view index order.
var Planes = [3]Plane{Axial, Coronal, Sagittal}

// PlaneLayout describes how a plane is cut out of the volume. Slices are
// transposed so RowAxis runs down the image, then flipped vertically so
// increasing RowAxis moves up the screen.
type PlaneLayout struct {
	Name string
	// FixedAxis is held constant at the slice index.
	FixedAxis int
	// ColAxis maps to image columns (screen x).
	ColAxis int
	// RowAxis maps to image rows (screen y, flipped).
	RowAxis int
}

var layouts = [3]PlaneLayout{
	Axial:    {Name: "axial", FixedAxis: 2, ColAxis: 0, RowAxis: 1},
	Coronal:  {Name: "coronal", FixedAxis: 1, ColAxis: 0, RowAxis: 2},
	Sagittal: {Name: "sagittal", FixedAxis: 0, ColAxis: 1, RowAxis: 2},
}

// Layout returns the extraction parameters of the plane.
func (p Plane) Layout() PlaneLayout {
	return layouts[p]
}

// Valid reports whether p is one of the three known planes.
func (p Plane) Valid() bool {
	return p >= Axial && p <= Sagittal
}

func (p Plane) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Plane(%d)", int(p))
	}
	return layouts[p].Name
}

// ParsePlane converts a view index into a Plane.
func ParsePlane(viewIdx int) (Plane, error) {
	p := Plane(viewIdx)
	if !p.Valid() {
		return 0, &ConfigError{Param: "view", Value: fmt.Sprint(viewIdx), Reason: "view index must be 0, 1 or 2"}
	}
	return p, nil
}

// SliceDims returns the width and height in pixels of a slice cut from shape.
func (p Plane) SliceDims(shape Shape) (width, height int) {
	l := p.Layout()
	return shape.Axis(l.ColAxis), shape.Axis(l.RowAxis)
}

// PixelSpacingRatio is the row spacing over the column spacing. Rendered
// slices are stretched vertically by this ratio to keep mm proportions.
func (p Plane) PixelSpacingRatio(spacing Spacing) float64 {
	l := p.Layout()
	return spacing[l.RowAxis] / spacing[l.ColAxis]
}
