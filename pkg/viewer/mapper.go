// Package viewer keeps three orthogonal views of a volume in sync: the
// shared cursor, per-view slice indices and stretch factors, overlay
// layers and the region-grow workflow.
package viewer

import (
	"math"

	"triplanar/internal/models"
	"triplanar/pkg/visualization"
)

// pixelEpsilon absorbs rounding when a crosshair position divided by its
// stretch lands just below a whole voxel.
const pixelEpsilon = 1e-6

// CoordinateMapper converts between display pixels of one view and voxel
// indices. It inverts the transpose and vertical flip of slice extraction
// and the vertical stretch applied when rendering.
type CoordinateMapper struct {
	Plane   models.Plane
	Stretch visualization.Stretch
}

// ScreenToVoxel maps pixel (px, py) to a voxel. In-plane axes are clamped
// to the volume and the out-of-plane axis is taken from cursor.
func (m CoordinateMapper) ScreenToVoxel(shape models.Shape, cursor models.Voxel, px, py float64) models.Voxel {
	l := m.Plane.Layout()
	sx, sy := m.stretch()
	col := clampIndex(math.Floor(px/sx+pixelEpsilon), shape.Axis(l.ColAxis))
	row := clampIndex(math.Floor(py/sy+pixelEpsilon), shape.Axis(l.RowAxis))
	row = shape.Axis(l.RowAxis) - 1 - row
	return cursor.WithAxis(l.ColAxis, col).WithAxis(l.RowAxis, row)
}

// VoxelToScreen is the inverse of ScreenToVoxel, giving the top-left pixel
// of the voxel's cell. It is used to position crosshairs.
func (m CoordinateMapper) VoxelToScreen(shape models.Shape, v models.Voxel) (px, py float64) {
	l := m.Plane.Layout()
	sx, sy := m.stretch()
	px = float64(v.Axis(l.ColAxis)) * sx
	py = float64(shape.Axis(l.RowAxis)-1-v.Axis(l.RowAxis)) * sy
	return px, py
}

func (m CoordinateMapper) stretch() (float64, float64) {
	sx, sy := m.Stretch.X, m.Stretch.Y
	if !(sx > 0) {
		sx = 1
	}
	if !(sy > 0) {
		sy = 1
	}
	return sx, sy
}

func clampIndex(v float64, n int) int {
	if !(v > 0) {
		return 0
	}
	if v >= float64(n-1) {
		return n - 1
	}
	return int(v)
}

// Crosshair is the position of a view's crosshair in display pixels.
type Crosshair struct {
	Visible bool
	X, Y    float64
}

// ViewState is the per-plane state of one view.
type ViewState struct {
	Plane     models.Plane
	Slice     int
	Stretch   visualization.Stretch
	Crosshair Crosshair
}

// Mapper returns the coordinate mapper for the view's current stretch.
func (vs ViewState) Mapper() CoordinateMapper {
	return CoordinateMapper{Plane: vs.Plane, Stretch: vs.Stretch}
}
