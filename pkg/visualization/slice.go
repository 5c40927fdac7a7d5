// Package visualization turns volume slices into displayable images:
// extraction along a plane, colormapping, overlay compositing, anisotropic
// stretch and export.
package visualization

import (
	"fmt"

	"triplanar/internal/models"
	"triplanar/pkg/volume"
)

// Slice is a 2D scalar image in screen order: row 0 is the top of the
// screen and Data is row-major.
type Slice struct {
	Width  int
	Height int
	Data   []float64
}

// At returns the value at column c, row r.
func (s *Slice) At(c, r int) float64 {
	return s.Data[r*s.Width+c]
}

// ExtractSlice cuts frame t of v at index along the plane's fixed axis.
// The slice is transposed so the row axis runs down the image and then
// flipped vertically, so pixel (c, r) holds voxel col=c, row=Height-1-r.
func ExtractSlice(v *volume.Volume, plane models.Plane, index, t int) (*Slice, error) {
	shape := v.Shape()
	if err := checkCut(shape, plane, index); err != nil {
		return nil, err
	}
	if t < 0 || t >= shape.T {
		return nil, &models.IndexError{Voxel: cutVoxel(plane, index), T: t, Shape: shape}
	}
	data := v.Data()
	base := t * shape.FrameLen()
	return cut(shape, plane, index, func(i int) float64 { return data[base+i] }), nil
}

// ExtractMaskSlice cuts a binary mask the same way as ExtractSlice, giving
// a slice of 0 and 1 values.
func ExtractMaskSlice(m *models.Mask, plane models.Plane, index int) (*Slice, error) {
	if err := checkCut(m.Shape, plane, index); err != nil {
		return nil, err
	}
	return cut(m.Shape, plane, index, func(i int) float64 { return float64(m.Data[i]) }), nil
}

func cutVoxel(plane models.Plane, index int) models.Voxel {
	return models.Voxel{}.WithAxis(plane.Layout().FixedAxis, index)
}

func checkCut(shape models.Shape, plane models.Plane, index int) error {
	if !plane.Valid() {
		return &models.ConfigError{Param: "plane", Value: fmt.Sprint(int(plane))}
	}
	if index < 0 || index >= shape.Axis(plane.Layout().FixedAxis) {
		return &models.IndexError{Voxel: cutVoxel(plane, index), Shape: shape}
	}
	return nil
}

func cut(shape models.Shape, plane models.Plane, index int, sample func(i int) float64) *Slice {
	l := plane.Layout()
	stride := [3]int{1, shape.X, shape.X * shape.Y}
	w, h := plane.SliceDims(shape)
	s := &Slice{Width: w, Height: h, Data: make([]float64, w*h)}
	origin := index * stride[l.FixedAxis]
	for r := 0; r < h; r++ {
		rowOff := origin + (h-1-r)*stride[l.RowAxis]
		for c := 0; c < w; c++ {
			s.Data[r*w+c] = sample(rowOff + c*stride[l.ColAxis])
		}
	}
	return s
}
