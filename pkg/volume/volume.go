// Package volume owns the loaded intensity array, its affine and derived
// shape metadata. A Volume is immutable once constructed; every transform
// returns a new Volume.
package volume

import (
	"fmt"
	"math"

	"triplanar/internal/models"
)

// Volume is a 3D or 4D scalar intensity array in canonical axis order.
type Volume struct {
	shape   models.Shape
	data    []float64
	affine  Affine
	spacing models.Spacing
}

// New builds a volume from x-fastest data with 3 or 4 dims. It fails with a
// FormatError when the rank, dims or data length are inconsistent, or when the
// affine yields a non-positive voxel spacing.
func New(data []float64, dims []int, affine Affine) (*Volume, error) {
	if len(dims) != 3 && len(dims) != 4 {
		return nil, &models.FormatError{Reason: fmt.Sprintf("expected rank 3 or 4 array, got rank %d", len(dims))}
	}
	shape := models.Shape{X: dims[0], Y: dims[1], Z: dims[2], T: 1}
	if len(dims) == 4 {
		shape.T = dims[3]
	}
	for i, d := range dims {
		if d <= 0 {
			return nil, &models.FormatError{Reason: fmt.Sprintf("dimension %d has extent %d", i, d)}
		}
	}
	if len(data) != shape.Len() {
		return nil, &models.FormatError{Reason: fmt.Sprintf("data length %d does not match shape %v", len(data), shape)}
	}
	spacing := affine.Spacing()
	if err := validateSpacing(spacing); err != nil {
		return nil, &models.FormatError{Reason: err.Error()}
	}
	return &Volume{shape: shape, data: data, affine: affine, spacing: spacing}, nil
}

// Shape returns the full shape including the time axis.
func (v *Volume) Shape() models.Shape { return v.shape }

// SpatialShape drops the time axis.
func (v *Volume) SpatialShape() models.Shape { return v.shape.Spatial() }

// Is4D reports whether the volume is a time series.
func (v *Volume) Is4D() bool { return v.shape.Is4D() }

// Frames returns the number of time frames (1 for 3D).
func (v *Volume) Frames() int { return v.shape.T }

// Affine returns the voxel to mm transform.
func (v *Volume) Affine() Affine { return v.affine }

// Spacing returns the voxel size in mm.
func (v *Volume) Spacing() models.Spacing { return v.spacing }

// Data exposes the backing array. Callers must not modify it.
func (v *Volume) Data() []float64 { return v.data }

// VoxelAt returns the intensity at (x, y, z) in frame t. Out of range access
// fails with an IndexError; nothing is clamped.
func (v *Volume) VoxelAt(x, y, z, t int) (float64, error) {
	vox := models.Voxel{X: x, Y: y, Z: z}
	if !v.shape.Contains(vox) || t < 0 || t >= v.shape.T {
		return 0, &models.IndexError{Voxel: vox, T: t, Shape: v.shape}
	}
	return v.data[v.shape.Index(x, y, z, t)], nil
}

// At is VoxelAt without bounds checking, for kernels that have already
// clamped their indices.
func (v *Volume) At(x, y, z, t int) float64 {
	return v.data[v.shape.Index(x, y, z, t)]
}

// Frame returns time frame t as a 3D volume sharing the backing array.
func (v *Volume) Frame(t int) (*Volume, error) {
	if t < 0 || t >= v.shape.T {
		return nil, &models.IndexError{T: t, Shape: v.shape}
	}
	if !v.Is4D() {
		return v, nil
	}
	n := v.shape.FrameLen()
	return &Volume{
		shape:   v.shape.Spatial(),
		data:    v.data[t*n : (t+1)*n],
		affine:  v.affine,
		spacing: v.spacing,
	}, nil
}

// VoxelToWorld maps a voxel to mm coordinates.
func (v *Volume) VoxelToWorld(vox models.Voxel) [3]float64 {
	return v.affine.VoxelToWorld(float64(vox.X), float64(vox.Y), float64(vox.Z))
}

// WorldToVoxel maps mm coordinates to the nearest voxel. The result may lie
// outside the volume.
func (v *Volume) WorldToVoxel(p [3]float64) (models.Voxel, error) {
	c, err := v.affine.WorldToVoxel(p)
	if err != nil {
		return models.Voxel{}, err
	}
	return models.Voxel{X: int(math.Round(c[0])), Y: int(math.Round(c[1])), Z: int(math.Round(c[2]))}, nil
}

// PhysicalExtent is the size of the volume in mm along each axis.
func (v *Volume) PhysicalExtent() [3]float64 {
	d := v.shape.Dims()
	return [3]float64{
		float64(d[0]) * v.spacing[0],
		float64(d[1]) * v.spacing[1],
		float64(d[2]) * v.spacing[2],
	}
}

// Max returns the largest finite value, or 0 for an empty or non-finite volume.
func (v *Volume) Max() float64 {
	max := math.Inf(-1)
	for _, x := range v.data {
		if !math.IsNaN(x) && !math.IsInf(x, 0) && x > max {
			max = x
		}
	}
	if math.IsInf(max, -1) {
		return 0
	}
	return max
}
