// Package roi grows spherical, intensity-thresholded regions of interest
// around a seed voxel.
package roi

import (
	"context"
	"fmt"
	"math"

	"triplanar/internal/models"
	"triplanar/pkg/parallel"
	"triplanar/pkg/volume"
)

// Defaults used when an automatic ROI is started.
const (
	DefaultRadiusMm   = 32.0
	DefaultDifference = 0.16
)

// Params are the inputs of one grow operation.
type Params struct {
	Seed       models.Voxel
	RadiusMm   float64
	Difference float64
}

func (p Params) String() string {
	return fmt.Sprintf("seed=%v radius=%gmm difference=%g", p.Seed, p.RadiusMm, p.Difference)
}

// Validate checks the radius and tolerance.
func (p Params) Validate() error {
	if !(p.RadiusMm >= 0) || math.IsInf(p.RadiusMm, 0) {
		return &models.ConfigError{Param: "radius", Value: fmt.Sprint(p.RadiusMm), Reason: "must be a finite value >= 0"}
	}
	if !(p.Difference >= 0) || math.IsInf(p.Difference, 0) {
		return &models.ConfigError{Param: "difference", Value: fmt.Sprint(p.Difference), Reason: "must be a finite value >= 0"}
	}
	return nil
}

// MaxRadius is half of the smallest physical extent of the volume in mm.
func MaxRadius(shape models.Shape, spacing models.Spacing) float64 {
	dims := shape.Dims()
	m := math.Inf(1)
	for i := 0; i < 3; i++ {
		m = math.Min(m, float64(dims[i])*spacing[i])
	}
	return m / 2
}

// Box is an inclusive-exclusive voxel range [Min, Max).
type Box struct {
	Min, Max models.Voxel
}

// BoundingBox returns the voxel box covering a sphere of radiusMm around
// seed, clamped to shape. The per-axis voxel radius never exceeds the axis
// length, so arbitrarily large finite radii cover the whole volume.
func BoundingBox(shape models.Shape, spacing models.Spacing, seed models.Voxel, radiusMm float64) Box {
	var b Box
	dims := shape.Dims()
	for axis := 0; axis < 3; axis++ {
		r := int(math.Min(math.Ceil(radiusMm/spacing[axis]), float64(dims[axis])))
		c := seed.Axis(axis)
		b.Min = b.Min.WithAxis(axis, max(0, c-r))
		b.Max = b.Max.WithAxis(axis, min(dims[axis], c+r+1))
	}
	return b
}

// Grow builds a mask over the spatial shape of v. A voxel inside the
// bounding box is set when its distance to the seed in mm is at most the
// radius and its intensity in frame t differs from the seed intensity by at
// most the tolerance. Rows of the box are evaluated in parallel and ctx is
// checked per row.
func Grow(ctx context.Context, v *volume.Volume, t int, p Params, workers int) (*models.Mask, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	shape := v.Shape()
	seedValue, err := v.VoxelAt(p.Seed.X, p.Seed.Y, p.Seed.Z, t)
	if err != nil {
		return nil, err
	}

	mask := models.NewMask(shape)
	sp := v.Spacing()
	box := BoundingBox(shape, sp, p.Seed, p.RadiusMm)
	ny := box.Max.Y - box.Min.Y
	nz := box.Max.Z - box.Min.Z
	r2 := p.RadiusMm * p.RadiusMm
	data := v.Data()
	frame := t * shape.FrameLen()

	err = parallel.ForRows(ctx, ny*nz, workers, func(row int) error {
		y := box.Min.Y + row%ny
		z := box.Min.Z + row/ny
		dy := float64(y-p.Seed.Y) * sp[1]
		dz := float64(z-p.Seed.Z) * sp[2]
		dyz := dy*dy + dz*dz
		if dyz > r2 {
			return nil
		}
		off := shape.Index(0, y, z, 0)
		for x := box.Min.X; x < box.Max.X; x++ {
			dx := float64(x-p.Seed.X) * sp[0]
			if dx*dx+dyz > r2 {
				continue
			}
			if math.Abs(data[frame+off+x]-seedValue) <= p.Difference {
				mask.Data[off+x] = 1
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mask, nil
}

// Accumulate returns the union of prior and next. A nil prior yields a
// copy of next. Neither input is modified.
func Accumulate(prior, next *models.Mask) (*models.Mask, error) {
	if next == nil {
		if prior == nil {
			return nil, nil
		}
		return prior.Clone(), nil
	}
	if prior == nil {
		return next.Clone(), nil
	}
	if prior.Shape != next.Shape {
		return nil, fmt.Errorf("cannot accumulate mask %v into %v", next.Shape, prior.Shape)
	}
	out := prior.Clone()
	for i, b := range next.Data {
		out.Data[i] |= b
	}
	return out, nil
}
