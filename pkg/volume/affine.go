package volume

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"triplanar/internal/models"
)

// Affine maps homogeneous voxel indices to physical coordinates in mm.
type Affine [4][4]float64

// Identity returns the identity affine (1mm isotropic, origin at voxel 0).
func Identity() Affine {
	return Affine{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}}
}

// Diagonal returns an axis aligned affine with the given voxel sizes.
func Diagonal(sx, sy, sz float64) Affine {
	return Affine{{sx, 0, 0, 0}, {0, sy, 0, 0}, {0, 0, sz, 0}, {0, 0, 0, 1}}
}

// Dense returns the affine as a gonum matrix.
func (a Affine) Dense() *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			m.Set(i, j, a[i][j])
		}
	}
	return m
}

// FromDense copies a 4x4 gonum matrix into an Affine.
func FromDense(m mat.Matrix) Affine {
	var a Affine
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			a[i][j] = m.At(i, j)
		}
	}
	return a
}

// Spacing returns the column-wise Euclidean norms of the 3x3 linear block.
func (a Affine) Spacing() models.Spacing {
	var s models.Spacing
	col := make([]float64, 3)
	for j := 0; j < 3; j++ {
		for i := 0; i < 3; i++ {
			col[i] = a[i][j]
		}
		s[j] = floats.Norm(col, 2)
	}
	return s
}

// validateSpacing rejects zero, negative or non-finite voxel sizes.
func validateSpacing(s models.Spacing) error {
	for axis, v := range s {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("voxel spacing along axis %d is %g", axis, v)
		}
	}
	return nil
}

// VoxelToWorld maps a voxel index to physical coordinates.
func (a Affine) VoxelToWorld(x, y, z float64) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = a[i][0]*x + a[i][1]*y + a[i][2]*z + a[i][3]
	}
	return out
}

// WorldToVoxel maps physical coordinates back to continuous voxel indices.
func (a Affine) WorldToVoxel(p [3]float64) ([3]float64, error) {
	var inv mat.Dense
	if err := inv.Inverse(a.Dense()); err != nil {
		return [3]float64{}, fmt.Errorf("affine is not invertible: %w", err)
	}
	h := mat.NewVecDense(4, []float64{p[0], p[1], p[2], 1})
	var v mat.VecDense
	v.MulVec(&inv, h)
	return [3]float64{v.AtVec(0), v.AtVec(1), v.AtVec(2)}, nil
}
