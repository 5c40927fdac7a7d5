package volume

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"

	"triplanar/internal/models"
	"triplanar/pkg/parallel"
)

// Orientation records, for each voxel axis, the world axis it is closest to
// and whether it runs against that world axis.
type Orientation struct {
	WorldAxis [3]int
	Flip      [3]bool
}

// IsCanonical reports whether voxel axes already run along +x, +y, +z.
func (o Orientation) IsCanonical() bool {
	for j := 0; j < 3; j++ {
		if o.WorldAxis[j] != j || o.Flip[j] {
			return false
		}
	}
	return true
}

// Orient finds the closest RAS+ orientation of the affine's voxel axes.
// Pairs are assigned greedily by largest normalised direction cosine so no
// two voxel axes claim the same world axis.
func (a Affine) Orient() Orientation {
	var cos [3][3]float64
	spacing := a.Spacing()
	for j := 0; j < 3; j++ {
		for i := 0; i < 3; i++ {
			if spacing[j] > 0 {
				cos[i][j] = a[i][j] / spacing[j]
			}
		}
	}

	var o Orientation
	var usedWorld, usedVoxel [3]bool
	for n := 0; n < 3; n++ {
		best, bi, bj := -1.0, 0, 0
		for i := 0; i < 3; i++ {
			if usedWorld[i] {
				continue
			}
			for j := 0; j < 3; j++ {
				if usedVoxel[j] {
					continue
				}
				if c := math.Abs(cos[i][j]); c > best {
					best, bi, bj = c, i, j
				}
			}
		}
		usedWorld[bi], usedVoxel[bj] = true, true
		o.WorldAxis[bj] = bi
		o.Flip[bj] = cos[bi][bj] < 0
	}
	return o
}

// Canonicalize reorders and flips axes so that voxel axes 0, 1, 2 run along
// +x (right), +y (anterior) and +z (superior). The affine is updated so every
// voxel keeps its physical position. Time frames are untouched.
func (v *Volume) Canonicalize(ctx context.Context, workers int) (*Volume, error) {
	o := v.affine.Orient()
	if o.IsCanonical() {
		return v, nil
	}

	in := v.shape.Dims()
	var outDims [3]int
	for j := 0; j < 3; j++ {
		outDims[o.WorldAxis[j]] = in[j]
	}
	out := models.Shape{X: outDims[0], Y: outDims[1], Z: outDims[2], T: v.shape.T}

	// T maps output voxel indices to input voxel indices.
	t := mat.NewDense(4, 4, nil)
	t.Set(3, 3, 1)
	for j := 0; j < 3; j++ {
		i := o.WorldAxis[j]
		if o.Flip[j] {
			t.Set(j, i, -1)
			t.Set(j, 3, float64(in[j]-1))
		} else {
			t.Set(j, i, 1)
		}
	}
	var newAffine mat.Dense
	newAffine.Mul(v.affine.Dense(), t)

	data := make([]float64, out.Len())
	rows := out.T * out.Z
	err := parallel.ForRows(ctx, rows, workers, func(row int) error {
		tt, oz := row/out.Z, row%out.Z
		var src [3]int
		for oy := 0; oy < out.Y; oy++ {
			for ox := 0; ox < out.X; ox++ {
				o3 := [3]int{ox, oy, oz}
				for j := 0; j < 3; j++ {
					idx := o3[o.WorldAxis[j]]
					if o.Flip[j] {
						idx = in[j] - 1 - idx
					}
					src[j] = idx
				}
				data[out.Index(ox, oy, oz, tt)] = v.data[v.shape.Index(src[0], src[1], src[2], tt)]
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	affine := FromDense(&newAffine)
	return &Volume{shape: out, data: data, affine: affine, spacing: affine.Spacing()}, nil
}
