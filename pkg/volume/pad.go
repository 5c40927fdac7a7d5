package volume

import (
	"triplanar/internal/models"
)

// PadToShape pads every spatial axis symmetrically with value so the result
// matches target. padBefore = (target-current)/2 and the remainder goes after.
// Axes already at or above the target are left alone; nothing is cropped.
// Time frames are padded independently.
func (v *Volume) PadToShape(target models.Shape, value float64) *Volume {
	cur := v.shape.Dims()
	tgt := target.Dims()
	var out, before [3]int
	changed := false
	for i := 0; i < 3; i++ {
		out[i] = cur[i]
		if tgt[i] > cur[i] {
			out[i] = tgt[i]
			before[i] = (tgt[i] - cur[i]) / 2
			changed = true
		}
	}
	if !changed {
		return v
	}
	shape := models.Shape{X: out[0], Y: out[1], Z: out[2], T: v.shape.T}
	return v.remap(shape, before, value)
}

// CropToShape trims spatial axes larger than target symmetrically, using the
// same split rule as PadToShape. Smaller axes are left alone.
func (v *Volume) CropToShape(target models.Shape) *Volume {
	cur := v.shape.Dims()
	tgt := target.Dims()
	var out, before [3]int
	changed := false
	for i := 0; i < 3; i++ {
		out[i] = cur[i]
		if cur[i] > tgt[i] {
			out[i] = tgt[i]
			before[i] = -((cur[i] - tgt[i]) / 2)
			changed = true
		}
	}
	if !changed {
		return v
	}
	shape := models.Shape{X: out[0], Y: out[1], Z: out[2], T: v.shape.T}
	return v.remap(shape, before, 0)
}

// remap copies v into a new shape, placing source voxel s at s+offset.
func (v *Volume) remap(shape models.Shape, offset [3]int, fill float64) *Volume {
	data := make([]float64, shape.Len())
	if fill != 0 {
		for i := range data {
			data[i] = fill
		}
	}
	for t := 0; t < shape.T; t++ {
		for z := 0; z < v.shape.Z; z++ {
			oz := z + offset[2]
			if oz < 0 || oz >= shape.Z {
				continue
			}
			for y := 0; y < v.shape.Y; y++ {
				oy := y + offset[1]
				if oy < 0 || oy >= shape.Y {
					continue
				}
				for x := 0; x < v.shape.X; x++ {
					ox := x + offset[0]
					if ox < 0 || ox >= shape.X {
						continue
					}
					data[shape.Index(ox, oy, oz, t)] = v.data[v.shape.Index(x, y, z, t)]
				}
			}
		}
	}
	return &Volume{shape: shape, data: data, affine: v.affine, spacing: v.spacing}
}
