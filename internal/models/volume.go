package models

import "fmt"

// Shape holds the extent of a volume along each axis. T is 1 for 3D data.
type Shape struct {
	X, Y, Z, T int
}

// Spatial returns the shape with the time axis collapsed.
func (s Shape) Spatial() Shape {
	return Shape{X: s.X, Y: s.Y, Z: s.Z, T: 1}
}

// Is4D reports whether the shape carries more than one time frame.
func (s Shape) Is4D() bool {
	return s.T > 1
}

// Axis returns the extent along spatial axis 0, 1 or 2.
func (s Shape) Axis(axis int) int {
	switch axis {
	case 0:
		return s.X
	case 1:
		return s.Y
	case 2:
		return s.Z
	}
	panic(fmt.Sprintf("illegal axis %d", axis))
}

// Dims returns the spatial extents as an array.
func (s Shape) Dims() [3]int {
	return [3]int{s.X, s.Y, s.Z}
}

// FrameLen is the number of voxels in one 3D frame.
func (s Shape) FrameLen() int {
	return s.X * s.Y * s.Z
}

// Len is the total number of samples including all time frames.
func (s Shape) Len() int {
	t := s.T
	if t < 1 {
		t = 1
	}
	return s.FrameLen() * t
}

// Index returns the flat offset of voxel (x, y, z) in frame t.
// Data is stored x-fastest: ((t*Z + z)*Y + y)*X + x.
func (s Shape) Index(x, y, z, t int) int {
	return ((t*s.Z+z)*s.Y+y)*s.X + x
}

// Contains reports whether the voxel lies inside the spatial extent.
func (s Shape) Contains(v Voxel) bool {
	return v.X >= 0 && v.X < s.X && v.Y >= 0 && v.Y < s.Y && v.Z >= 0 && v.Z < s.Z
}

// Center returns the middle voxel of the spatial extent.
func (s Shape) Center() Voxel {
	return Voxel{X: (s.X - 1) / 2, Y: (s.Y - 1) / 2, Z: (s.Z - 1) / 2}
}

func (s Shape) String() string {
	if s.Is4D() {
		return fmt.Sprintf("%dx%dx%dx%d", s.X, s.Y, s.Z, s.T)
	}
	return fmt.Sprintf("%dx%dx%d", s.X, s.Y, s.Z)
}

// Voxel is an integer voxel index.
type Voxel struct {
	X, Y, Z int
}

// Axis returns the component along spatial axis 0, 1 or 2.
func (v Voxel) Axis(axis int) int {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	case 2:
		return v.Z
	}
	panic(fmt.Sprintf("illegal axis %d", axis))
}

// WithAxis returns a copy of v with the given axis replaced.
func (v Voxel) WithAxis(axis, value int) Voxel {
	switch axis {
	case 0:
		v.X = value
	case 1:
		v.Y = value
	case 2:
		v.Z = value
	default:
		panic(fmt.Sprintf("illegal axis %d", axis))
	}
	return v
}

// Slice returns the voxel as a three element slice, used for JSON output.
func (v Voxel) Slice() []int {
	return []int{v.X, v.Y, v.Z}
}

func (v Voxel) String() string {
	return fmt.Sprintf("(%d, %d, %d)", v.X, v.Y, v.Z)
}

// Cursor is the shared position of all three views.
type Cursor struct {
	Voxel
	// T is the selected time frame, always 0 for 3D data.
	T int
}

// Spacing is the physical voxel size in mm along x, y and z.
type Spacing [3]float64

// Mask is a binary volume aligned with a spatial shape.
type Mask struct {
	Shape Shape
	Data  []uint8
}

// NewMask allocates an all-zero mask over the spatial part of shape.
func NewMask(shape Shape) *Mask {
	shape = shape.Spatial()
	return &Mask{Shape: shape, Data: make([]uint8, shape.FrameLen())}
}

// At reports whether voxel (x, y, z) is set. Out of range voxels are unset.
func (m *Mask) At(x, y, z int) bool {
	if x < 0 || y < 0 || z < 0 || x >= m.Shape.X || y >= m.Shape.Y || z >= m.Shape.Z {
		return false
	}
	return m.Data[m.Shape.Index(x, y, z, 0)] != 0
}

// Set marks voxel (x, y, z).
func (m *Mask) Set(x, y, z int) {
	m.Data[m.Shape.Index(x, y, z, 0)] = 1
}

// Count returns the number of set voxels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v != 0 {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the mask.
func (m *Mask) Clone() *Mask {
	data := make([]uint8, len(m.Data))
	copy(data, m.Data)
	return &Mask{Shape: m.Shape, Data: data}
}
