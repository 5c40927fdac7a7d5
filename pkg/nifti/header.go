// Package nifti reads and writes single-file NIfTI-1 volumes (.nii and
// .nii.gz).
package nifti

import (
	"math"

	"triplanar/pkg/volume"
)

// HeaderSize is sizeof_hdr for NIfTI-1.
const HeaderSize = 348

// DataOffset is where voxel data starts in files written by this package.
const DataOffset = 352

// DataType is the NIfTI datatype code.
type DataType int16

const (
	Uint8   DataType = 2
	Int16   DataType = 4
	Int32   DataType = 8
	Float32 DataType = 16
	Float64 DataType = 64
	Int8    DataType = 256
	Uint16  DataType = 512
	Uint32  DataType = 768
	Int64   DataType = 1024
	Uint64  DataType = 1280
)

// Size returns bytes per voxel, or 0 for unsupported types.
func (d DataType) Size() int {
	switch d {
	case Uint8, Int8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	}
	return 0
}

// Header is the on-disk NIfTI-1 header. Field order and sizes match the
// 348 byte layout so it can be read with encoding/binary.
type Header struct {
	SizeofHdr      int32
	DataTypeName   [10]byte
	DBName         [18]byte
	Extents        int32
	SessionError   int16
	Regular        byte
	DimInfo        byte
	Dim            [8]int16
	IntentP1       float32
	IntentP2       float32
	IntentP3       float32
	IntentCode     int16
	Datatype       DataType
	Bitpix         int16
	SliceStart     int16
	Pixdim         [8]float32
	VoxOffset      float32
	SclSlope       float32
	SclInter       float32
	SliceEnd       int16
	SliceCode      byte
	XYZTUnits      byte
	CalMax         float32
	CalMin         float32
	SliceDuration  float32
	Toffset        float32
	Glmax          int32
	Glmin          int32
	Descrip        [80]byte
	AuxFile        [24]byte
	QformCode      int16
	SformCode      int16
	QuaternB       float32
	QuaternC       float32
	QuaternD       float32
	QoffsetX       float32
	QoffsetY       float32
	QoffsetZ       float32
	SrowX          [4]float32
	SrowY          [4]float32
	SrowZ          [4]float32
	IntentName     [16]byte
	Magic          [4]byte
}

// Dims returns the used dimensions (dim[1..dim[0]]).
func (h *Header) Dims() []int {
	n := int(h.Dim[0])
	if n < 0 || n > 7 {
		return nil
	}
	dims := make([]int, n)
	for i := 0; i < n; i++ {
		dims[i] = int(h.Dim[i+1])
	}
	return dims
}

// Affine returns the voxel to mm transform, preferring the sform, then the
// qform, then a plain pixdim scaling.
func (h *Header) Affine() volume.Affine {
	switch {
	case h.SformCode > 0:
		return volume.Affine{
			{float64(h.SrowX[0]), float64(h.SrowX[1]), float64(h.SrowX[2]), float64(h.SrowX[3])},
			{float64(h.SrowY[0]), float64(h.SrowY[1]), float64(h.SrowY[2]), float64(h.SrowY[3])},
			{float64(h.SrowZ[0]), float64(h.SrowZ[1]), float64(h.SrowZ[2]), float64(h.SrowZ[3])},
			{0, 0, 0, 1},
		}
	case h.QformCode > 0:
		return h.qformAffine()
	default:
		return volume.Diagonal(float64(h.Pixdim[1]), float64(h.Pixdim[2]), float64(h.Pixdim[3]))
	}
}

func (h *Header) qformAffine() volume.Affine {
	b, c, d := float64(h.QuaternB), float64(h.QuaternC), float64(h.QuaternD)
	a := 1 - (b*b + c*c + d*d)
	if a < 1e-7 {
		// quaternion was normalised with a = 0
		n := math.Sqrt(b*b + c*c + d*d)
		if n > 0 {
			b, c, d = b/n, c/n, d/n
		}
		a = 0
	} else {
		a = math.Sqrt(a)
	}
	r := [3][3]float64{
		{a*a + b*b - c*c - d*d, 2 * (b*c - a*d), 2 * (b*d + a*c)},
		{2 * (b*c + a*d), a*a + c*c - b*b - d*d, 2 * (c*d - a*b)},
		{2 * (b*d - a*c), 2 * (c*d + a*b), a*a + d*d - c*c - b*b},
	}
	qfac := float64(h.Pixdim[0])
	if qfac == 0 {
		qfac = 1
	}
	scale := [3]float64{float64(h.Pixdim[1]), float64(h.Pixdim[2]), float64(h.Pixdim[3]) * qfac}
	var out volume.Affine
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = r[i][j] * scale[j]
		}
	}
	out[0][3] = float64(h.QoffsetX)
	out[1][3] = float64(h.QoffsetY)
	out[2][3] = float64(h.QoffsetZ)
	out[3][3] = 1
	return out
}

// newHeader builds a header for dims, datatype and affine, recording the
// affine as an sform and the voxel sizes in pixdim.
func newHeader(dims []int, dt DataType, affine volume.Affine, descrip string) Header {
	var h Header
	h.SizeofHdr = HeaderSize
	h.Regular = 'r'
	h.Dim[0] = int16(len(dims))
	for i, d := range dims {
		h.Dim[i+1] = int16(d)
	}
	for i := len(dims) + 1; i < 8; i++ {
		h.Dim[i] = 1
	}
	h.Datatype = dt
	h.Bitpix = int16(dt.Size() * 8)
	spacing := affine.Spacing()
	h.Pixdim[0] = 1
	for i := 0; i < 3; i++ {
		h.Pixdim[i+1] = float32(spacing[i])
	}
	for i := 4; i < 8; i++ {
		h.Pixdim[i] = 1
	}
	h.VoxOffset = DataOffset
	h.SclSlope = 1
	h.XYZTUnits = 2 | 8 // mm, seconds
	copy(h.Descrip[:], descrip)
	h.SformCode = 1
	for j := 0; j < 4; j++ {
		h.SrowX[j] = float32(affine[0][j])
		h.SrowY[j] = float32(affine[1][j])
		h.SrowZ[j] = float32(affine[2][j])
	}
	copy(h.Magic[:], "n+1\x00")
	return h
}
