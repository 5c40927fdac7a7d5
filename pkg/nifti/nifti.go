package nifti

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"triplanar/internal/models"
	"triplanar/pkg/volume"
)

// Image is a decoded NIfTI file in its native (scanner) axis order.
type Image struct {
	Header Header
	Dims   []int
	Data   []float64
	Affine volume.Affine
}

// Reader decodes a NIfTI stream in two steps so callers can report progress
// between the header and the voxel data.
type Reader struct {
	path   string
	r      *bufio.Reader
	closer []io.Closer
	order  binary.ByteOrder
	Header Header
}

var gzipMagic = []byte{0x1f, 0x8b}

// Open opens path, transparently gunzipping it, and decodes the header.
// Decoding failures are reported as FormatError.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &models.FormatError{Path: path, Reason: err.Error()}
	}
	rd := &Reader{path: path, closer: []io.Closer{f}}
	br := bufio.NewReader(f)
	if magic, _ := br.Peek(2); bytes.Equal(magic, gzipMagic) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, &models.FormatError{Path: path, Reason: fmt.Sprintf("gzip: %v", err)}
		}
		rd.closer = append(rd.closer, zr)
		br = bufio.NewReader(zr)
	}
	rd.r = br
	if err := rd.readHeader(); err != nil {
		rd.Close()
		return nil, err
	}
	return rd, nil
}

// Close releases the underlying file.
func (rd *Reader) Close() error {
	var first error
	for i := len(rd.closer) - 1; i >= 0; i-- {
		if err := rd.closer[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	rd.closer = nil
	return first
}

func (rd *Reader) formatErr(format string, args ...interface{}) error {
	return &models.FormatError{Path: rd.path, Reason: fmt.Sprintf(format, args...)}
}

func (rd *Reader) readHeader() error {
	raw := make([]byte, HeaderSize)
	if _, err := io.ReadFull(rd.r, raw); err != nil {
		return rd.formatErr("reading header: %v", err)
	}
	switch {
	case binary.LittleEndian.Uint32(raw) == HeaderSize:
		rd.order = binary.LittleEndian
	case binary.BigEndian.Uint32(raw) == HeaderSize:
		rd.order = binary.BigEndian
	default:
		return rd.formatErr("not a NIfTI-1 file")
	}
	if err := binary.Read(bytes.NewReader(raw), rd.order, &rd.Header); err != nil {
		return rd.formatErr("decoding header: %v", err)
	}
	magic := string(bytes.TrimRight(rd.Header.Magic[:], "\x00"))
	if magic != "n+1" {
		return rd.formatErr("unsupported magic %q (only single-file NIfTI-1)", magic)
	}
	return rd.validate()
}

// validate rejects anything that is not a rank 3 or 4 scalar numeric volume.
func (rd *Reader) validate() error {
	dims := rd.Header.Dims()
	if len(dims) < 3 || len(dims) > 4 {
		return rd.formatErr("expected rank 3 or 4 volume, got rank %d", len(dims))
	}
	for i, d := range dims {
		if d <= 0 {
			return rd.formatErr("dimension %d has extent %d", i+1, d)
		}
	}
	if rd.Header.Datatype.Size() == 0 {
		return rd.formatErr("unsupported datatype %d", rd.Header.Datatype)
	}
	if rd.Header.VoxOffset < HeaderSize {
		return rd.formatErr("invalid vox_offset %g", rd.Header.VoxOffset)
	}
	return nil
}

// Dims returns the validated volume dimensions.
func (rd *Reader) Dims() []int {
	return rd.Header.Dims()
}

// ReadData reads and scales the voxel array. ctx is checked once per slice.
func (rd *Reader) ReadData(ctx context.Context) (*Image, error) {
	dims := rd.Dims()
	skip := int64(rd.Header.VoxOffset) - HeaderSize
	if _, err := io.CopyN(io.Discard, rd.r, skip); err != nil {
		return nil, rd.formatErr("seeking to voxel data: %v", err)
	}

	n := 1
	for _, d := range dims {
		n *= d
	}
	sliceLen := dims[0] * dims[1]
	dt := rd.Header.Datatype
	buf := make([]byte, sliceLen*dt.Size())
	data := make([]float64, n)

	slope, inter := float64(rd.Header.SclSlope), float64(rd.Header.SclInter)
	scaled := slope != 0 && !math.IsNaN(slope) && !math.IsInf(slope, 0) && !(slope == 1 && inter == 0)

	for off := 0; off < n; off += sliceLen {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(rd.r, buf); err != nil {
			return nil, rd.formatErr("reading voxel data: %v", err)
		}
		decodeSamples(buf, data[off:off+sliceLen], dt, rd.order)
		if scaled {
			for i := off; i < off+sliceLen; i++ {
				data[i] = data[i]*slope + inter
			}
		}
	}

	return &Image{Header: rd.Header, Dims: dims, Data: data, Affine: rd.Header.Affine()}, nil
}

func decodeSamples(buf []byte, dst []float64, dt DataType, order binary.ByteOrder) {
	switch dt {
	case Uint8:
		for i := range dst {
			dst[i] = float64(buf[i])
		}
	case Int8:
		for i := range dst {
			dst[i] = float64(int8(buf[i]))
		}
	case Int16:
		for i := range dst {
			dst[i] = float64(int16(order.Uint16(buf[2*i:])))
		}
	case Uint16:
		for i := range dst {
			dst[i] = float64(order.Uint16(buf[2*i:]))
		}
	case Int32:
		for i := range dst {
			dst[i] = float64(int32(order.Uint32(buf[4*i:])))
		}
	case Uint32:
		for i := range dst {
			dst[i] = float64(order.Uint32(buf[4*i:]))
		}
	case Float32:
		for i := range dst {
			dst[i] = float64(math.Float32frombits(order.Uint32(buf[4*i:])))
		}
	case Int64:
		for i := range dst {
			dst[i] = float64(int64(order.Uint64(buf[8*i:])))
		}
	case Uint64:
		for i := range dst {
			dst[i] = float64(order.Uint64(buf[8*i:]))
		}
	case Float64:
		for i := range dst {
			dst[i] = math.Float64frombits(order.Uint64(buf[8*i:]))
		}
	}
}

// Load decodes a whole file.
func Load(ctx context.Context, path string) (*Image, error) {
	rd, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rd.Close()
	return rd.ReadData(ctx)
}

// IsGzipPath reports whether path should be gzip-compressed on write.
func IsGzipPath(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}

// Encode writes a little-endian NIfTI-1 stream. Values are converted to dt
// with rounding for integer types. ctx is checked once per slice.
func Encode(ctx context.Context, w io.Writer, dims []int, data []float64, affine volume.Affine, dt DataType, descrip string) error {
	if len(dims) < 3 || len(dims) > 4 {
		return fmt.Errorf("nifti: cannot encode rank %d", len(dims))
	}
	if dt.Size() == 0 {
		return fmt.Errorf("nifti: unsupported datatype %d", dt)
	}
	n := 1
	for _, d := range dims {
		n *= d
	}
	if n != len(data) {
		return fmt.Errorf("nifti: data length %d does not match dims %v", len(data), dims)
	}

	h := newHeader(dims, dt, affine, descrip)
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, &h); err != nil {
		return err
	}
	// empty extension block
	if _, err := bw.Write(make([]byte, DataOffset-HeaderSize)); err != nil {
		return err
	}

	sliceLen := dims[0] * dims[1]
	buf := make([]byte, sliceLen*dt.Size())
	for off := 0; off < n; off += sliceLen {
		if err := ctx.Err(); err != nil {
			return err
		}
		encodeSamples(buf, data[off:off+sliceLen], dt)
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func encodeSamples(buf []byte, src []float64, dt DataType) {
	le := binary.LittleEndian
	for i, v := range src {
		switch dt {
		case Uint8:
			buf[i] = uint8(math.Round(v))
		case Int8:
			buf[i] = byte(int8(math.Round(v)))
		case Int16:
			le.PutUint16(buf[2*i:], uint16(int16(math.Round(v))))
		case Uint16:
			le.PutUint16(buf[2*i:], uint16(math.Round(v)))
		case Int32:
			le.PutUint32(buf[4*i:], uint32(int32(math.Round(v))))
		case Uint32:
			le.PutUint32(buf[4*i:], uint32(math.Round(v)))
		case Float32:
			le.PutUint32(buf[4*i:], math.Float32bits(float32(v)))
		case Int64:
			le.PutUint64(buf[8*i:], uint64(int64(math.Round(v))))
		case Uint64:
			le.PutUint64(buf[8*i:], uint64(math.Round(v)))
		case Float64:
			le.PutUint64(buf[8*i:], math.Float64bits(v))
		}
	}
}

// EncodeFile encodes to w, gzip-compressing when gz is set.
func EncodeFile(ctx context.Context, w io.Writer, gz bool, dims []int, data []float64, affine volume.Affine, dt DataType, descrip string) error {
	if !gz {
		return Encode(ctx, w, dims, data, affine, dt, descrip)
	}
	zw := gzip.NewWriter(w)
	if err := Encode(ctx, zw, dims, data, affine, dt, descrip); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// Save writes a file at path, gzip-compressed for .gz paths.
func Save(ctx context.Context, path string, dims []int, data []float64, affine volume.Affine, dt DataType) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeFile(ctx, f, IsGzipPath(path), dims, data, affine, dt, ""); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
