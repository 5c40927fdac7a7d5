package viewer

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"triplanar/internal/models"
)

// Readout is the coordinate and value shown for a pointer position.
type Readout struct {
	Plane models.Plane
	Voxel models.Voxel
	Value float64
	// Text is the in-plane coordinate pair, e.g. "(x, y)" for axial.
	Text string
}

func (s *Session) readoutLocked(plane models.Plane, v models.Voxel) Readout {
	l := plane.Layout()
	return Readout{
		Plane: plane,
		Voxel: v,
		Value: s.vol.At(v.X, v.Y, v.Z, s.cursor.T),
		Text:  fmt.Sprintf("(%d, %d)", v.Axis(l.ColAxis), v.Axis(l.RowAxis)),
	}
}

// Readout returns the readout of plane at the cursor.
func (s *Session) Readout(plane models.Plane) (Readout, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == Empty || !plane.Valid() {
		return Readout{}, false
	}
	return s.readoutLocked(plane, s.cursor.Voxel), true
}

// SliceInfo formats the 1-based slice of every view, plus the frame for 4D
// volumes: "Slices: a/Z | c/Y | s/X | Time: t/T".
func (s *Session) SliceInfo() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == Empty {
		return ""
	}
	shape := s.vol.Shape()
	var b strings.Builder
	fmt.Fprintf(&b, "Slices: %d/%d | %d/%d | %d/%d",
		s.views[models.Axial].Slice+1, shape.Z,
		s.views[models.Coronal].Slice+1, shape.Y,
		s.views[models.Sagittal].Slice+1, shape.X)
	if shape.Is4D() {
		fmt.Fprintf(&b, " | Time: %d/%d", s.cursor.T+1, shape.T)
	}
	return b.String()
}

// WorldCursor returns the cursor position in mm.
func (s *Session) WorldCursor() ([3]float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == Empty {
		return [3]float64{}, false
	}
	return s.vol.VoxelToWorld(s.cursor.Voxel), true
}

// Series is an intensity curve over time.
type Series struct {
	// Values is the voxel intensity, or the ROI mean when ROI is set.
	Values []float64
	// Std is the per-frame standard deviation over the ROI.
	Std []float64
	ROI bool
	// Voxels is the number of voxels averaged.
	Voxels int
}

// TimeSeries returns the cursor voxel's intensity over time. When the
// overlay is shown and the cursor lies inside its mask, the mean and
// population standard deviation over the mask are returned instead.
func (s *Session) TimeSeries() (Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == Empty {
		return Series{}, errNotLoaded
	}
	if !s.vol.Is4D() {
		return Series{}, errors.New("time series needs a 4D volume")
	}
	shape := s.vol.Shape()
	c := s.cursor.Voxel

	if o := s.overlay; o != nil && o.Enabled && o.mask.At(c.X, c.Y, c.Z) {
		var idx []int
		for i, b := range o.mask.Data {
			if b != 0 {
				idx = append(idx, i)
			}
		}
		out := Series{Values: make([]float64, shape.T), Std: make([]float64, shape.T), ROI: true, Voxels: len(idx)}
		samples := make([]float64, len(idx))
		data := s.vol.Data()
		for t := 0; t < shape.T; t++ {
			frame := data[t*shape.FrameLen():]
			for k, i := range idx {
				samples[k] = frame[i]
			}
			mean, variance := stat.PopMeanVariance(samples, nil)
			out.Values[t], out.Std[t] = mean, math.Sqrt(variance)
		}
		return out, nil
	}

	out := Series{Values: make([]float64, shape.T), Voxels: 1}
	for t := 0; t < shape.T; t++ {
		out.Values[t] = s.vol.At(c.X, c.Y, c.Z, t)
	}
	return out, nil
}
