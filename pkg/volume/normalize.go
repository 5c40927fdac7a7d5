package volume

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"triplanar/pkg/parallel"
)

// Percentile black and white points used by Normalize.
const (
	LowPercentile  = 0.005
	HighPercentile = 0.995
)

// Normalize rescales intensities to [0,1]. Each 3D frame is clipped to its
// own 0.5th-99.5th percentile of finite values and mapped linearly. When both
// percentiles coincide the upper bound is widened by 1. Non-finite voxels are
// excluded from the percentiles and clamped afterwards (+Inf to 1, -Inf and
// NaN to 0).
func (v *Volume) Normalize(ctx context.Context, workers int) (*Volume, error) {
	n := v.shape.FrameLen()
	out := make([]float64, len(v.data))
	err := parallel.ForRows(ctx, v.shape.T, workers, func(t int) error {
		normalizeFrame(v.data[t*n:(t+1)*n], out[t*n:(t+1)*n])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Volume{shape: v.shape, data: out, affine: v.affine, spacing: v.spacing}, nil
}

// PercentileRange returns the black and white points of values.
func PercentileRange(values []float64) (lo, hi float64, ok bool) {
	finite := make([]float64, 0, len(values))
	for _, x := range values {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			finite = append(finite, x)
		}
	}
	if len(finite) == 0 {
		return 0, 0, false
	}
	sort.Float64s(finite)
	lo = stat.Quantile(LowPercentile, stat.LinInterp, finite, nil)
	hi = stat.Quantile(HighPercentile, stat.LinInterp, finite, nil)
	if hi <= lo {
		hi = lo + 1.0
	}
	return lo, hi, true
}

func normalizeFrame(src, dst []float64) {
	lo, hi, ok := PercentileRange(src)
	if !ok {
		// dst is already zero
		return
	}
	scale := 1 / (hi - lo)
	for i, x := range src {
		switch {
		case math.IsNaN(x):
			dst[i] = 0
		case x <= lo:
			dst[i] = 0
		case x >= hi:
			dst[i] = 1
		default:
			dst[i] = (x - lo) * scale
		}
	}
}
