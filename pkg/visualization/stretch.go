package visualization

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	"triplanar/internal/models"
)

// Stretch is the per-view pixel scale between a rendered image and the
// underlying slice grid.
type Stretch struct {
	X, Y float64
}

// Identity is the stretch of an unscaled slice.
var Identity = Stretch{X: 1, Y: 1}

// Rescale stretches img vertically by ratio so that anisotropic voxels keep
// their physical proportions. Only the height changes. The returned
// Stretch is the factor actually applied after rounding to whole pixels.
func Rescale(img *image.RGBA, ratio float64, smooth bool) (*image.RGBA, Stretch, error) {
	if !(ratio > 0) || math.IsInf(ratio, 0) {
		return nil, Stretch{}, &models.ConfigError{Param: "pixel spacing ratio", Value: fmt.Sprint(ratio)}
	}
	b := img.Bounds()
	h, stretch := StretchFor(b.Dy(), ratio)
	if h == b.Dy() {
		return img, Identity, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), h))
	var scaler draw.Scaler = draw.NearestNeighbor
	if smooth {
		scaler = draw.BiLinear
	}
	scaler.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, stretch, nil
}

// StretchFor returns the stretched height of a slice with the given
// height and the resulting stretch factor. ratio must be positive.
func StretchFor(height int, ratio float64) (int, Stretch) {
	h := int(math.Round(float64(height) * ratio))
	if h < 1 {
		h = 1
	}
	if h == height {
		return h, Identity
	}
	return h, Stretch{X: 1, Y: float64(h) / float64(height)}
}
