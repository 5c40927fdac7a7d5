package visualization

import (
	"context"
	"fmt"
	"image"
	"math"

	"triplanar/internal/models"
	"triplanar/pkg/colormap"
	"triplanar/pkg/parallel"
)

// Canvas is a floating point RGB image in [0,1], three values per pixel.
// Compositing happens here before quantisation to 8 bits.
type Canvas struct {
	Width  int
	Height int
	Pix    []float64
}

// NewCanvas allocates a black canvas.
func NewCanvas(width, height int) *Canvas {
	return &Canvas{Width: width, Height: height, Pix: make([]float64, 3*width*height)}
}

// RGBA quantises the canvas into an opaque 8-bit image.
func (c *Canvas) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	for i := 0; i < c.Width*c.Height; i++ {
		img.Pix[4*i] = quantise(c.Pix[3*i])
		img.Pix[4*i+1] = quantise(c.Pix[3*i+1])
		img.Pix[4*i+2] = quantise(c.Pix[3*i+2])
		img.Pix[4*i+3] = 255
	}
	return img
}

func quantise(v float64) uint8 {
	return uint8(math.Round(clip(v) * 255))
}

func clip(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// ApplyColormap maps a normalized slice through the named colormap. An
// unknown name fails with ConfigError.
func ApplyColormap(s *Slice, name string) (*Canvas, error) {
	cm, err := colormap.Lookup(name)
	if err != nil {
		return nil, err
	}
	c := NewCanvas(s.Width, s.Height)
	for i, v := range s.Data {
		rgb := cm.At(v)
		copy(c.Pix[3*i:3*i+3], rgb[:])
	}
	return c, nil
}

// CompositeOverlay blends an overlay into base and returns a new canvas.
// Each pixel gets intensity alpha*mask; channels where col is non-zero are
// raised towards the colour, the others are attenuated by 1-intensity. Rows
// are processed in parallel and every pixel is independent.
func CompositeOverlay(ctx context.Context, base *Canvas, mask *Slice, alpha float64, col colormap.RGB, workers int) (*Canvas, error) {
	if base.Width != mask.Width || base.Height != mask.Height {
		return nil, fmt.Errorf("overlay is %dx%d but base slice is %dx%d", mask.Width, mask.Height, base.Width, base.Height)
	}
	if !(alpha >= 0 && alpha <= 1) {
		return nil, &models.ConfigError{Param: "alpha", Value: fmt.Sprint(alpha), Reason: "must be in [0,1]"}
	}
	out := &Canvas{Width: base.Width, Height: base.Height, Pix: make([]float64, len(base.Pix))}
	w := base.Width
	err := parallel.ForRows(ctx, base.Height, workers, func(r int) error {
		for p := r * w; p < (r+1)*w; p++ {
			intensity := mask.Data[p] * alpha
			for ch := 0; ch < 3; ch++ {
				v := base.Pix[3*p+ch]
				if col[ch] != 0 {
					v = math.Min(1, v+intensity*col[ch])
				} else {
					v *= 1 - intensity
				}
				out.Pix[3*p+ch] = clip(v)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
