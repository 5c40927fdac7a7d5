// Package colormap provides the named lookup tables used to colour
// normalized slices and the overlay colour paired with each of them.
package colormap

import (
	"fmt"
	"image/color"
	"math"
	"sort"
	"sync"

	"github.com/mazznoer/colorgrad"

	"triplanar/internal/models"
)

// Size is the number of entries in every lookup table.
const Size = 256

// Default is the colormap used when none is configured.
const Default = "gray"

// RGB is a colour with channels in [0,1].
type RGB [3]float64

// Colormap is a 256 entry lookup table over normalized intensities.
type Colormap struct {
	name string
	lut  [Size]RGB
}

type entry struct {
	build   func() (colorgrad.Gradient, error)
	overlay RGB
	once    sync.Once
	cmap    *Colormap
	err     error
}

var (
	red    = RGB{1, 0, 0}
	green  = RGB{0, 1, 0}
	cyan   = RGB{0, 1, 1}
	yellow = RGB{1, 1, 0}
)

func stops(domain []float64, colors ...color.Color) func() (colorgrad.Gradient, error) {
	return func() (colorgrad.Gradient, error) {
		return colorgrad.NewGradient().
			Colors(colors...).
			Domain(domain...).
			Mode(colorgrad.BlendRgb).
			Build()
	}
}

func preset(g func() colorgrad.Gradient) func() (colorgrad.Gradient, error) {
	return func() (colorgrad.Gradient, error) { return g(), nil }
}

func rgb(r, g, b float64) color.Color {
	return color.RGBA{R: uint8(math.Round(r * 255)), G: uint8(math.Round(g * 255)), B: uint8(math.Round(b * 255)), A: 255}
}

// Overlay colours follow the base colormap so the overlay keeps contrast
// against it.
var registry = map[string]*entry{
	"gray":    {build: stops([]float64{0, 1}, rgb(0, 0, 0), rgb(1, 1, 1)), overlay: red},
	"viridis": {build: preset(colorgrad.Viridis), overlay: red},
	"plasma":  {build: preset(colorgrad.Plasma), overlay: green},
	"inferno": {build: preset(colorgrad.Inferno), overlay: cyan},
	"magma":   {build: preset(colorgrad.Magma), overlay: cyan},
	"hot": {build: stops([]float64{0, 0.365, 0.746, 1},
		rgb(0.0416, 0, 0), rgb(1, 0, 0), rgb(1, 1, 0), rgb(1, 1, 1)), overlay: cyan},
	"cool": {build: stops([]float64{0, 1}, rgb(0, 1, 1), rgb(1, 0, 1)), overlay: yellow},
	"bone": {build: stops([]float64{0, 0.365, 0.746, 1},
		rgb(0, 0, 0), rgb(0.319, 0.319, 0.444), rgb(0.652, 0.777, 0.777), rgb(1, 1, 1)), overlay: red},
}

// Known reports whether name is a registered colormap.
func Known(name string) bool {
	_, ok := registry[name]
	return ok
}

// Names lists the registered colormaps in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the named colormap. Unknown names fail with ConfigError.
func Lookup(name string) (*Colormap, error) {
	e, ok := registry[name]
	if !ok {
		return nil, &models.ConfigError{Param: "colormap", Value: name, Reason: "unknown colormap"}
	}
	e.once.Do(func() {
		g, err := e.build()
		if err != nil {
			e.err = fmt.Errorf("building colormap %s: %w", name, err)
			return
		}
		cm := &Colormap{name: name}
		for i := 0; i < Size; i++ {
			c := g.At(float64(i) / (Size - 1))
			cm.lut[i] = RGB{clamp01(c.R), clamp01(c.G), clamp01(c.B)}
		}
		e.cmap = cm
	})
	return e.cmap, e.err
}

// OverlayColor returns the overlay colour paired with a base colormap.
// Unknown names get green.
func OverlayColor(base string) RGB {
	if e, ok := registry[base]; ok {
		return e.overlay
	}
	return green
}

// Name returns the colormap name.
func (c *Colormap) Name() string {
	return c.name
}

// At maps a normalized intensity to a colour. Values are clamped to [0,1]
// and NaN maps to the lowest entry.
func (c *Colormap) At(v float64) RGB {
	return c.lut[c.Index(v)]
}

// Index returns the lookup table entry used for v.
func (c *Colormap) Index(v float64) int {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return Size - 1
	}
	return int(v * (Size - 1))
}

// Entry returns lookup table entry i.
func (c *Colormap) Entry(i int) RGB {
	return c.lut[i]
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
