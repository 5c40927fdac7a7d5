package visualization

import (
	"context"
	"fmt"
	"image"
	"sync"

	"triplanar/internal/models"
	"triplanar/pkg/colormap"
	"triplanar/pkg/logging"
	"triplanar/pkg/volume"
)

// Layer is one overlay composited over the base slice.
type Layer struct {
	Name  string
	Mask  *models.Mask
	Alpha float64
	Color colormap.RGB
}

// Scene is everything a view needs to draw itself. Layers are composited in
// slice order.
type Scene struct {
	Volume   *volume.Volume
	Cursor   models.Cursor
	Colormap string
	Layers   []Layer
}

// Frame is a rendered view.
type Frame struct {
	Plane   models.Plane
	Index   int
	Image   *image.RGBA
	Stretch Stretch
	// Width and Height of the slice before stretching.
	Width, Height int
}

// Compositor renders scenes and remembers the last good frame per plane.
type Compositor struct {
	workers int
	smooth  bool
	log     logging.Logger

	mu   sync.Mutex
	last [3]*Frame
}

// NewCompositor returns a compositor running blend kernels on the given
// number of workers.
func NewCompositor(workers int, smooth bool, log logging.Logger) *Compositor {
	if log == nil {
		log = logging.Default()
	}
	return &Compositor{workers: workers, smooth: smooth, log: log}
}

// Compose renders one plane of the scene: base colormap, then every layer
// in order, then the vertical stretch.
func (c *Compositor) Compose(ctx context.Context, scene *Scene, plane models.Plane) (*Frame, error) {
	if scene == nil || scene.Volume == nil {
		return nil, fmt.Errorf("no volume loaded")
	}
	if !plane.Valid() {
		return nil, &models.ConfigError{Param: "plane", Value: fmt.Sprint(int(plane))}
	}
	index := scene.Cursor.Axis(plane.Layout().FixedAxis)
	s, err := ExtractSlice(scene.Volume, plane, index, scene.Cursor.T)
	if err != nil {
		return nil, err
	}
	canvas, err := ApplyColormap(s, scene.Colormap)
	if err != nil {
		return nil, err
	}
	spatial := scene.Volume.SpatialShape()
	for _, layer := range scene.Layers {
		if layer.Mask == nil {
			continue
		}
		if layer.Mask.Shape != spatial {
			return nil, fmt.Errorf("%s layer shape %v does not match volume %v", layer.Name, layer.Mask.Shape, spatial)
		}
		ms, err := ExtractMaskSlice(layer.Mask, plane, index)
		if err != nil {
			return nil, err
		}
		if canvas, err = CompositeOverlay(ctx, canvas, ms, layer.Alpha, layer.Color, c.workers); err != nil {
			return nil, fmt.Errorf("compositing %s layer: %w", layer.Name, err)
		}
	}
	img, stretch, err := Rescale(canvas.RGBA(), plane.PixelSpacingRatio(scene.Volume.Spacing()), c.smooth)
	if err != nil {
		return nil, err
	}
	return &Frame{Plane: plane, Index: index, Image: img, Stretch: stretch, Width: s.Width, Height: s.Height}, nil
}

// Render is Compose for the paint path: failures and panics are logged and
// the previous frame of the plane is returned instead, which may be nil.
func (c *Compositor) Render(ctx context.Context, scene *Scene, plane models.Plane) (frame *Frame) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("rendering %s view panicked: %v", plane, r)
			frame = c.Last(plane)
		}
	}()
	f, err := c.Compose(ctx, scene, plane)
	if err != nil {
		c.log.Errorf("skipping %s repaint: %v", plane, err)
		return c.Last(plane)
	}
	c.mu.Lock()
	c.last[plane] = f
	c.mu.Unlock()
	return f
}

// Last returns the most recent successful frame of plane.
func (c *Compositor) Last(plane models.Plane) *Frame {
	if !plane.Valid() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last[plane]
}

// Reset forgets cached frames, used when a new volume replaces the old one.
func (c *Compositor) Reset() {
	c.mu.Lock()
	c.last = [3]*Frame{}
	c.mu.Unlock()
}
