package viewer

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"triplanar/internal/models"
	"triplanar/pkg/colormap"
	"triplanar/pkg/pipeline"
	"triplanar/pkg/visualization"
)

// scene snapshots what the compositor needs. Masks are never mutated in
// place, so the snapshot stays valid after the lock is released.
func (s *Session) scene() (*visualization.Scene, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == Empty {
		return nil, false
	}
	// Overlay colour depends on the base colormap, not on the layer.
	col := colormap.OverlayColor(s.colormap)
	sc := &visualization.Scene{Volume: s.vol, Cursor: s.cursor, Colormap: s.colormap}
	if s.overlay != nil && s.overlay.Enabled {
		sc.Layers = append(sc.Layers, visualization.Layer{Name: "overlay", Mask: s.overlay.mask, Alpha: s.alpha, Color: col})
	}
	if s.auto != nil && s.auto.mask != nil {
		sc.Layers = append(sc.Layers, visualization.Layer{Name: "auto ROI", Mask: s.auto.mask, Alpha: s.alpha, Color: col})
	}
	if s.incremental != nil {
		sc.Layers = append(sc.Layers, visualization.Layer{Name: "incremental ROI", Mask: s.incremental, Alpha: s.alpha, Color: col})
	}
	return sc, true
}

// Render draws one view. Failures are logged by the compositor and the
// previous frame is returned; nil means nothing could be drawn yet.
func (s *Session) Render(ctx context.Context, plane models.Plane) *visualization.Frame {
	sc, ok := s.scene()
	if !ok || !plane.Valid() {
		return nil
	}
	f := s.compositor.Render(ctx, sc, plane)
	if f == nil {
		return nil
	}
	s.mu.Lock()
	if s.vol == sc.Volume {
		vs := &s.views[plane]
		vs.Stretch = f.Stretch
		vs.Crosshair.X, vs.Crosshair.Y = vs.Mapper().VoxelToScreen(s.vol.SpatialShape(), s.crossAt)
	}
	s.mu.Unlock()
	return f
}

// Snapshot renders a view with its crosshair when crosshairs are enabled.
func (s *Session) Snapshot(ctx context.Context, plane models.Plane) (image.Image, error) {
	f := s.Render(ctx, plane)
	if f == nil {
		return nil, fmt.Errorf("%s view could not be rendered", plane)
	}
	vs := s.View(plane)
	if !vs.Crosshair.Visible {
		return f.Image, nil
	}
	// centre the lines on the voxel cell
	x := vs.Crosshair.X + f.Stretch.X/2
	y := vs.Crosshair.Y + f.Stretch.Y/2
	return visualization.DrawCrosshair(f.Image, x, y, visualization.CrosshairColor)
}

// ExportViews writes a snapshot of every view to dir, plus a thumbnail of
// each when thumbWidth is positive. It returns the written paths.
func (s *Session) ExportViews(ctx context.Context, dir, format string, thumbWidth int) ([]string, error) {
	ext, err := visualization.ImageExt(format)
	if err != nil {
		return nil, err
	}
	if s.State() == Empty {
		return nil, errNotLoaded
	}
	if err := mkdir(dir); err != nil {
		return nil, err
	}
	base := pipeline.BaseName(s.Path())
	var paths []string
	for _, p := range models.Planes {
		img, err := s.Snapshot(ctx, p)
		if err != nil {
			return paths, err
		}
		name := filepath.Join(dir, fmt.Sprintf("%s_%s%s", base, p, ext))
		if err := visualization.SaveImage(img, name, format); err != nil {
			return paths, err
		}
		paths = append(paths, name)
		if thumbWidth > 0 {
			thumb := filepath.Join(dir, fmt.Sprintf("%s_%s_thumb%s", base, p, ext))
			if err := visualization.SaveImage(visualization.Thumbnail(img, thumbWidth), thumb, format); err != nil {
				return paths, err
			}
			paths = append(paths, thumb)
		}
	}
	s.log.Infof("exported %d images to %s", len(paths), dir)
	return paths, nil
}

// ExportSequence writes every slice of one view, with current overlays, to
// dir.
func (s *Session) ExportSequence(ctx context.Context, plane models.Plane, dir, format string) ([]string, error) {
	sc, ok := s.scene()
	if !ok {
		return nil, errNotLoaded
	}
	return s.compositor.SaveSliceSequence(ctx, sc, plane, dir, format)
}

func mkdir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &models.IOError{Op: "mkdir", Path: dir, Err: err}
	}
	return nil
}
