package viewer

import (
	"context"
	"fmt"
	"sync"

	"triplanar/internal/models"
	"triplanar/pkg/colormap"
	"triplanar/pkg/config"
	"triplanar/pkg/logging"
	"triplanar/pkg/parallel"
	"triplanar/pkg/pipeline"
	"triplanar/pkg/roi"
	"triplanar/pkg/visualization"
	"triplanar/pkg/volume"
)

// Host is what the session needs from the front end.
type Host interface {
	NotifyCursorChanged(c models.Cursor)
	RequestRepaint(plane models.Plane)
	ReportProgress(percent int)
}

// NopHost ignores every notification.
type NopHost struct{}

func (NopHost) NotifyCursorChanged(models.Cursor) {}
func (NopHost) RequestRepaint(models.Plane)       {}
func (NopHost) ReportProgress(int)                {}

// State is the lifecycle state of a session.
type State int

const (
	Empty State = iota
	Loaded
)

func (s State) String() string {
	if s == Loaded {
		return "loaded"
	}
	return "empty"
}

// Options are the session settings taken from configuration.
type Options struct {
	Colormap         string
	OverlayAlpha     float64
	OverlayThreshold float64
	Crosshairs       bool
	SmoothScaling    bool
	RadiusMm         float64
	Difference       float64
	ROIType          string
	Workers          int
}

// OptionsFromConfig converts a loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Colormap:         cfg.Viewer.Colormap,
		OverlayAlpha:     cfg.Viewer.OverlayAlpha,
		OverlayThreshold: cfg.Viewer.OverlayThreshold,
		Crosshairs:       cfg.Viewer.Crosshairs,
		SmoothScaling:    cfg.Viewer.SmoothScaling,
		RadiusMm:         cfg.ROI.RadiusMm,
		Difference:       cfg.ROI.Difference,
		ROIType:          cfg.ROI.Type,
		Workers:          cfg.Processing.NumCores,
	}
}

// Session is the single owner of the loaded volume, the cursor, the three
// view states and the overlay layers. All mutation goes through its
// methods, which hold the session lock, so cursor updates are atomic with
// respect to concurrent reads.
type Session struct {
	host       Host
	log        logging.Logger
	opts       Options
	compositor *visualization.Compositor

	mu       sync.RWMutex
	state    State
	vol      *volume.Volume
	path     string
	cursor   models.Cursor
	views    [3]ViewState
	colormap string
	alpha    float64

	overlay     *Overlay
	auto        *autoROI
	incremental *models.Mask
	origins     []roi.Params
	hover       *Readout

	// crossAt is where the crosshairs point: the cursor, or the hovered voxel.
	crossAt models.Voxel
}

// NewSession creates an empty session.
func NewSession(host Host, opts Options, log logging.Logger) *Session {
	if host == nil {
		host = NopHost{}
	}
	if log == nil {
		log = logging.Default()
	}
	if !colormap.Known(opts.Colormap) {
		opts.Colormap = colormap.Default
	}
	if opts.RadiusMm <= 0 {
		opts.RadiusMm = roi.DefaultRadiusMm
	}
	if opts.Difference <= 0 {
		opts.Difference = roi.DefaultDifference
	}
	opts.Workers = parallel.Workers(opts.Workers)
	s := &Session{
		host:       host,
		log:        log,
		opts:       opts,
		compositor: visualization.NewCompositor(opts.Workers, opts.SmoothScaling, log),
		colormap:   opts.Colormap,
		alpha:      opts.OverlayAlpha,
	}
	for _, p := range models.Planes {
		s.views[p] = ViewState{Plane: p, Stretch: visualization.Identity}
	}
	return s
}

// State returns Empty or Loaded.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Volume returns the loaded volume, or nil.
func (s *Session) Volume() *volume.Volume {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vol
}

// Path returns the path of the loaded volume.
func (s *Session) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// Cursor returns the shared cursor.
func (s *Session) Cursor() models.Cursor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// View returns the state of one view.
func (s *Session) View(p models.Plane) ViewState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.views[p]
}

// Colormap returns the current base colormap name.
func (s *Session) Colormap() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.colormap
}

// Load runs a background load of path and, only if it succeeds, publishes
// the new volume. On failure or cancellation the session is unchanged.
func (s *Session) Load(ctx context.Context, path string) error {
	task := pipeline.LoadVolume(ctx, path, pipeline.Options{
		Workers:  s.opts.Workers,
		Progress: s.host.ReportProgress,
		Log:      s.log,
	})
	v, err := task.Wait()
	if err != nil {
		s.log.Errorf("load of %s failed: %v", path, err)
		return err
	}
	s.SetVolume(v, path)
	return nil
}

// SetVolume replaces the loaded volume. Every view is recentred on its
// middle slice, the cursor moves to the centre voxel and ROI and overlay
// state is cleared.
func (s *Session) SetVolume(v *volume.Volume, path string) {
	s.mu.Lock()
	s.vol = v
	s.path = path
	s.state = Loaded
	shape := v.SpatialShape()
	s.cursor = models.Cursor{Voxel: shape.Center()}
	for _, p := range models.Planes {
		_, h := p.SliceDims(shape)
		_, st := visualization.StretchFor(h, p.PixelSpacingRatio(v.Spacing()))
		s.views[p] = ViewState{Plane: p, Stretch: st, Crosshair: Crosshair{Visible: s.opts.Crosshairs}}
	}
	s.syncViewsLocked()
	s.overlay = nil
	s.auto = nil
	s.incremental = nil
	s.origins = nil
	s.hover = nil
	cursor := s.cursor
	s.mu.Unlock()

	s.compositor.Reset()
	s.log.Infof("viewing %s: %v", path, v.Shape())
	s.changed(cursor)
}

// syncViewsLocked sets every view's slice index and crosshair from the
// cursor. The caller holds s.mu.
func (s *Session) syncViewsLocked() {
	s.placeCrosshairsLocked(s.cursor.Voxel)
	for _, p := range models.Planes {
		s.views[p].Slice = s.cursor.Axis(p.Layout().FixedAxis)
	}
}

func (s *Session) placeCrosshairsLocked(v models.Voxel) {
	s.crossAt = v
	shape := s.vol.SpatialShape()
	for _, p := range models.Planes {
		x, y := s.views[p].Mapper().VoxelToScreen(shape, v)
		s.views[p].Crosshair.X, s.views[p].Crosshair.Y = x, y
	}
}

func (s *Session) changed(c models.Cursor) {
	s.host.NotifyCursorChanged(c)
	s.repaintAll()
}

func (s *Session) repaintAll() {
	for _, p := range models.Planes {
		s.host.RequestRepaint(p)
	}
}

// SetCursor moves the shared cursor to v, updating every view's slice. An
// active automatic ROI is regrown at the new seed.
func (s *Session) SetCursor(v models.Voxel) error {
	s.mu.Lock()
	if s.state == Empty {
		s.mu.Unlock()
		return nil
	}
	shape := s.vol.SpatialShape()
	if !shape.Contains(v) {
		s.mu.Unlock()
		return &models.IndexError{Voxel: v, T: s.cursor.T, Shape: shape}
	}
	s.cursor.Voxel = v
	s.syncViewsLocked()
	err := s.regrowLocked()
	cursor := s.cursor
	s.mu.Unlock()

	s.changed(cursor)
	return err
}

// OnClick maps a click in view viewIdx to a voxel and moves the cursor
// there. It reports false when nothing is loaded or the view is unknown.
func (s *Session) OnClick(viewIdx int, px, py float64) (models.Voxel, bool) {
	plane, err := models.ParsePlane(viewIdx)
	if err != nil {
		s.log.Warningf("click ignored: %v", err)
		return models.Voxel{}, false
	}
	s.mu.RLock()
	if s.state == Empty {
		s.mu.RUnlock()
		return models.Voxel{}, false
	}
	v := s.views[plane].Mapper().ScreenToVoxel(s.vol.SpatialShape(), s.cursor.Voxel, px, py)
	s.mu.RUnlock()

	if err := s.SetCursor(v); err != nil {
		s.log.Errorf("click at %v: %v", v, err)
	}
	return v, true
}

// OnHover maps a pointer position to a voxel and updates the readout and
// crosshairs without touching the cursor used for slicing.
func (s *Session) OnHover(viewIdx int, px, py float64) (Readout, bool) {
	plane, err := models.ParsePlane(viewIdx)
	if err != nil {
		return Readout{}, false
	}
	s.mu.Lock()
	if s.state == Empty {
		s.mu.Unlock()
		return Readout{}, false
	}
	v := s.views[plane].Mapper().ScreenToVoxel(s.vol.SpatialShape(), s.cursor.Voxel, px, py)
	r := s.readoutLocked(plane, v)
	s.hover = &r
	s.placeCrosshairsLocked(v)
	s.mu.Unlock()

	s.repaintAll()
	return r, true
}

// Hover returns the last hover readout.
func (s *Session) Hover() (Readout, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.hover == nil {
		return Readout{}, false
	}
	return *s.hover, true
}

// SetSlice moves the view of plane to index, clamped to the volume.
func (s *Session) SetSlice(plane models.Plane, index int) error {
	if !plane.Valid() {
		return &models.ConfigError{Param: "plane", Value: fmt.Sprint(int(plane))}
	}
	s.mu.Lock()
	if s.state == Empty {
		s.mu.Unlock()
		return nil
	}
	axis := plane.Layout().FixedAxis
	n := s.vol.SpatialShape().Axis(axis)
	index = min(max(index, 0), n-1)
	v := s.cursor.WithAxis(axis, index)
	s.mu.Unlock()
	return s.SetCursor(v)
}

// Scroll steps the view of plane by delta slices.
func (s *Session) Scroll(plane models.Plane, delta int) error {
	if !plane.Valid() {
		return &models.ConfigError{Param: "plane", Value: fmt.Sprint(int(plane))}
	}
	s.mu.RLock()
	if s.state == Empty {
		s.mu.RUnlock()
		return nil
	}
	current := s.views[plane].Slice
	s.mu.RUnlock()
	return s.SetSlice(plane, current+delta)
}

// SetTime selects frame t of a 4D volume, clamped to the frame count.
func (s *Session) SetTime(t int) error {
	s.mu.Lock()
	if s.state == Empty {
		s.mu.Unlock()
		return nil
	}
	t = min(max(t, 0), s.vol.Frames()-1)
	if t == s.cursor.T {
		s.mu.Unlock()
		return nil
	}
	s.cursor.T = t
	err := s.regrowLocked()
	cursor := s.cursor
	s.mu.Unlock()

	s.changed(cursor)
	return err
}

// SetColormap changes the base colormap. An unknown name fails with
// ConfigError and leaves the current one in place.
func (s *Session) SetColormap(name string) error {
	if _, err := colormap.Lookup(name); err != nil {
		return err
	}
	s.mu.Lock()
	s.colormap = name
	s.mu.Unlock()
	s.repaintAll()
	return nil
}
