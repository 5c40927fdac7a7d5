package viewer

import (
	"context"
	"errors"
	"fmt"

	"triplanar/internal/models"
	"triplanar/pkg/pipeline"
	"triplanar/pkg/roi"
	"triplanar/pkg/volume"
)

var errNotLoaded = errors.New("no volume loaded")

// Overlay is a loaded overlay volume aligned with the base volume.
type Overlay struct {
	Path    string
	Volume  *volume.Volume
	Max     float64
	Enabled bool
	// Threshold is relative to Max.
	Threshold float64

	mask *models.Mask
}

// Mask returns the thresholded overlay, voxels strictly above
// Threshold*Max.
func (o *Overlay) Mask() *models.Mask {
	return o.mask
}

func (o *Overlay) rethreshold() {
	cut := o.Threshold * o.Max
	m := models.NewMask(o.Volume.Shape())
	for i, v := range o.Volume.Data()[:len(m.Data)] {
		if v > cut {
			m.Data[i] = 1
		}
	}
	o.mask = m
}

// LoadOverlay loads path in the background and installs it as the overlay.
func (s *Session) LoadOverlay(ctx context.Context, path string) error {
	if s.State() == Empty {
		return errNotLoaded
	}
	v, err := pipeline.LoadOverlay(ctx, path, pipeline.Options{
		Workers:  s.opts.Workers,
		Progress: s.host.ReportProgress,
		Log:      s.log,
	}).Wait()
	if err != nil {
		s.log.Errorf("overlay %s not loaded: %v", path, err)
		return err
	}
	return s.SetOverlay(v, path)
}

// SetOverlay installs ov as the loaded overlay. 4D overlays use their
// first frame. An overlay whose shape differs from the base volume is
// padded symmetrically with zeros and then cropped centrally on axes where
// it is larger.
func (s *Session) SetOverlay(ov *volume.Volume, path string) error {
	s.mu.Lock()
	if s.state == Empty {
		s.mu.Unlock()
		return errNotLoaded
	}
	target := s.vol.SpatialShape()
	if ov.Is4D() {
		var err error
		if ov, err = ov.Frame(0); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	if ov.Shape() != target {
		s.log.Warningf("overlay %s is %v, resizing to %v", path, ov.Shape(), target)
		ov = ov.PadToShape(target, 0).CropToShape(target)
	}
	o := &Overlay{Path: path, Volume: ov, Max: ov.Max(), Enabled: true, Threshold: s.opts.OverlayThreshold}
	if o.Max <= 0 {
		o.Max = 1
	}
	o.rethreshold()
	s.overlay = o
	s.mu.Unlock()

	s.repaintAll()
	return nil
}

// Overlay returns a copy of the current overlay, if any.
func (s *Session) Overlay() (Overlay, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.overlay == nil {
		return Overlay{}, false
	}
	return *s.overlay, true
}

// ClearOverlay removes the loaded overlay.
func (s *Session) ClearOverlay() {
	s.mu.Lock()
	s.overlay = nil
	s.mu.Unlock()
	s.repaintAll()
}

// SetOverlayEnabled shows or hides the loaded overlay.
func (s *Session) SetOverlayEnabled(on bool) {
	s.mu.Lock()
	if s.overlay != nil {
		s.overlay.Enabled = on
	}
	s.mu.Unlock()
	s.repaintAll()
}

// SetOverlayAlpha sets the transparency used for every overlay layer.
func (s *Session) SetOverlayAlpha(alpha float64) error {
	if !(alpha >= 0 && alpha <= 1) {
		return &models.ConfigError{Param: "overlay alpha", Value: fmt.Sprint(alpha), Reason: "must be in [0,1]"}
	}
	s.mu.Lock()
	s.alpha = alpha
	s.mu.Unlock()
	s.repaintAll()
	return nil
}

// SetOverlayThreshold sets the overlay threshold relative to its maximum
// and recomputes the overlay mask.
func (s *Session) SetOverlayThreshold(threshold float64) error {
	if !(threshold >= 0 && threshold <= 1) {
		return &models.ConfigError{Param: "overlay threshold", Value: fmt.Sprint(threshold), Reason: "must be in [0,1]"}
	}
	s.mu.Lock()
	s.opts.OverlayThreshold = threshold
	if s.overlay != nil {
		s.overlay.Threshold = threshold
		s.overlay.rethreshold()
	}
	s.mu.Unlock()
	s.repaintAll()
	return nil
}

type autoROI struct {
	params roi.Params
	mask   *models.Mask
}

// MaxRadius is the largest radius accepted for the automatic ROI.
func (s *Session) MaxRadius() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.vol == nil {
		return 0
	}
	return roi.MaxRadius(s.vol.SpatialShape(), s.vol.Spacing())
}

// StartAutoROI grows a region at the cursor with the configured radius and
// difference. While active, the region follows the cursor.
func (s *Session) StartAutoROI() error {
	s.mu.Lock()
	if s.state == Empty {
		s.mu.Unlock()
		return errNotLoaded
	}
	radius := min(s.opts.RadiusMm, roi.MaxRadius(s.vol.SpatialShape(), s.vol.Spacing()))
	s.auto = &autoROI{params: roi.Params{RadiusMm: radius, Difference: s.opts.Difference}}
	err := s.regrowLocked()
	if err != nil {
		s.auto = nil
	}
	s.mu.Unlock()

	s.repaintAll()
	return err
}

// UpdateAutoROI regrows the automatic ROI with a new radius and difference.
func (s *Session) UpdateAutoROI(radiusMm, difference float64) error {
	s.mu.Lock()
	if s.auto == nil {
		s.mu.Unlock()
		return errors.New("automatic ROI is not active")
	}
	if limit := roi.MaxRadius(s.vol.SpatialShape(), s.vol.Spacing()); radiusMm > limit {
		s.mu.Unlock()
		return &models.ConfigError{Param: "radius", Value: fmt.Sprint(radiusMm), Reason: fmt.Sprintf("must not exceed %g mm", limit)}
	}
	prev := s.auto.params
	s.auto.params.RadiusMm = radiusMm
	s.auto.params.Difference = difference
	err := s.regrowLocked()
	if err != nil {
		s.auto.params = prev
	}
	s.mu.Unlock()

	s.repaintAll()
	return err
}

// regrowLocked recomputes the automatic ROI at the cursor. The caller holds
// s.mu.
func (s *Session) regrowLocked() error {
	if s.auto == nil {
		return nil
	}
	p := s.auto.params
	p.Seed = s.cursor.Voxel
	m, err := roi.Grow(context.Background(), s.vol, s.cursor.T, p, s.opts.Workers)
	if err != nil {
		return err
	}
	s.auto.params = p
	s.auto.mask = m
	return nil
}

// AutoROI returns the active automatic ROI.
func (s *Session) AutoROI() (roi.Params, *models.Mask, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.auto == nil {
		return roi.Params{}, nil, false
	}
	return s.auto.params, s.auto.mask, true
}

// StopAutoROI discards the automatic ROI, keeping accumulated origins.
func (s *Session) StopAutoROI() {
	s.mu.Lock()
	s.auto = nil
	s.mu.Unlock()
	s.repaintAll()
}

// AddOrigin adds the automatic ROI to the incremental ROI and records its
// parameters.
func (s *Session) AddOrigin() error {
	s.mu.Lock()
	defer s.repaintAll()
	defer s.mu.Unlock()
	if s.auto == nil || s.auto.mask == nil {
		return errors.New("automatic ROI is not active")
	}
	m, err := roi.Accumulate(s.incremental, s.auto.mask)
	if err != nil {
		return err
	}
	s.incremental = m
	s.origins = append(s.origins, s.auto.params)
	s.log.Infof("added ROI origin %v (%d voxels total)", s.auto.params, m.Count())
	return nil
}

// Incremental returns the accumulated ROI and the parameters of every
// origin added to it.
func (s *Session) Incremental() (*models.Mask, []roi.Params) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.incremental, append([]roi.Params(nil), s.origins...)
}

// ResetROI clears the automatic and incremental ROIs.
func (s *Session) ResetROI() {
	s.mu.Lock()
	s.auto = nil
	s.incremental = nil
	s.origins = nil
	s.mu.Unlock()
	s.repaintAll()
}

// CombinedMask is the union of the thresholded overlay (when shown), the
// incremental ROI and the automatic ROI, with the provenance of each part.
func (s *Session) CombinedMask() (*models.Mask, pipeline.Provenance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prov := pipeline.Provenance{Type: s.opts.ROIType, Source: s.path}
	if s.state == Empty {
		return nil, prov, errNotLoaded
	}
	var (
		out *models.Mask
		err error
	)
	if s.overlay != nil && s.overlay.Enabled {
		out = s.overlay.mask.Clone()
		prov.OverlayPath = s.overlay.Path
		prov.OverlayThreshold = s.overlay.Threshold
	}
	if s.incremental != nil {
		if out, err = roi.Accumulate(out, s.incremental); err != nil {
			return nil, prov, err
		}
		prov.Seeds = append(prov.Seeds, s.origins...)
	}
	if s.auto != nil && s.auto.mask != nil {
		if out, err = roi.Accumulate(out, s.auto.mask); err != nil {
			return nil, prov, err
		}
		prov.Seeds = append(prov.Seeds, s.auto.params)
	}
	if out == nil {
		return nil, prov, errors.New("nothing to save: no overlay or ROI")
	}
	return out, prov, nil
}

// SaveMask writes the combined mask next to the source in the
// derivatives tree under workspace, with a versioned name and a JSON
// sidecar.
func (s *Session) SaveMask(ctx context.Context, workspace string) (pipeline.SaveResult, error) {
	mask, prov, err := s.CombinedMask()
	if err != nil {
		return pipeline.SaveResult{}, err
	}
	prov.Workspace = workspace
	out, meta, err := pipeline.PlanSave(workspace, prov.Source, prov.Type)
	if err != nil {
		return pipeline.SaveResult{}, err
	}
	req := pipeline.SaveRequest{
		Mask:         mask,
		Affine:       s.Volume().Affine(),
		OutPath:      out,
		MetadataPath: meta,
		Provenance:   prov,
	}
	return pipeline.SaveMask(ctx, req, pipeline.Options{
		Workers:  s.opts.Workers,
		Progress: s.host.ReportProgress,
		Log:      s.log,
	}).Wait()
}
