package viewer

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"triplanar/internal/models"
	"triplanar/pkg/nifti"
	"triplanar/pkg/volume"
)

type recordingHost struct {
	mu       sync.Mutex
	cursors  []models.Cursor
	repaints int
	progress []int
}

func (h *recordingHost) NotifyCursorChanged(c models.Cursor) {
	h.mu.Lock()
	h.cursors = append(h.cursors, c)
	h.mu.Unlock()
}

func (h *recordingHost) RequestRepaint(models.Plane) {
	h.mu.Lock()
	h.repaints++
	h.mu.Unlock()
}

func (h *recordingHost) ReportProgress(p int) {
	h.mu.Lock()
	h.progress = append(h.progress, p)
	h.mu.Unlock()
}

func (h *recordingHost) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.cursors) + h.repaints + len(h.progress)
}

func testOptions() Options {
	return Options{
		Colormap:         "gray",
		OverlayAlpha:     0.5,
		OverlayThreshold: 0.1,
		Crosshairs:       true,
		RadiusMm:         2,
		Difference:       0.2,
		ROIType:          "ROI",
		Workers:          2,
	}
}

func rampVolume(t *testing.T, dims []int, affine volume.Affine) *volume.Volume {
	t.Helper()
	n := 1
	for _, d := range dims {
		n *= d
	}
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i) / float64(n)
	}
	v, err := volume.New(data, dims, affine)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestEmptySessionIgnoresEvents(t *testing.T) {
	host := &recordingHost{}
	s := NewSession(host, testOptions(), nil)
	if s.State() != Empty {
		t.Fatalf("state = %v", s.State())
	}
	if _, ok := s.OnClick(0, 3, 3); ok {
		t.Error("click in empty session reported a voxel")
	}
	if _, ok := s.OnHover(1, 3, 3); ok {
		t.Error("hover in empty session reported a voxel")
	}
	if err := s.SetSlice(models.Axial, 2); err != nil {
		t.Error(err)
	}
	if err := s.Scroll(models.Coronal, 1); err != nil {
		t.Error(err)
	}
	if f := s.Render(context.Background(), models.Axial); f != nil {
		t.Error("empty session rendered a frame")
	}
	if host.calls() != 0 {
		t.Errorf("host received %d calls in empty state", host.calls())
	}
}

func TestSetVolumeCentresViews(t *testing.T) {
	host := &recordingHost{}
	s := NewSession(host, testOptions(), nil)
	s.SetVolume(rampVolume(t, []int{5, 6, 7}, volume.Identity()), "a.nii")

	if s.State() != Loaded {
		t.Fatalf("state = %v", s.State())
	}
	if c := s.Cursor(); c.Voxel != (models.Voxel{X: 2, Y: 2, Z: 3}) {
		t.Errorf("cursor = %v", c)
	}
	if s.View(models.Axial).Slice != 3 || s.View(models.Coronal).Slice != 2 || s.View(models.Sagittal).Slice != 2 {
		t.Errorf("slices = %d %d %d", s.View(models.Axial).Slice, s.View(models.Coronal).Slice, s.View(models.Sagittal).Slice)
	}
	if got := s.SliceInfo(); got != "Slices: 4/7 | 3/6 | 3/5" {
		t.Errorf("SliceInfo = %q", got)
	}
}

func TestClickMapsThroughStretch(t *testing.T) {
	host := &recordingHost{}
	s := NewSession(host, testOptions(), nil)
	// y spacing twice x spacing gives the axial view a vertical stretch of 2
	s.SetVolume(rampVolume(t, []int{20, 12, 4}, volume.Diagonal(1, 2, 1)), "a.nii")
	if st := s.View(models.Axial).Stretch; st.X != 1 || st.Y != 2 {
		t.Fatalf("axial stretch = %v", st)
	}
	axialBefore := s.View(models.Axial).Slice

	v, ok := s.OnClick(int(models.Axial), 10, 10)
	if !ok {
		t.Fatal("click not handled")
	}
	want := models.Voxel{X: 10, Y: 12 - 1 - 5, Z: axialBefore}
	if v != want || s.Cursor().Voxel != want {
		t.Errorf("click -> %v, cursor %v, want %v", v, s.Cursor().Voxel, want)
	}
	if s.View(models.Axial).Slice != axialBefore {
		t.Error("clicked view changed its own slice")
	}
	if s.View(models.Coronal).Slice != want.Y || s.View(models.Sagittal).Slice != want.X {
		t.Errorf("other views at %d, %d", s.View(models.Coronal).Slice, s.View(models.Sagittal).Slice)
	}
	host.mu.Lock()
	last := host.cursors[len(host.cursors)-1]
	host.mu.Unlock()
	if last.Voxel != want {
		t.Errorf("host notified with %v", last)
	}
}

func TestHoverDoesNotMoveCursor(t *testing.T) {
	s := NewSession(nil, testOptions(), nil)
	s.SetVolume(rampVolume(t, []int{8, 8, 8}, volume.Identity()), "a.nii")
	before := s.Cursor()
	r, ok := s.OnHover(int(models.Coronal), 1, 2)
	if !ok {
		t.Fatal("hover not handled")
	}
	if s.Cursor() != before {
		t.Error("hover moved the cursor")
	}
	if r.Voxel != (models.Voxel{X: 1, Y: before.Y, Z: 5}) || r.Text != "(1, 5)" {
		t.Errorf("hover readout = %+v", r)
	}
	if want := s.Volume().At(1, before.Y, 5, 0); r.Value != want {
		t.Errorf("hover value = %v, want %v", r.Value, want)
	}
}

func TestScrollClamps(t *testing.T) {
	s := NewSession(nil, testOptions(), nil)
	s.SetVolume(rampVolume(t, []int{4, 5, 6}, volume.Identity()), "a.nii")
	if err := s.Scroll(models.Axial, 100); err != nil {
		t.Fatal(err)
	}
	if s.View(models.Axial).Slice != 5 || s.Cursor().Z != 5 {
		t.Errorf("scrolled to %d", s.View(models.Axial).Slice)
	}
	s.Scroll(models.Axial, -1)
	if s.View(models.Axial).Slice != 4 {
		t.Errorf("scrolled back to %d", s.View(models.Axial).Slice)
	}
	s.SetSlice(models.Sagittal, -3)
	if s.Cursor().X != 0 {
		t.Errorf("sagittal slice clamp gave x=%d", s.Cursor().X)
	}
	if err := s.SetCursor(models.Voxel{X: 4}); err == nil {
		t.Error("expected IndexError for out of range cursor")
	}
}

func TestSetColormapUnknownKeepsPrevious(t *testing.T) {
	s := NewSession(nil, testOptions(), nil)
	var ce *models.ConfigError
	if err := s.SetColormap("nope"); !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if s.Colormap() != "gray" {
		t.Errorf("colormap = %q", s.Colormap())
	}
	if err := s.SetColormap("plasma"); err != nil || s.Colormap() != "plasma" {
		t.Errorf("SetColormap(plasma) = %v, colormap %q", err, s.Colormap())
	}
}

func writeRank2(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "flat.nii")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var h nifti.Header
	h.SizeofHdr = nifti.HeaderSize
	h.Dim = [8]int16{2, 3, 3, 1, 1, 1, 1, 1}
	h.Datatype = nifti.Uint8
	h.Bitpix = 8
	h.VoxOffset = nifti.DataOffset
	copy(h.Magic[:], "n+1\x00")
	if err := writeHeader(f, &h); err != nil {
		t.Fatal(err)
	}
	f.Write(make([]byte, 4+9))
	return path
}

func TestLoadFailureKeepsState(t *testing.T) {
	dir := t.TempDir()
	bad := writeRank2(t, dir)
	host := &recordingHost{}
	s := NewSession(host, testOptions(), nil)

	var fe *models.FormatError
	if err := s.Load(context.Background(), bad); !errors.As(err, &fe) {
		t.Fatalf("expected FormatError, got %v", err)
	}
	if s.State() != Empty || s.Volume() != nil {
		t.Fatal("failed load changed an empty session")
	}

	good := filepath.Join(dir, "good.nii.gz")
	if err := nifti.Save(context.Background(), good, []int{3, 4, 5}, make([]float64, 60), volume.Identity(), nifti.Float32); err != nil {
		t.Fatal(err)
	}
	if err := s.Load(context.Background(), good); err != nil {
		t.Fatal(err)
	}
	loaded := s.Volume()
	cursor := s.Cursor()
	if err := s.Load(context.Background(), bad); !errors.As(err, &fe) {
		t.Fatalf("expected FormatError, got %v", err)
	}
	if s.Volume() != loaded || s.Cursor() != cursor || s.Path() != good {
		t.Error("failed load replaced the loaded volume")
	}
	host.mu.Lock()
	defer host.mu.Unlock()
	done := false
	for _, p := range host.progress {
		done = done || p == 100
	}
	if !done {
		t.Errorf("successful load never reported 100%%: %v", host.progress)
	}
}

func TestAutoROIWorkflow(t *testing.T) {
	data := make([]float64, 10*10*10)
	v, err := volume.New(data, []int{10, 10, 10}, volume.Identity())
	if err != nil {
		t.Fatal(err)
	}
	s := NewSession(nil, testOptions(), nil)
	s.SetVolume(v, "a.nii")

	if err := s.AddOrigin(); err == nil {
		t.Error("AddOrigin without an automatic ROI should fail")
	}
	if err := s.StartAutoROI(); err != nil {
		t.Fatal(err)
	}
	p, m, ok := s.AutoROI()
	if !ok || p.Seed != s.Cursor().Voxel || p.RadiusMm != 2 {
		t.Fatalf("auto ROI = %+v ok=%v", p, ok)
	}
	first := m.Count()
	if first == 0 {
		t.Fatal("empty auto ROI")
	}
	if err := s.AddOrigin(); err != nil {
		t.Fatal(err)
	}

	// the automatic ROI follows the cursor
	s.SetCursor(models.Voxel{X: 1, Y: 1, Z: 1})
	if p, _, _ := s.AutoROI(); p.Seed != (models.Voxel{X: 1, Y: 1, Z: 1}) {
		t.Errorf("auto seed = %v after cursor move", p.Seed)
	}
	if err := s.UpdateAutoROI(1, 0.2); err != nil {
		t.Fatal(err)
	}
	var ce *models.ConfigError
	if err := s.UpdateAutoROI(s.MaxRadius()+1, 0.2); !errors.As(err, &ce) {
		t.Errorf("expected ConfigError above max radius, got %v", err)
	}
	if err := s.AddOrigin(); err != nil {
		t.Fatal(err)
	}
	inc, origins := s.Incremental()
	if len(origins) != 2 || inc.Count() != first+7 {
		t.Errorf("incremental has %d voxels and %d origins", inc.Count(), len(origins))
	}

	combined, prov, err := s.CombinedMask()
	if err != nil {
		t.Fatal(err)
	}
	if combined.Count() != inc.Count() || len(prov.Seeds) != 3 {
		t.Errorf("combined %d voxels, %d seeds", combined.Count(), len(prov.Seeds))
	}

	s.ResetROI()
	if _, _, err := s.CombinedMask(); err == nil {
		t.Error("expected error with nothing to save")
	}
}

func TestOverlayPaddedAndThresholded(t *testing.T) {
	s := NewSession(nil, testOptions(), nil)
	s.SetVolume(rampVolume(t, []int{6, 6, 6}, volume.Identity()), "a.nii")

	data := make([]float64, 4*4*4)
	for i := range data {
		data[i] = 1
	}
	data[0] = 2
	ov, err := volume.New(data, []int{4, 4, 4}, volume.Identity())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetOverlay(ov, "ov.nii"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetOverlayThreshold(0.6); err != nil {
		t.Fatal(err)
	}
	o, ok := s.Overlay()
	if !ok || o.Volume.Shape() != (models.Shape{X: 6, Y: 6, Z: 6, T: 1}) || o.Max != 2 {
		t.Fatalf("overlay = %+v", o)
	}
	if o.Mask().Count() != 1 || !o.Mask().At(1, 1, 1) {
		t.Errorf("thresholded overlay has %d voxels", o.Mask().Count())
	}
	var ce *models.ConfigError
	if err := s.SetOverlayAlpha(2); !errors.As(err, &ce) {
		t.Errorf("expected ConfigError for alpha 2, got %v", err)
	}

	combined, prov, err := s.CombinedMask()
	if err != nil || combined.Count() != 1 || prov.OverlayPath != "ov.nii" || prov.OverlayThreshold != 0.6 {
		t.Errorf("combined = %v %+v %v", combined, prov, err)
	}
}

func TestLoadOverlayIgnoresBaseline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lesion.nii.gz")
	shape := models.Shape{X: 4, Y: 4, Z: 4, T: 1}
	data := make([]float64, shape.FrameLen())
	for i := range data {
		data[i] = 100
	}
	for z := 1; z < 3; z++ {
		for y := 1; y < 3; y++ {
			for x := 1; x < 3; x++ {
				data[shape.Index(x, y, z, 0)] = 200
			}
		}
	}
	if err := nifti.Save(context.Background(), path, []int{4, 4, 4}, data, volume.Identity(), nifti.Float32); err != nil {
		t.Fatal(err)
	}

	s := NewSession(nil, testOptions(), nil)
	s.SetVolume(rampVolume(t, []int{4, 4, 4}, volume.Identity()), "a.nii")
	if err := s.LoadOverlay(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	o, ok := s.Overlay()
	if !ok {
		t.Fatal("overlay not installed")
	}
	if n := o.Mask().Count(); n != 8 || !o.Mask().At(1, 1, 1) || o.Mask().At(0, 0, 0) {
		t.Errorf("overlay mask has %d voxels, want the 8 foreground voxels", n)
	}
}

func TestTimeSeries(t *testing.T) {
	v := rampVolume(t, []int{3, 3, 3, 4}, volume.Identity())
	s := NewSession(nil, testOptions(), nil)
	s.SetVolume(v, "bold.nii")
	s.SetTime(2)
	if s.Cursor().T != 2 {
		t.Fatalf("time = %d", s.Cursor().T)
	}
	if got := s.SliceInfo(); got != "Slices: 2/3 | 2/3 | 2/3 | Time: 3/4" {
		t.Errorf("SliceInfo = %q", got)
	}

	series, err := s.TimeSeries()
	if err != nil {
		t.Fatal(err)
	}
	c := s.Cursor()
	for i, x := range series.Values {
		if x != v.At(c.X, c.Y, c.Z, i) || series.ROI {
			t.Fatalf("series = %+v", series)
		}
	}

	mask := make([]float64, 27)
	mask[v.Shape().Index(c.X, c.Y, c.Z, 0)] = 1
	mask[0] = 1
	ov, _ := volume.New(mask, []int{3, 3, 3}, volume.Identity())
	s.SetOverlay(ov, "roi.nii")
	series, err = s.TimeSeries()
	if err != nil {
		t.Fatal(err)
	}
	if !series.ROI || series.Voxels != 2 {
		t.Fatalf("ROI series = %+v", series)
	}
	for i := range series.Values {
		a := v.At(0, 0, 0, i)
		b := v.At(c.X, c.Y, c.Z, i)
		if math.Abs(series.Values[i]-(a+b)/2) > 1e-12 || math.Abs(series.Std[i]-math.Abs(b-a)/2) > 1e-12 {
			t.Errorf("frame %d: mean %v std %v", i, series.Values[i], series.Std[i])
		}
	}

	s3 := NewSession(nil, testOptions(), nil)
	s3.SetVolume(rampVolume(t, []int{2, 2, 2}, volume.Identity()), "a.nii")
	if _, err := s3.TimeSeries(); err == nil {
		t.Error("expected error for a 3D volume")
	}
}

func TestRenderAndExport(t *testing.T) {
	s := NewSession(nil, testOptions(), nil)
	s.SetVolume(rampVolume(t, []int{8, 6, 4}, volume.Diagonal(1, 1, 2)), "/data/vol.nii.gz")
	if err := s.StartAutoROI(); err != nil {
		t.Fatal(err)
	}
	f := s.Render(context.Background(), models.Coronal)
	if f == nil {
		t.Fatal("no frame")
	}
	if f.Image.Bounds().Dx() != 8 || f.Image.Bounds().Dy() != 8 {
		t.Errorf("coronal frame is %v", f.Image.Bounds())
	}

	dir := t.TempDir()
	paths, err := s.ExportViews(context.Background(), dir, "png", 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 6 || filepath.Base(paths[0]) != "vol_axial.png" {
		t.Errorf("exported %v", paths)
	}
	seq, err := s.ExportSequence(context.Background(), models.Sagittal, filepath.Join(dir, "seq"), "jpeg")
	if err != nil || len(seq) != 8 {
		t.Errorf("sequence = %d files, %v", len(seq), err)
	}
}

func TestSaveMaskVersions(t *testing.T) {
	ws := t.TempDir()
	src := filepath.Join(ws, "sub-03", "anat", "sub-03_T1w.nii.gz")
	s := NewSession(nil, testOptions(), nil)
	s.SetVolume(rampVolume(t, []int{6, 6, 6}, volume.Diagonal(1, 1, 1.5)), src)
	if err := s.StartAutoROI(); err != nil {
		t.Fatal(err)
	}
	first, err := s.SaveMask(context.Background(), ws)
	if err != nil {
		t.Fatal(err)
	}
	wantDir := filepath.Join(ws, "derivatives", "manual_masks", "sub-03", "anat")
	if first.OutPath != filepath.Join(wantDir, "sub-03_T1w_ROI_v1_mask.nii.gz") {
		t.Errorf("first save at %s", first.OutPath)
	}
	second, err := s.SaveMask(context.Background(), ws)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(second.OutPath) != "sub-03_T1w_ROI_v2_mask.nii.gz" {
		t.Errorf("second save at %s", second.OutPath)
	}
	img, err := nifti.Load(context.Background(), second.OutPath)
	if err != nil {
		t.Fatal(err)
	}
	if img.Affine != s.Volume().Affine() {
		t.Errorf("mask affine %v differs from source %v", img.Affine, s.Volume().Affine())
	}
}
