package volume

import (
	"context"
	"errors"
	"math"
	"testing"

	"triplanar/internal/models"
)

// ramp returns x-fastest data where each voxel stores its flat index.
func ramp(n int) []float64 {
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i)
	}
	return data
}

func TestNewRejectsBadRank(t *testing.T) {
	_, err := New(ramp(16), []int{4, 4}, Identity())
	var ferr *models.FormatError
	if !errors.As(err, &ferr) {
		t.Fatalf("Expected FormatError for rank 2, got %v", err)
	}
}

func TestNewRejectsLengthMismatch(t *testing.T) {
	_, err := New(ramp(10), []int{2, 2, 2}, Identity())
	var ferr *models.FormatError
	if !errors.As(err, &ferr) {
		t.Fatalf("Expected FormatError, got %v", err)
	}
}

func TestNewRejectsZeroSpacing(t *testing.T) {
	_, err := New(ramp(8), []int{2, 2, 2}, Diagonal(1, 0, 1))
	var ferr *models.FormatError
	if !errors.As(err, &ferr) {
		t.Fatalf("Expected FormatError for zero spacing, got %v", err)
	}
}

func TestSpacingFromAffine(t *testing.T) {
	a := Affine{
		{0, 0, 3, 0},
		{2, 0, 0, 0},
		{0, -0.5, 0, 0},
		{0, 0, 0, 1},
	}
	s := a.Spacing()
	want := models.Spacing{2, 0.5, 3}
	for i := range s {
		if math.Abs(s[i]-want[i]) > 1e-12 {
			t.Errorf("spacing[%d] = %f, want %f", i, s[i], want[i])
		}
	}
}

func TestVoxelAtBounds(t *testing.T) {
	v, err := New(ramp(2*3*4*2), []int{2, 3, 4, 2}, Identity())
	if err != nil {
		t.Fatal(err)
	}
	got, err := v.VoxelAt(1, 2, 3, 1)
	if err != nil {
		t.Fatalf("VoxelAt: %v", err)
	}
	if want := float64(v.Shape().Index(1, 2, 3, 1)); got != want {
		t.Errorf("VoxelAt = %f, want %f", got, want)
	}

	for _, c := range [][4]int{{2, 0, 0, 0}, {0, -1, 0, 0}, {0, 0, 4, 0}, {0, 0, 0, 2}} {
		_, err := v.VoxelAt(c[0], c[1], c[2], c[3])
		var ierr *models.IndexError
		if !errors.As(err, &ierr) {
			t.Errorf("VoxelAt%v: expected IndexError, got %v", c, err)
		}
	}
}

func TestFrameSharesData(t *testing.T) {
	v, err := New(ramp(2*2*2*3), []int{2, 2, 2, 3}, Identity())
	if err != nil {
		t.Fatal(err)
	}
	f, err := v.Frame(2)
	if err != nil {
		t.Fatal(err)
	}
	if f.Is4D() {
		t.Error("Frame should be 3D")
	}
	got, _ := f.VoxelAt(1, 1, 1, 0)
	want, _ := v.VoxelAt(1, 1, 1, 2)
	if got != want {
		t.Errorf("frame voxel = %f, want %f", got, want)
	}
}

func TestNormalizeRange(t *testing.T) {
	data := ramp(5 * 5 * 5)
	data[0] = math.NaN()
	data[1] = math.Inf(1)
	data[2] = math.Inf(-1)
	data[3] = 1e9
	v, err := New(data, []int{5, 5, 5}, Identity())
	if err != nil {
		t.Fatal(err)
	}
	n, err := v.Normalize(context.Background(), 2)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	for i, x := range n.Data() {
		if math.IsNaN(x) || x < 0 || x > 1 {
			t.Fatalf("value %d = %f outside [0,1]", i, x)
		}
	}
	if n.Data()[1] != 1 {
		t.Errorf("+Inf should clamp to 1, got %f", n.Data()[1])
	}
	if n.Data()[2] != 0 || n.Data()[0] != 0 {
		t.Errorf("-Inf and NaN should clamp to 0, got %f %f", n.Data()[2], n.Data()[0])
	}
}

func TestNormalizeConstantVolume(t *testing.T) {
	data := make([]float64, 27)
	for i := range data {
		data[i] = 7
	}
	v, _ := New(data, []int{3, 3, 3}, Identity())
	n, err := v.Normalize(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, x := range n.Data() {
		if x != 0 {
			t.Fatalf("constant volume should map to 0, got %f", x)
		}
	}
}

func TestNormalizePerFrame(t *testing.T) {
	shape := []int{4, 4, 4, 2}
	data := make([]float64, 4*4*4*2)
	for i := 0; i < 64; i++ {
		data[i] = float64(i)
		data[64+i] = float64(i) * 1000
	}
	v, _ := New(data, shape, Identity())
	n, err := v.Normalize(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := n.VoxelAt(3, 3, 3, 0)
	b, _ := n.VoxelAt(3, 3, 3, 1)
	if a != 1 || b != 1 {
		t.Errorf("each frame's maximum should map to 1, got %f and %f", a, b)
	}
}

func TestCanonicalizeFlipsAxis(t *testing.T) {
	// x runs right-to-left
	a := Affine{{-2, 0, 0, 10}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}}
	v, err := New(ramp(3*2*2), []int{3, 2, 2}, a)
	if err != nil {
		t.Fatal(err)
	}
	c, err := v.Canonicalize(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if c.Affine()[0][0] != 2 {
		t.Errorf("canonical affine[0][0] = %f, want 2", c.Affine()[0][0])
	}
	for x := 0; x < 3; x++ {
		got, _ := c.VoxelAt(x, 1, 1, 0)
		want, _ := v.VoxelAt(2-x, 1, 1, 0)
		if got != want {
			t.Errorf("voxel %d = %f, want %f", x, got, want)
		}
		wc := c.VoxelToWorld(models.Voxel{X: x, Y: 1, Z: 1})
		wv := v.VoxelToWorld(models.Voxel{X: 2 - x, Y: 1, Z: 1})
		if wc != wv {
			t.Errorf("world position changed: %v vs %v", wc, wv)
		}
	}
}

func TestCanonicalizePermutesAxes(t *testing.T) {
	// voxel axis 0 runs along world z, axis 2 along world x
	a := Affine{{0, 0, 1, 0}, {0, 1, 0, 0}, {1, 0, 0, 0}, {0, 0, 0, 1}}
	v, err := New(ramp(4*3*2), []int{4, 3, 2}, a)
	if err != nil {
		t.Fatal(err)
	}
	c, err := v.Canonicalize(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	want := models.Shape{X: 2, Y: 3, Z: 4, T: 1}
	if c.Shape() != want {
		t.Fatalf("shape = %v, want %v", c.Shape(), want)
	}
	got, _ := c.VoxelAt(1, 2, 3, 0)
	orig, _ := v.VoxelAt(3, 2, 1, 0)
	if got != orig {
		t.Errorf("permuted voxel = %f, want %f", got, orig)
	}
	if !c.Affine().Orient().IsCanonical() {
		t.Error("result is not canonical")
	}
}

func TestPadToShape(t *testing.T) {
	v, _ := New(ramp(2*3*4), []int{2, 3, 4}, Identity())
	target := models.Shape{X: 5, Y: 3, Z: 2, T: 1}
	p := v.PadToShape(target, 0)
	want := models.Shape{X: 5, Y: 3, Z: 4, T: 1}
	if p.Shape() != want {
		t.Fatalf("padded shape = %v, want %v", p.Shape(), want)
	}
	// padBefore along x is (5-2)/2 = 1
	for z := 0; z < 4; z++ {
		for y := 0; y < 3; y++ {
			for x := 0; x < 2; x++ {
				got, _ := p.VoxelAt(x+1, y, z, 0)
				orig, _ := v.VoxelAt(x, y, z, 0)
				if got != orig {
					t.Fatalf("content moved at %d,%d,%d", x, y, z)
				}
			}
			if val, _ := p.VoxelAt(0, y, z, 0); val != 0 {
				t.Errorf("pad voxel = %f, want 0", val)
			}
		}
	}

	exact := v.PadToShape(models.Shape{X: 4, Y: 6, Z: 5, T: 1}, 0)
	if exact.Shape() != (models.Shape{X: 4, Y: 6, Z: 5, T: 1}) {
		t.Errorf("shape invariant violated: %v", exact.Shape())
	}
}

func TestCropToShape(t *testing.T) {
	v, _ := New(ramp(5*3*3), []int{5, 3, 3}, Identity())
	c := v.CropToShape(models.Shape{X: 3, Y: 3, Z: 3, T: 1})
	if c.Shape().X != 3 {
		t.Fatalf("cropped X = %d, want 3", c.Shape().X)
	}
	got, _ := c.VoxelAt(0, 0, 0, 0)
	orig, _ := v.VoxelAt(1, 0, 0, 0)
	if got != orig {
		t.Errorf("crop offset wrong: %f vs %f", got, orig)
	}
}

func TestWorldRoundTrip(t *testing.T) {
	a := Affine{{2, 0, 0, -10}, {0, 3, 0, 5}, {0, 0, 1.5, 0}, {0, 0, 0, 1}}
	v, _ := New(ramp(8), []int{2, 2, 2}, a)
	vox := models.Voxel{X: 1, Y: 0, Z: 1}
	w := v.VoxelToWorld(vox)
	back, err := v.WorldToVoxel(w)
	if err != nil {
		t.Fatal(err)
	}
	if back != vox {
		t.Errorf("round trip = %v, want %v", back, vox)
	}
}
