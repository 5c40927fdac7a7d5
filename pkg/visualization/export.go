package visualization

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/gg"
	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	"triplanar/internal/models"
)

// CrosshairColor is the default crosshair colour (semi-transparent yellow).
var CrosshairColor = color.NRGBA{R: 255, G: 255, B: 0, A: 180}

// DrawCrosshair draws a dashed horizontal and vertical line through (x, y)
// on a copy of img.
func DrawCrosshair(img image.Image, x, y float64, col color.Color) (*image.RGBA, error) {
	dc := gg.NewContextForImage(img)
	defer dc.Close()

	b := img.Bounds()
	r, g, bl, a := col.RGBA()
	dc.SetRGBA(float64(r)/0xffff, float64(g)/0xffff, float64(bl)/0xffff, float64(a)/0xffff)
	dc.SetLineWidth(1)
	dc.SetDash(4, 2)
	dc.DrawLine(x, 0, x, float64(b.Dy()))
	dc.DrawLine(0, y, float64(b.Dx()), y)
	if err := dc.Stroke(); err != nil {
		return nil, fmt.Errorf("drawing crosshair: %w", err)
	}
	if err := dc.FlushGPU(); err != nil {
		return nil, fmt.Errorf("drawing crosshair: %w", err)
	}
	return toRGBA(dc.Image()), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// Thumbnail scales img to width pixels, keeping its aspect ratio.
func Thumbnail(img image.Image, width int) image.Image {
	return resize.Resize(uint(width), 0, img, resize.Bilinear)
}

// ImageExt returns the file extension for an output format.
func ImageExt(format string) (string, error) {
	switch strings.ToLower(format) {
	case "png":
		return ".png", nil
	case "jpeg", "jpg":
		return ".jpg", nil
	}
	return "", &models.ConfigError{Param: "output.format", Value: format, Reason: "must be png or jpeg"}
}

// SaveImage writes img as png or jpeg.
func SaveImage(img image.Image, filename, format string) error {
	if _, err := ImageExt(format); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return &models.IOError{Op: "create", Path: filename, Err: err}
	}
	if strings.EqualFold(format, "png") {
		err = png.Encode(file, img)
	} else {
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(filename)
		return &models.IOError{Op: "encode", Path: filename, Err: err}
	}
	return nil
}

// SaveSliceSequence renders every slice of the scene along plane and writes
// them as slice_<plane>_NNN files in outputDir. It returns the written paths.
func (c *Compositor) SaveSliceSequence(ctx context.Context, scene *Scene, plane models.Plane, outputDir, format string) ([]string, error) {
	ext, err := ImageExt(format)
	if err != nil {
		return nil, err
	}
	if scene == nil || scene.Volume == nil {
		return nil, fmt.Errorf("no volume loaded")
	}
	if !plane.Valid() {
		return nil, &models.ConfigError{Param: "plane", Value: fmt.Sprint(int(plane))}
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, &models.IOError{Op: "mkdir", Path: outputDir, Err: err}
	}

	axis := plane.Layout().FixedAxis
	n := scene.Volume.SpatialShape().Axis(axis)
	step := *scene
	paths := make([]string, 0, n)
	for pos := 0; pos < n; pos++ {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		step.Cursor.Voxel = scene.Cursor.Voxel.WithAxis(axis, pos)
		frame, err := c.Compose(ctx, &step, plane)
		if err != nil {
			return paths, err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d%s", plane, pos, ext))
		if err := SaveImage(frame.Image, filename, format); err != nil {
			return paths, err
		}
		paths = append(paths, filename)
	}
	c.log.Infof("wrote %d %s slices to %s", len(paths), plane, outputDir)
	return paths, nil
}
