package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"triplanar/internal/models"
	"triplanar/pkg/nifti"
	"triplanar/pkg/parallel"
	"triplanar/pkg/volume"
)

// Load progress milestones.
const (
	ProgressStart     = 10
	ProgressDecoded   = 30
	ProgressRead      = 50
	ProgressCanonical = 70
	ProgressSpacing   = 80
	ProgressDone      = 100
)

// LoadTask is a running volume load.
type LoadTask struct {
	task
	Path   string
	result chan *volume.Volume
}

// Result delivers the fully loaded volume.
func (t *LoadTask) Result() <-chan *volume.Volume {
	return t.result
}

// Wait blocks until the task finishes.
func (t *LoadTask) Wait() (*volume.Volume, error) {
	select {
	case v := <-t.result:
		return v, nil
	case err := <-t.errc:
		return nil, err
	}
}

// LoadVolume decodes path on its own goroutine: decode, validate rank,
// read, canonicalize, compute spacing, then normalize. Decode failures are
// FormatError. The returned volume is only published on Result once it is
// complete.
func LoadVolume(ctx context.Context, path string, opts Options) *LoadTask {
	return startLoad(ctx, path, opts)
}

// LoadOverlay loads an overlay through the same stages as LoadVolume,
// normalization included, so an overlay threshold relative to its maximum
// ignores a constant baseline and isolated outliers.
func LoadOverlay(ctx context.Context, path string, opts Options) *LoadTask {
	return startLoad(ctx, path, opts)
}

func startLoad(ctx context.Context, path string, opts Options) *LoadTask {
	t := &LoadTask{task: newTask(ctx, opts.Progress), Path: path, result: make(chan *volume.Volume, 1)}
	go func() {
		v, err := t.run(opts)
		if err != nil {
			t.fail(err)
			return
		}
		t.result <- v
		t.cancel()
	}()
	return t
}

func (t *LoadTask) run(opts Options) (*volume.Volume, error) {
	log := opts.logger()
	workers := parallel.Workers(opts.Workers)
	ctx := t.ctx

	t.report(ProgressStart)
	rd, err := nifti.Open(t.Path)
	if err != nil {
		return nil, err
	}
	defer rd.Close()
	t.report(ProgressDecoded)

	img, err := rd.ReadData(ctx)
	if err != nil {
		return nil, err
	}
	v, err := volume.New(img.Data, img.Dims, img.Affine)
	if err != nil {
		var fe *models.FormatError
		if errors.As(err, &fe) && fe.Path == "" {
			fe.Path = t.Path
		}
		return nil, err
	}
	t.report(ProgressRead)

	if v, err = v.Canonicalize(ctx, workers); err != nil {
		return nil, err
	}
	t.report(ProgressCanonical)

	spacing := v.Spacing()
	t.report(ProgressSpacing)

	if v, err = v.Normalize(ctx, workers); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.report(ProgressDone)

	log.Infof("loaded %s [%s]: shape %v, spacing %.3gx%.3gx%.3g mm, %s in %s",
		t.Path, t.ID, v.Shape(), spacing[0], spacing[1], spacing[2],
		humanize.Bytes(uint64(8*len(v.Data()))), time.Since(t.Started).Round(time.Millisecond))
	return v, nil
}

// Load is a synchronous LoadVolume.
func Load(ctx context.Context, path string, opts Options) (*volume.Volume, error) {
	v, err := LoadVolume(ctx, path, opts).Wait()
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return v, nil
}
