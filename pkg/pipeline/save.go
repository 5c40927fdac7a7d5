package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"triplanar/internal/models"
	"triplanar/pkg/nifti"
	"triplanar/pkg/volume"
)

// Save progress milestones.
const (
	SaveStart    = 10
	SaveWriting  = 20
	SaveMaskDone = 70
	SaveDone     = 100
)

// SaveRequest describes a mask to save.
type SaveRequest struct {
	Mask *models.Mask
	// Affine of the source volume; masks always share their source's space.
	Affine       volume.Affine
	OutPath      string
	MetadataPath string
	Provenance   Provenance
}

// SaveResult holds the written paths.
type SaveResult struct {
	OutPath      string
	MetadataPath string
}

// SaveTask is a running mask save.
type SaveTask struct {
	task
	Request SaveRequest
	result  chan SaveResult
}

// Result delivers the written paths.
func (t *SaveTask) Result() <-chan SaveResult {
	return t.result
}

// Wait blocks until the task finishes.
func (t *SaveTask) Wait() (SaveResult, error) {
	select {
	case r := <-t.result:
		return r, nil
	case err := <-t.errc:
		return SaveResult{}, err
	}
}

// SaveMask writes req.Mask as a uint8 NIfTI file with the source affine and
// then the JSON sidecar, on its own goroutine. Both files are written to
// temporary names and renamed into place, so a failed or cancelled save
// leaves nothing at either destination. Write failures are IOError.
func SaveMask(ctx context.Context, req SaveRequest, opts Options) *SaveTask {
	t := &SaveTask{task: newTask(ctx, opts.Progress), Request: req, result: make(chan SaveResult, 1)}
	go func() {
		r, err := t.run(opts)
		if err != nil {
			t.fail(err)
			return
		}
		t.result <- r
		t.cancel()
	}()
	return t
}

func (t *SaveTask) run(opts Options) (SaveResult, error) {
	req := t.Request
	log := opts.logger()
	t.report(SaveStart)

	if req.Mask == nil {
		return SaveResult{}, fmt.Errorf("no mask to save")
	}
	sidecar, err := NewSidecar(req.Provenance).Marshal()
	if err != nil {
		return SaveResult{}, err
	}
	dir := filepath.Dir(req.OutPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return SaveResult{}, &models.IOError{Op: "mkdir", Path: dir, Err: err}
	}

	maskTmp, err := t.writeMask(req)
	if err != nil {
		return SaveResult{}, err
	}
	t.report(SaveMaskDone)

	metaTmp, err := t.writeTemp(req.MetadataPath, func(f *os.File) error {
		_, err := f.Write(sidecar)
		return err
	})
	if err != nil {
		os.Remove(maskTmp)
		return SaveResult{}, err
	}
	if err := commit([][2]string{{maskTmp, req.OutPath}, {metaTmp, req.MetadataPath}}); err != nil {
		return SaveResult{}, err
	}
	t.report(SaveDone)

	log.Infof("saved mask %s (%d voxels, %s) and %s in %s", req.OutPath, req.Mask.Count(),
		humanize.Bytes(uint64(len(req.Mask.Data))), req.MetadataPath, time.Since(t.Started).Round(time.Millisecond))
	return SaveResult{OutPath: req.OutPath, MetadataPath: req.MetadataPath}, nil
}

func (t *SaveTask) writeMask(req SaveRequest) (string, error) {
	m := req.Mask
	dims := []int{m.Shape.X, m.Shape.Y, m.Shape.Z}
	data := make([]float64, len(m.Data))
	for i, b := range m.Data {
		data[i] = float64(b)
	}
	return t.writeTemp(req.OutPath, func(f *os.File) error {
		t.report(SaveWriting)
		return nifti.EncodeFile(t.ctx, f, nifti.IsGzipPath(req.OutPath), dims, data, req.Affine, nifti.Uint8, "ROI mask")
	})
}

// writeTemp writes to a uniquely named temporary file next to path and
// returns its name once write succeeds and the task is still live. On
// failure the temporary file is removed.
func (t *SaveTask) writeTemp(path string, write func(f *os.File) error) (string, error) {
	tmp := filepath.Join(filepath.Dir(path), fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()))
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", &models.IOError{Op: "create", Path: tmp, Err: err}
	}
	werr := write(f)
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = t.ctx.Err()
	}
	if werr != nil {
		os.Remove(tmp)
		if errors.Is(werr, context.Canceled) || errors.Is(werr, context.DeadlineExceeded) {
			return "", werr
		}
		return "", &models.IOError{Op: "write", Path: path, Err: werr}
	}
	return tmp, nil
}

// commit renames each completed temporary file over its destination. When
// a rename fails, the destinations already renamed in this call are removed
// and the remaining temporary files are deleted.
func commit(moves [][2]string) error {
	for i, m := range moves {
		if err := os.Rename(m[0], m[1]); err != nil {
			for _, done := range moves[:i] {
				os.Remove(done[1])
			}
			for _, left := range moves[i:] {
				os.Remove(left[0])
			}
			return &models.IOError{Op: "rename", Path: m[1], Err: err}
		}
	}
	return nil
}
