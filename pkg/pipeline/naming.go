package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var versionRe = regexp.MustCompile(`_v(\d+)_`)

// BaseName strips the directory and the .nii or .nii.gz extension.
func BaseName(path string) string {
	name := filepath.Base(path)
	for _, ext := range []string{".nii.gz", ".nii"} {
		if strings.HasSuffix(strings.ToLower(name), ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// NextVersion returns one more than the largest _v<N>_ version found among
// the regular files in dir, or 1. A missing dir counts as empty.
func NextVersion(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	max := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		for _, m := range versionRe.FindAllStringSubmatch(e.Name(), -1) {
			if n, err := strconv.Atoi(m[1]); err == nil && n > max {
				max = n
			}
		}
	}
	return max + 1, nil
}

// MaskDir is where masks drawn on source are stored. Sources inside a
// sub-<label> directory go to derivatives/manual_masks/sub-<label>/anat
// under the workspace, which defaults to the parent of the subject
// directory.
func MaskDir(workspace, source string) string {
	dir := filepath.Dir(source)
	parts := strings.Split(filepath.ToSlash(dir), "/")
	for i, p := range parts {
		if !strings.HasPrefix(p, "sub-") {
			continue
		}
		root := workspace
		if root == "" {
			root = filepath.FromSlash(strings.Join(parts[:i], "/"))
			if root == "" && filepath.IsAbs(dir) {
				root = string(filepath.Separator)
			}
		}
		return filepath.Join(root, "derivatives", "manual_masks", p, "anat")
	}
	if workspace != "" {
		return filepath.Join(workspace, "derivatives", "manual_masks")
	}
	return filepath.Join(dir, "derivatives", "manual_masks")
}

// PlanSave picks the versioned mask and sidecar paths for source.
func PlanSave(workspace, source, roiType string) (outPath, metaPath string, err error) {
	if roiType == "" {
		roiType = "ROI"
	}
	dir := MaskDir(workspace, source)
	v, err := NextVersion(dir)
	if err != nil {
		return "", "", fmt.Errorf("scanning %s: %w", dir, err)
	}
	stem := fmt.Sprintf("%s_%s_v%d_mask", BaseName(source), roiType, v)
	return filepath.Join(dir, stem+".nii.gz"), filepath.Join(dir, stem+".json"), nil
}
