package models

import "fmt"

// FormatError reports input that does not decode to a rank 3 or 4 numeric volume.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("format error: %s", e.Reason)
	}
	return fmt.Sprintf("format error: %s: %s", e.Path, e.Reason)
}

// ConfigError reports an unknown colormap or an out of range parameter.
type ConfigError struct {
	Param  string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("config error: invalid %s %q", e.Param, e.Value)
	}
	return fmt.Sprintf("config error: invalid %s %q: %s", e.Param, e.Value, e.Reason)
}

// IndexError reports a strict voxel access outside the volume.
type IndexError struct {
	Voxel Voxel
	T     int
	Shape Shape
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index error: voxel %v t=%d outside volume %v", e.Voxel, e.T, e.Shape)
}

// IOError reports a failed read or write of an output file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
