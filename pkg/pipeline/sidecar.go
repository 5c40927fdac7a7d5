package pipeline

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"triplanar/pkg/roi"
)

// Provenance records where a saved mask came from.
type Provenance struct {
	// Type labels the derivative, "ROI" unless configured otherwise.
	Type string
	// Source is the path of the volume the mask was drawn on.
	Source string
	// Workspace is the dataset root Source is referenced from.
	Workspace string

	OverlayPath      string
	OverlayThreshold float64
	Seeds            []roi.Params
}

// Sidecar is the JSON document written next to a saved mask.
type Sidecar struct {
	Type        string   `json:"Type"`
	Sources     []string `json:"Sources"`
	Description string   `json:"Description"`
	Origin      Origin   `json:"Origin"`
}

// Origin is the method-specific parameter block of a sidecar.
type Origin struct {
	Overlay *OverlayOrigin `json:"overlay,omitempty"`
	Seeds   []SeedOrigin   `json:"seeds,omitempty"`
}

// OverlayOrigin describes a mask derived from a loaded overlay.
type OverlayOrigin struct {
	Path      string  `json:"path"`
	Threshold float64 `json:"threshold"`
}

// SeedOrigin is one region-grow operation.
type SeedOrigin struct {
	Seed       [3]int  `json:"seed"`
	Radius     float64 `json:"radius"`
	Difference float64 `json:"difference"`
}

const sidecarSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["Type", "Sources", "Description", "Origin"],
  "properties": {
    "Type": {"type": "string", "minLength": 1},
    "Sources": {"type": "array", "minItems": 1, "items": {"type": "string", "pattern": "^bids:"}},
    "Description": {"type": "string"},
    "Origin": {
      "type": "object",
      "properties": {
        "overlay": {
          "type": "object",
          "required": ["path", "threshold"],
          "properties": {
            "path": {"type": "string"},
            "threshold": {"type": "number", "minimum": 0, "maximum": 1}
          }
        },
        "seeds": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["seed", "radius", "difference"],
            "properties": {
              "seed": {"type": "array", "items": {"type": "integer", "minimum": 0}, "minItems": 3, "maxItems": 3},
              "radius": {"type": "number", "minimum": 0},
              "difference": {"type": "number", "minimum": 0}
            }
          }
        }
      },
      "anyOf": [{"required": ["overlay"]}, {"required": ["seeds"]}]
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("sidecar.json", sidecarSchema)
	})
	return schema, schemaErr
}

// SourceRef formats a source path as a bids: reference relative to the
// workspace. Paths outside the workspace keep only their file name.
func SourceRef(workspace, source string) string {
	if workspace != "" {
		if rel, err := filepath.Rel(workspace, source); err == nil && filepath.IsLocal(rel) {
			return "bids:" + filepath.ToSlash(rel)
		}
	}
	return "bids:" + filepath.Base(source)
}

// NewSidecar builds the sidecar document for p.
func NewSidecar(p Provenance) *Sidecar {
	typ := p.Type
	if typ == "" {
		typ = "ROI"
	}
	sc := &Sidecar{
		Type:        typ,
		Sources:     []string{SourceRef(p.Workspace, p.Source)},
		Description: typ + " mask",
	}
	if p.OverlayPath != "" {
		sc.Origin.Overlay = &OverlayOrigin{Path: p.OverlayPath, Threshold: p.OverlayThreshold}
	}
	for _, s := range p.Seeds {
		sc.Origin.Seeds = append(sc.Origin.Seeds, SeedOrigin{
			Seed:       [3]int{s.Seed.X, s.Seed.Y, s.Seed.Z},
			Radius:     s.RadiusMm,
			Difference: s.Difference,
		})
	}
	return sc
}

// Marshal encodes the sidecar and validates it against the sidecar schema.
func (sc *Sidecar) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(sc, "", "    ")
	if err != nil {
		return nil, err
	}
	sch, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling sidecar schema: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if err := sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid sidecar: %w", err)
	}
	return data, nil
}
