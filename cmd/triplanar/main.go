package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"triplanar/internal/models"
	"triplanar/pkg/colormap"
	"triplanar/pkg/config"
	"triplanar/pkg/logging"
	"triplanar/pkg/viewer"
)

// consoleHost prints progress and cursor changes to stdout.
type consoleHost struct {
	last int
}

func (h *consoleHost) NotifyCursorChanged(c models.Cursor) {
	fmt.Printf("Cursor: %v t=%d\n", c.Voxel, c.T)
}

func (h *consoleHost) RequestRepaint(models.Plane) {}

func (h *consoleHost) ReportProgress(p int) {
	if p < h.last {
		fmt.Println()
	}
	h.last = p
	fmt.Printf("\rProgress: %3d%%", p)
	if p == 100 {
		fmt.Println()
	}
}

func parseSeed(s string) (models.Voxel, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return models.Voxel{}, fmt.Errorf("seed must be x,y,z, got %q", s)
	}
	var xyz [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return models.Voxel{}, fmt.Errorf("seed component %q: %v", p, err)
		}
		xyz[i] = n
	}
	return models.Voxel{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}

func main() {
	// Parse command line arguments
	input := flag.String("input", "", "Volume to view (.nii or .nii.gz)")
	overlay := flag.String("overlay", "", "Optional overlay volume")
	configPath := flag.String("config", "", "Configuration file (.yaml or .toml)")
	seed := flag.String("seed", "", "Grow an ROI at voxel x,y,z")
	radius := flag.Float64("radius", -1, "ROI radius in mm (default from config)")
	difference := flag.Float64("difference", -1, "ROI intensity tolerance (default from config)")
	cmapName := flag.String("colormap", "", "Base colormap: "+strings.Join(colormap.Names(), ", "))
	timeIdx := flag.Int("time", 0, "Time frame for 4D volumes")
	exportDir := flag.String("export", "", "Write snapshots of the three views to this directory")
	sequence := flag.Bool("sequence", false, "With -export, also write every slice of each view")
	save := flag.Bool("save", false, "Save the ROI mask and JSON sidecar")
	workspace := flag.String("workspace", "", "Dataset root for saved masks (default: parent of the sub-* directory)")
	writeConfig := flag.String("write-config", "", "Write the default configuration to this file and exit")
	flag.Parse()

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *writeConfig)
		return
	}

	// Validate inputs
	if *input == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	cfg.Log.SetLogger()
	defer logging.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	host := &consoleHost{}
	session := viewer.NewSession(host, viewer.OptionsFromConfig(cfg), logging.Default())

	fmt.Printf("Loading %s...\n", *input)
	start := time.Now()
	if err := session.Load(ctx, *input); err != nil {
		log.Fatalf("Load failed: %v", err)
	}
	fmt.Printf("Loaded %v in %.2f seconds\n", session.Volume().Shape(), time.Since(start).Seconds())

	if *cmapName != "" {
		if err := session.SetColormap(*cmapName); err != nil {
			log.Fatalf("%v", err)
		}
	}
	if err := session.SetTime(*timeIdx); err != nil {
		log.Fatalf("%v", err)
	}

	if *overlay != "" {
		fmt.Printf("Loading overlay %s...\n", *overlay)
		if err := session.LoadOverlay(ctx, *overlay); err != nil {
			log.Fatalf("Overlay failed: %v", err)
		}
	}

	if *seed != "" {
		v, err := parseSeed(*seed)
		if err != nil {
			log.Fatalf("%v", err)
		}
		if err := session.SetCursor(v); err != nil {
			log.Fatalf("Invalid seed: %v", err)
		}
		if err := session.StartAutoROI(); err != nil {
			log.Fatalf("ROI failed: %v", err)
		}
		p, _, _ := session.AutoROI()
		r, d := p.RadiusMm, p.Difference
		if *radius >= 0 {
			r = *radius
		}
		if *difference >= 0 {
			d = *difference
		}
		if err := session.UpdateAutoROI(r, d); err != nil {
			log.Fatalf("ROI failed: %v", err)
		}
		p, m, _ := session.AutoROI()
		fmt.Printf("ROI at %v: %d voxels (max radius %.1f mm)\n", p, m.Count(), session.MaxRadius())
	}

	fmt.Println(session.SliceInfo())
	if r, ok := session.Readout(models.Axial); ok {
		world, _ := session.WorldCursor()
		fmt.Printf("Value at %v: %.4f (%.1f, %.1f, %.1f mm)\n", r.Voxel, r.Value, world[0], world[1], world[2])
	}
	if session.Volume().Is4D() {
		if series, err := session.TimeSeries(); err == nil {
			fmt.Printf("Time series (%d points, roi=%v): %.4v\n", len(series.Values), series.ROI, series.Values)
		}
	}

	if *exportDir != "" {
		paths, err := session.ExportViews(ctx, *exportDir, cfg.Output.Format, cfg.Output.ThumbnailWidth)
		if err != nil {
			log.Fatalf("Export failed: %v", err)
		}
		for _, p := range paths {
			fmt.Printf("Wrote %s\n", p)
		}
		if *sequence {
			for _, p := range models.Planes {
				dir := filepath.Join(*exportDir, p.String())
				if _, err := session.ExportSequence(ctx, p, dir, cfg.Output.Format); err != nil {
					log.Printf("Warning: Failed to save %s slices: %v", p, err)
					continue
				}
				fmt.Printf("Saved %s slices to %s\n", p, dir)
			}
		}
	}

	if *save {
		res, err := session.SaveMask(ctx, *workspace)
		if err != nil {
			log.Fatalf("Save failed: %v", err)
		}
		fmt.Printf("Mask saved to %s\nMetadata saved to %s\n", res.OutPath, res.MetadataPath)
	}
}
