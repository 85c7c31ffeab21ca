package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/banshee-data/marine-composite/internal/catalog"
	"github.com/banshee-data/marine-composite/internal/config"
	"github.com/banshee-data/marine-composite/internal/export"
	"github.com/banshee-data/marine-composite/internal/observability"
	"github.com/banshee-data/marine-composite/internal/pipeline"
	"github.com/banshee-data/marine-composite/internal/report"
	"github.com/banshee-data/marine-composite/internal/scene"
	"github.com/banshee-data/marine-composite/internal/security"
	"github.com/banshee-data/marine-composite/internal/store"
)

type compositeOptions struct {
	Catalog         string
	Sensor          scene.Sensor
	IDs             []string
	Styles          []string
	Scales          []float64
	Basename        string
	SingleTile      bool
	Sunglint        bool
	Brightness      bool
	CalibrationPath string
	StylesPath      string
	OutDir          string
	ReportDir       string
	DBPath          string
}

func parseCompositeFlags(args []string) (compositeOptions, error) {
	var o compositeOptions
	fs := flag.NewFlagSet("composite", flag.ContinueOnError)
	catalogDir := fs.String("catalog", "", "Scene catalog directory (required)")
	sensor := fs.String("sensor", string(scene.Sentinel2), "Sensor: sentinel2 or landsat8")
	ids := fs.String("ids", "", "Comma-separated acquisition ids (default: every scene in the catalog)")
	styles := fs.String("styles", "", "Comma-separated style names (required)")
	scales := fs.String("scales", "", "Comma-separated export GSDs in metres, one per style (0 keeps the composite grid)")
	fs.StringVar(&o.Basename, "basename", "", "Prefix for product names")
	fs.BoolVar(&o.SingleTile, "single-tile", false, "Fail if the scenes span more than one tile")
	fs.BoolVar(&o.Sunglint, "sunglint", true, "Apply sunglint correction")
	fs.BoolVar(&o.Brightness, "brightness", true, "Apply open-water brightness normalisation")
	fs.StringVar(&o.CalibrationPath, "calibration", "", "Calibration JSON (default: embedded for the sensor)")
	fs.StringVar(&o.StylesPath, "style-table", "", "Style table YAML (default: embedded for the sensor)")
	fs.StringVar(&o.OutDir, "out", ".", "Output directory for product TIFFs")
	fs.StringVar(&o.ReportDir, "report", "", "Write PNG/HTML diagnostics to this directory")
	fs.StringVar(&o.DBPath, "db", "", "Record provenance in this sqlite database")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	if *catalogDir == "" {
		return o, errors.New("--catalog is required")
	}
	o.Catalog = *catalogDir
	o.Sensor = scene.Sensor(*sensor)
	o.IDs = splitList(*ids)
	o.Styles = splitList(*styles)
	if len(o.Styles) == 0 {
		return o, errors.New("--styles is required")
	}
	for _, s := range splitList(*scales) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return o, fmt.Errorf("invalid scale %q: %w", s, err)
		}
		o.Scales = append(o.Scales, v)
	}
	return o, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func handleComposite(args []string) {
	opts, err := parseCompositeFlags(args)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv())
	if err != nil {
		log.Fatalf("Failed to initialise tracing: %v", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown)

	out, err := runComposite(ctx, opts, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("Composite failed: %v", err)
	}
	for _, f := range out.Files {
		fmt.Println(f)
	}
	if out.RunID != "" {
		log.Printf("Recorded run %s", out.RunID)
	}
}

type compositeOutcome struct {
	RunID    string
	Files    []string
	Products []*pipeline.Product
}

// runComposite loads the scenes, evaluates the plan and writes every
// product, then the optional provenance record and diagnostics.
func runComposite(ctx context.Context, o compositeOptions, reg prometheus.Registerer) (*compositeOutcome, error) {
	collector, err := observability.NewCollector(reg)
	if err != nil {
		return nil, err
	}
	cal, styles, err := config.Load(o.Sensor, o.CalibrationPath, o.StylesPath)
	if err != nil {
		return nil, err
	}
	coll, err := catalog.NewDir(o.Catalog).Collection(ctx, o.IDs...)
	if err != nil {
		return nil, err
	}

	req := pipeline.Request{
		Styles:            o.Styles,
		ExportScales:      o.Scales,
		ExportBasename:    o.Basename,
		RequireSingleTile: o.SingleTile,
		ApplySunglint:     o.Sunglint,
		ApplyBrightness:   o.Brightness,
	}
	plan, err := pipeline.NewPlan(coll, req, cal, styles,
		pipeline.WithGraphOptions(pipeline.WithCollector(collector)))
	if err != nil {
		return nil, err
	}

	products, err := plan.Products(ctx)
	if err != nil {
		return nil, err
	}
	out := &compositeOutcome{Products: products}
	records := make([]store.ProductRecord, 0, len(products))
	seen := make(map[string]bool, len(products))
	for _, p := range products {
		name := p.Name
		if seen[name] {
			name = fmt.Sprintf("%s_%gm", name, p.Grid().GSD)
		}
		seen[name] = true
		path := filepath.Join(o.OutDir, security.SanitizeFilename(name)+".tif")
		if err := export.WriteTIFF(path, p.Product); err != nil {
			return out, err
		}
		out.Files = append(out.Files, path)
		records = append(records, store.ProductRecord{Name: name, Style: p.Style, Scale: p.Scale, Path: path})
	}

	comp, err := plan.Composite(ctx)
	if err != nil {
		return out, err
	}
	norm, err := plan.Normalized(ctx)
	if err != nil {
		return out, err
	}
	_, normEnabled := cal.NormalizeConfig()
	normalised := o.Brightness && normEnabled && norm.Deltas != nil

	if o.DBPath != "" {
		db, err := store.OpenMigrated(o.DBPath)
		if err != nil {
			return out, err
		}
		defer db.Close()

		run := db.NewRun()
		run.Sensor = string(plan.Sensor())
		run.Tiles = plan.Tiles()
		run.CalibrationVersion = cal.GetVersion()
		run.SceneIDs = coll.IDs()
		run.Masked = comp.Masked
		run.FallbackPixels = comp.FallbackPixels
		_, run.Sunglint = cal.SunglintConfig()
		run.Sunglint = run.Sunglint && o.Sunglint
		run.Brightness = normalised
		if normalised {
			c := norm.Confidence
			run.Confidence = &c
			run.Bands = store.DeltasFrom(norm.Observed, norm.Deltas, norm.Applied)
		}
		run.Products = records
		if err := db.RecordRun(ctx, run); err != nil {
			return out, err
		}
		out.RunID = run.ID
	}

	if o.ReportDir != "" {
		in := report.Input{
			Summary: report.Summary{
				Title:          plan.ProductName("report"),
				Tiles:          plan.Tiles(),
				SceneCount:     comp.SceneCount,
				FallbackPixels: comp.FallbackPixels,
				TotalPixels:    comp.Scene.Grid().Len(),
			},
		}
		if normalised {
			in.Summary.Confidence = norm.Confidence
			for _, d := range store.DeltasFrom(norm.Observed, norm.Deltas, norm.Applied) {
				in.Summary.Deltas = append(in.Summary.Deltas, report.BandDelta{Band: d.Band, Delta: d.Delta, Applied: d.Applied})
			}
			in.Composite = comp.Scene
			in.OpenWater = norm.OpenWater
		}
		if params := plan.DepthParams(); len(params) > 0 {
			depth, err := plan.Depth(ctx, params[0])
			if err != nil {
				return out, err
			}
			in.Depth = depth.Depth
		}
		files, err := report.Write(o.ReportDir, in)
		if err != nil {
			return out, err
		}
		out.Files = append(out.Files, files...)
	}
	return out, nil
}
