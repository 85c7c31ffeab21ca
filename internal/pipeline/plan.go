package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/marine-composite/internal/bathymetry"
	"github.com/banshee-data/marine-composite/internal/cloudmask"
	"github.com/banshee-data/marine-composite/internal/composite"
	"github.com/banshee-data/marine-composite/internal/config"
	"github.com/banshee-data/marine-composite/internal/grading"
	"github.com/banshee-data/marine-composite/internal/monitoring"
	"github.com/banshee-data/marine-composite/internal/normalize"
	"github.com/banshee-data/marine-composite/internal/observability"
	"github.com/banshee-data/marine-composite/internal/raster"
	"github.com/banshee-data/marine-composite/internal/scene"
	"github.com/banshee-data/marine-composite/internal/sunglint"
)

var (
	// ErrExportScaleMismatch is returned when export scales are given but do
	// not pair one to one with the requested styles.
	ErrExportScaleMismatch = errors.New("export scales do not match styles")
	// ErrMultiTile is returned when a single tile is required but the
	// scenes span several.
	ErrMultiTile = errors.New("scenes span more than one tile")
)

// Request names the products to build from one collection.
type Request struct {
	Styles []string
	// ExportScales, when set, gives the output GSD of each style by
	// position. Zero keeps the composite grid.
	ExportScales      []float64
	ExportBasename    string
	RequireSingleTile bool
	ApplySunglint     bool
	ApplyBrightness   bool
}

// Validate checks the request against a style table.
func (r Request) Validate(styles *grading.Table) error {
	if len(r.Styles) == 0 {
		return fmt.Errorf("%w: no styles requested", config.ErrInvalidConfig)
	}
	for _, s := range r.Styles {
		if _, err := styles.Style(s); err != nil {
			return err
		}
	}
	if len(r.ExportScales) > 0 && len(r.ExportScales) != len(r.Styles) {
		return fmt.Errorf("%w: %d scales for %d styles", ErrExportScaleMismatch, len(r.ExportScales), len(r.Styles))
	}
	for i, sc := range r.ExportScales {
		if sc < 0 {
			return fmt.Errorf("%w: export scale %d is negative", config.ErrInvalidConfig, i)
		}
	}
	// A style may repeat only at distinct export scales.
	seen := make(map[string]bool, len(r.Styles))
	for i, s := range r.Styles {
		key := gradeNodeName(s, r.exportScale(i))
		if seen[key] {
			return fmt.Errorf("%w: style %s requested twice at the same scale", config.ErrInvalidConfig, s)
		}
		seen[key] = true
	}
	return nil
}

func (r Request) exportScale(i int) float64 {
	if len(r.ExportScales) == 0 {
		return 0
	}
	return r.ExportScales[i]
}

func gradeNodeName(style string, scale float64) string {
	if scale > 0 {
		return fmt.Sprintf("grade/%s@%gm", style, scale)
	}
	return "grade/" + style
}

// Prepared is the per-scene stage output the compositor consumes.
type Prepared struct {
	Collection *scene.Collection
	// Masks is nil when the collection has a single scene.
	Masks map[string]*raster.Mask
}

// Product is a named, graded output ready for export.
type Product struct {
	Name string
	// Scale is the requested export GSD, or zero for the composite grid.
	Scale float64
	*grading.Product
}

// Plan is the unevaluated stage graph for one request.
type Plan struct {
	graph   *Graph
	req     Request
	cal     *config.Calibration
	engine  *grading.Engine
	tiles   []string
	sensor  scene.Sensor
	scenes  int
	metrics *observability.Collector

	corrected  []*Node[*scene.Scene]
	masks      []*Node[*raster.Mask]
	prepared   *Node[*Prepared]
	composite  *Node[*composite.Result]
	normalized *Node[*normalize.Result]
	depth      map[bathymetry.Params]*Node[*bathymetry.Result]
	products   []*Node[*Product]
}

// Option configures a Plan.
type Option func(*planOptions)

type planOptions struct {
	graph []GraphOption
}

// WithGraphOptions passes instrumentation options to the plan graph.
func WithGraphOptions(opts ...GraphOption) Option {
	return func(o *planOptions) { o.graph = append(o.graph, opts...) }
}

// NewPlan validates the request and configuration and builds the graph.
// It fails before any raster work on configuration errors.
func NewPlan(c *scene.Collection, req Request, cal *config.Calibration, styles *grading.Table, opts ...Option) (*Plan, error) {
	if c == nil {
		return nil, composite.ErrNoComposite
	}
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	if err := req.Validate(styles); err != nil {
		return nil, err
	}
	sensor := cal.GetSensor()
	if scene.Sensor(styles.Sensor) != sensor {
		return nil, fmt.Errorf("%w: styles for %s with %s calibration", config.ErrInvalidConfig, styles.Sensor, sensor)
	}
	for _, s := range c.Scenes() {
		if s.Sensor() != sensor {
			return nil, fmt.Errorf("%w: scene %s is %s, calibration is %s", config.ErrInvalidConfig, s.ID(), s.Sensor(), sensor)
		}
	}
	sorted := c.Sorted()
	tiles, err := sorted.TileIDs()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	if req.RequireSingleTile && len(tiles) > 1 {
		return nil, fmt.Errorf("%w: %s", ErrMultiTile, strings.Join(tiles, ", "))
	}

	var po planOptions
	for _, o := range opts {
		o(&po)
	}
	p := &Plan{
		graph:  NewGraph(po.graph...),
		req:    req,
		cal:    cal,
		engine: grading.NewEngine(styles),
		tiles:  tiles,
		sensor: sensor,
		scenes: c.Len(),
		depth:  make(map[bathymetry.Params]*Node[*bathymetry.Result]),
	}
	p.metrics = p.graph.collector
	if err := p.build(sorted); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Plan) build(c *scene.Collection) error {
	var corrector *sunglint.Corrector
	if sg, enabled := p.cal.SunglintConfig(); p.req.ApplySunglint && enabled {
		var err error
		if corrector, err = sunglint.New(sg); err != nil {
			return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
	}
	var estimator cloudmask.Estimator
	if c.Len() > 1 {
		var err error
		if estimator, err = p.cal.CloudMaskEstimator(); err != nil {
			return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
	}

	for _, s := range c.Scenes() {
		p.corrected = append(p.corrected, NewNode(p.graph, "correct/"+s.ID(), func(context.Context) (*scene.Scene, error) {
			if corrector == nil {
				return s, nil
			}
			return corrector.Correct(s)
		}))
		if estimator != nil {
			p.masks = append(p.masks, NewNode(p.graph, "mask/"+s.ID(), func(context.Context) (*raster.Mask, error) {
				return estimator.Estimate(s)
			}))
		}
	}

	p.prepared = NewNode(p.graph, "prepare", p.prepare)

	compositeCfg := p.cal.CompositeConfig()
	p.composite = NewNode(p.graph, "composite", func(ctx context.Context) (*composite.Result, error) {
		prep, err := p.prepared.Get(ctx)
		if err != nil {
			return nil, err
		}
		res, err := composite.Compose(ctx, prep.Collection, prep.Masks, compositeCfg)
		if err != nil {
			return nil, err
		}
		p.metrics.AddFallbackPixels(res.FallbackPixels)
		return res, nil
	})

	var normalizer *normalize.Normalizer
	if n, enabled := p.cal.NormalizeConfig(); p.req.ApplyBrightness && enabled {
		var err error
		if normalizer, err = normalize.New(n); err != nil {
			return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
	}
	p.normalized = NewNode(p.graph, "normalize", func(ctx context.Context) (*normalize.Result, error) {
		comp, err := p.composite.Get(ctx)
		if err != nil {
			return nil, err
		}
		if normalizer == nil {
			return &normalize.Result{Scene: comp.Scene}, nil
		}
		s := comp.Scene
		return normalizer.Normalize(s, raster.FootprintMask(s.Grid(), s.Footprint()))
	})

	model := p.cal.DepthModel()
	for i, name := range p.req.Styles {
		st, err := p.engine.Table().Style(name)
		if err != nil {
			return err
		}
		if st.Depth != nil {
			params := bathymetry.Params{FilterRadiusM: st.Depth.FilterRadiusM, Iterations: st.Depth.Iterations}
			if _, ok := p.depth[params]; !ok {
				p.depth[params] = NewNode(p.graph, depthNodeName(params), func(ctx context.Context) (*bathymetry.Result, error) {
					n, err := p.normalized.Get(ctx)
					if err != nil {
						return nil, err
					}
					return bathymetry.Estimate(n.Scene, model, params)
				})
			}
		}
		p.products = append(p.products, p.productNode(name, p.req.exportScale(i)))
	}
	return nil
}

func depthNodeName(p bathymetry.Params) string {
	return fmt.Sprintf("depth/r%gm-x%d", p.FilterRadiusM, p.Iterations)
}

// prepare corrects every scene and, for multi-scene collections, estimates
// every mask. Scenes are independent and run concurrently.
func (p *Plan) prepare(ctx context.Context) (*Prepared, error) {
	corrected := make([]*scene.Scene, len(p.corrected))
	masks := make([]*raster.Mask, len(p.masks))
	g, gctx := errgroup.WithContext(ctx)
	for i, n := range p.corrected {
		g.Go(func() error {
			s, err := n.Get(gctx)
			corrected[i] = s
			return err
		})
	}
	for i, n := range p.masks {
		g.Go(func() error {
			m, err := n.Get(gctx)
			masks[i] = m
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c, err := scene.NewCollection(corrected...)
	if err != nil {
		return nil, err
	}
	prep := &Prepared{Collection: c}
	if len(masks) > 0 {
		prep.Masks = make(map[string]*raster.Mask, len(masks))
		for i, s := range corrected {
			prep.Masks[s.ID()] = masks[i]
		}
	}
	return prep, nil
}

func (p *Plan) productNode(style string, scale float64) *Node[*Product] {
	name := p.ProductName(style)
	return NewNode(p.graph, gradeNodeName(style, scale), func(ctx context.Context) (*Product, error) {
		n, err := p.normalized.Get(ctx)
		if err != nil {
			return nil, err
		}
		depth := func(params bathymetry.Params) (*bathymetry.Result, error) {
			node, ok := p.depth[params]
			if !ok {
				return nil, fmt.Errorf("no depth estimate planned for %s", depthNodeName(params))
			}
			return node.Get(ctx)
		}
		gp, err := p.engine.Grade(n.Scene, style, depth)
		if err != nil {
			return nil, err
		}
		if scale > 0 && scale != gp.Grid().GSD {
			target := gp.Grid().WithGSD(scale)
			for i, b := range gp.Bands {
				gp.Bands[i] = raster.Resample(b, target)
			}
		}
		return &Product{Name: name, Scale: scale, Product: gp}, nil
	})
}

// ProductName returns <basename>_<style>_<tiles joined by ->.
func (p *Plan) ProductName(style string) string {
	parts := make([]string, 0, 3)
	if p.req.ExportBasename != "" {
		parts = append(parts, p.req.ExportBasename)
	}
	parts = append(parts, style)
	if len(p.tiles) > 0 {
		parts = append(parts, strings.Join(p.tiles, "-"))
	}
	return strings.Join(parts, "_")
}

// Graph returns the underlying graph.
func (p *Plan) Graph() *Graph { return p.graph }

// Tiles returns the tile ids the scenes cover.
func (p *Plan) Tiles() []string { return append([]string(nil), p.tiles...) }

// Sensor returns the sensor of the planned scenes.
func (p *Plan) Sensor() scene.Sensor { return p.sensor }

// SceneCount returns the number of input scenes.
func (p *Plan) SceneCount() int { return p.scenes }

// Calibration returns the calibration the plan was built with.
func (p *Plan) Calibration() *config.Calibration { return p.cal }

// Composite materialises the composite.
func (p *Plan) Composite(ctx context.Context) (*composite.Result, error) {
	return p.composite.Get(ctx)
}

// Normalized materialises the brightness-normalised composite.
func (p *Plan) Normalized(ctx context.Context) (*normalize.Result, error) {
	return p.normalized.Get(ctx)
}

// Depth materialises a depth estimate planned for params.
func (p *Plan) Depth(ctx context.Context, params bathymetry.Params) (*bathymetry.Result, error) {
	n, ok := p.depth[params]
	if !ok {
		return nil, fmt.Errorf("no depth estimate planned for %s", depthNodeName(params))
	}
	return n.Get(ctx)
}

// DepthParams lists the depth estimates the plan will compute, widest
// filter first.
func (p *Plan) DepthParams() []bathymetry.Params {
	out := make([]bathymetry.Params, 0, len(p.depth))
	for k := range p.depth {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FilterRadiusM != out[j].FilterRadiusM {
			return out[i].FilterRadiusM > out[j].FilterRadiusM
		}
		return out[i].Iterations > out[j].Iterations
	})
	return out
}

// Products materialises every requested product, in request order.
func (p *Plan) Products(ctx context.Context) ([]*Product, error) {
	out := make([]*Product, len(p.products))
	g, gctx := errgroup.WithContext(ctx)
	for i, n := range p.products {
		g.Go(func() error {
			prod, err := n.Get(gctx)
			out[i] = prod
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	monitoring.Logf("pipeline: %d products for tiles %s", len(out), strings.Join(p.tiles, ","))
	return out, nil
}
