// Package grading turns corrected composites into visual or physical
// products using a table of named, calibrated styles.
//
// Visual products hold values in [0,1] and are encoded to 8 bits by Encode8.
// Threshold products hold 0/1 and are suitable for polygon extraction.
// Physical products, such as depth in metres, are passed through unscaled.
package grading

import (
	"fmt"
	"math"

	"github.com/banshee-data/marine-composite/internal/bathymetry"
	"github.com/banshee-data/marine-composite/internal/raster"
	"github.com/banshee-data/marine-composite/internal/scene"
	"github.com/banshee-data/marine-composite/internal/units"
)

// Enhance stretches x from [min,max] to [0,1] and applies a gamma curve.
// Enhance(min) is 0 and Enhance(max) is 1.
func Enhance(x, min, max, gamma float64) float64 {
	v := (x - min) / (max - min)
	v = math.Max(0, math.Min(1, v))
	return math.Pow(v, 1/gamma)
}

// DepthSource supplies depth estimates for depth styles. Callers may share
// estimates between styles with the same parameters.
type DepthSource func(p bathymetry.Params) (*bathymetry.Result, error)

// Product is the output of one style.
type Product struct {
	Style      string
	Kind       Kind
	Physical   bool
	Polygonize bool
	// Bands are in output order.
	Bands []*raster.Band
}

// Grid returns the product grid.
func (p *Product) Grid() raster.Grid {
	return p.Bands[0].Grid
}

// Engine applies styles from a table.
type Engine struct {
	table *Table
}

// NewEngine returns an engine over a validated table.
func NewEngine(t *Table) *Engine {
	return &Engine{table: t}
}

// Table returns the style table.
func (e *Engine) Table() *Table { return e.table }

// Grade applies the named style to s. depth is required only by depth
// styles.
func (e *Engine) Grade(s *scene.Scene, name string, depth DepthSource) (*Product, error) {
	st, err := e.table.Style(name)
	if err != nil {
		return nil, err
	}
	p := &Product{Style: st.Name, Kind: st.Kind, Physical: st.Physical, Polygonize: st.Polygonize}
	switch st.Kind {
	case KindContrast, KindSlope:
		p.Bands, err = gradeBands(s, st)
	case KindThreshold:
		p.Bands, err = gradeThreshold(s, st)
	case KindDepth, KindDepthThreshold:
		p.Bands, err = gradeDepth(st, depth)
	default:
		err = fmt.Errorf("style %s: unknown kind %q", st.Name, st.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("grade %s: %w", name, err)
	}
	return p, nil
}

// prepare loads a band in reflectance (or fixed-point when raw), resampled
// to the style working scale and smoothed.
func prepare(s *scene.Scene, st Style, band string, raw bool) (*raster.Band, error) {
	b, err := s.Band(band)
	if err != nil {
		return nil, err
	}
	if st.WorkingScale > 0 {
		b = raster.Resample(b, s.Grid().WithGSD(st.WorkingScale))
	}
	if !raw {
		b = b.Map(band, units.ToReflectance)
	}
	for _, f := range st.Smoothing {
		b, err = raster.Focal(b, f.Op, raster.CircleMetres(f.RadiusM, b.Grid), f.Iterations)
		if err != nil {
			return nil, err
		}
	}
	return b, nil
}

func gradeBands(s *scene.Scene, st Style) ([]*raster.Band, error) {
	out := make([]*raster.Band, len(st.Bands))
	for i, g := range st.Bands {
		b, err := prepare(s, st, g.Band, false)
		if err != nil {
			return nil, err
		}
		if st.Kind == KindSlope {
			if len(st.PreContrast) > 0 {
				pc := st.PreContrast[i]
				b = b.Map(g.Band, func(v float64) float64 { return Enhance(v, pc.Min, pc.Max, pc.Gamma) })
			}
			b = raster.Slope(g.Band, b)
		}
		out[i] = b.Map(g.Band, func(v float64) float64 { return Enhance(v, g.Min, g.Max, g.Gamma) })
	}
	return out, nil
}

func gradeThreshold(s *scene.Scene, st Style) ([]*raster.Band, error) {
	th := st.Threshold
	b, err := prepare(s, st, th.Band, th.Raw)
	if err != nil {
		return nil, err
	}
	out := b.GreaterThan(th.Above).ToBand(st.Name)
	if out, err = out.UpdateMask(b.ValidMask()); err != nil {
		return nil, err
	}
	if wm := st.WaterMask; wm != nil {
		w, err := s.Band(wm.Band)
		if err != nil {
			return nil, err
		}
		w = raster.Resample(w, out.Grid)
		if out, err = out.UpdateMask(w.LessThan(wm.Below)); err != nil {
			return nil, err
		}
	}
	return []*raster.Band{out}, nil
}

func gradeDepth(st Style, depth DepthSource) ([]*raster.Band, error) {
	if depth == nil {
		return nil, fmt.Errorf("style %s needs a depth source", st.Name)
	}
	res, err := depth(bathymetry.Params{FilterRadiusM: st.Depth.FilterRadiusM, Iterations: st.Depth.Iterations})
	if err != nil {
		return nil, err
	}
	if st.Kind == KindDepth {
		return []*raster.Band{res.Depth.Renamed(st.Name)}, nil
	}
	out := res.Depth.GreaterThan(*st.Depth.Above).ToBand(st.Name)
	if out, err = out.UpdateMask(res.Valid); err != nil {
		return nil, err
	}
	return []*raster.Band{out}, nil
}
