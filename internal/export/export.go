// Package export writes finished products to disk as TIFF rasters.
//
// Visual products are written as 8-bit gray or RGB with 0 reserved for no
// data. Physical products are written as 16-bit gray in fixed point and
// carry a JSON sidecar describing how to decode them.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"

	"github.com/banshee-data/marine-composite/internal/grading"
	"github.com/banshee-data/marine-composite/internal/monitoring"
	"github.com/banshee-data/marine-composite/internal/raster"
)

// Fixed-point encoding of physical products: value = round(x/Scale) + Offset.
// Stored 0 is no data.
const (
	PhysicalScale  = 0.01
	PhysicalOffset = 32768
)

// Sidecar describes a physical product raster.
type Sidecar struct {
	Style  string      `json:"style"`
	Unit   string      `json:"unit"`
	Scale  float64     `json:"scale"`
	Offset float64     `json:"offset"`
	NoData int         `json:"nodata"`
	Grid   raster.Grid `json:"grid"`
}

// Decode converts a stored sample to its physical value. ok is false for
// no data.
func (s Sidecar) Decode(v uint16) (x float64, ok bool) {
	if int(v) == s.NoData {
		return 0, false
	}
	return (float64(v) - s.Offset) * s.Scale, true
}

// SidecarPath returns the sidecar location for a raster path.
func SidecarPath(path string) string {
	return path + ".json"
}

// WriteTIFF writes p to path. Physical products also get a sidecar.
func WriteTIFF(path string, p *grading.Product) error {
	if p == nil || len(p.Bands) == 0 {
		return errors.New("export: empty product")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}

	var (
		img image.Image
		err error
	)
	if p.Physical {
		img, err = physicalImage(p)
	} else {
		img, err = visualImage(p)
	}
	if err != nil {
		return fmt.Errorf("export %s: %w", p.Style, err)
	}
	if err := writeImage(path, img); err != nil {
		return err
	}
	if p.Physical {
		if err := writeSidecar(SidecarPath(path), p); err != nil {
			return err
		}
	}
	monitoring.Logf("export: wrote %s (%s)", path, p.Grid())
	return nil
}

func writeImage(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		f.Close()
		return fmt.Errorf("export: encode %s: %w", path, err)
	}
	return f.Close()
}

func visualImage(p *grading.Product) (image.Image, error) {
	planes, err := p.Encode8()
	if err != nil {
		return nil, err
	}
	g := p.Grid()
	rect := image.Rect(0, 0, g.Width, g.Height)
	switch len(planes) {
	case 1:
		img := image.NewGray(rect)
		copy(img.Pix, planes[0])
		return img, nil
	case 3:
		img := image.NewNRGBA(rect)
		for i := range planes[0] {
			r, gr, b := planes[0][i], planes[1][i], planes[2][i]
			a := uint8(255)
			if r == grading.NoData && gr == grading.NoData && b == grading.NoData {
				a = 0
			}
			copy(img.Pix[i*4:i*4+4], []uint8{r, gr, b, a})
		}
		return img, nil
	default:
		return nil, fmt.Errorf("cannot write %d bands", len(planes))
	}
}

func physicalImage(p *grading.Product) (image.Image, error) {
	if len(p.Bands) != 1 {
		return nil, fmt.Errorf("physical product has %d bands, want 1", len(p.Bands))
	}
	b := p.Bands[0]
	img := image.NewGray16(image.Rect(0, 0, b.Grid.Width, b.Grid.Height))
	for i, v := range b.Data {
		if !b.IsValid(i) || math.IsNaN(v) {
			continue
		}
		e := EncodePhysical(v)
		img.Pix[2*i] = uint8(e >> 8)
		img.Pix[2*i+1] = uint8(e)
	}
	return img, nil
}

// EncodePhysical maps x to its fixed-point form, clamped to 1..65535.
func EncodePhysical(x float64) uint16 {
	v := math.Round(x/PhysicalScale) + PhysicalOffset
	return uint16(math.Max(1, math.Min(math.MaxUint16, v)))
}

func writeSidecar(path string, p *grading.Product) error {
	s := Sidecar{
		Style:  p.Style,
		Unit:   "m",
		Scale:  PhysicalScale,
		Offset: PhysicalOffset,
		NoData: 0,
		Grid:   p.Grid(),
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

// ReadSidecar loads a sidecar written by WriteTIFF.
func ReadSidecar(path string) (*Sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Sidecar
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("export: parse sidecar %s: %w", path, err)
	}
	return &s, nil
}
