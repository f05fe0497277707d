package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ScaleBase is the geometric base of the scale pyramid. Candidate window
// sizes grow by this factor per scale exponent.
const ScaleBase = 1.2

// Unset marks a dimension that has not been configured yet.
const Unset = -1

// ErrGridMismatch indicates that the window count computed in the counting
// pass disagrees with the number of windows actually generated. The grid
// buffer is sized from the count, so a mismatch would mean out-of-bounds
// writes and must abort initialization.
var ErrGridMismatch = errors.New("geometry: generated window count does not match counted windows")

// Scale is one admissible entry of the scale pyramid, in pixels.
type Scale struct {
	Width  int
	Height int
}

// Window is a candidate bounding box at a specific pyramid scale.
// Scale is the index into the Scale sequence, not an exponent.
type Window struct {
	X     int
	Y     int
	W     int
	H     int
	Scale int
}

// GridConfig describes the scan geometry for one template/image pairing.
type GridConfig struct {
	TemplateWidth  int
	TemplateHeight int
	ImageWidth     int
	ImageHeight    int

	// Scale exponents, inclusive. The pyramid covers ScaleBase^i for
	// i in [MinScaleExp, MaxScaleExp].
	MinScaleExp int
	MaxScaleExp int

	// MinSize rejects scales whose width or height falls below it.
	MinSize int

	// UseShift selects proportional steps (ShiftRatio of the window size)
	// instead of a fixed 1-pixel step.
	UseShift   bool
	ShiftRatio float64
}

// Validate reports whether all required dimensions have been set.
func (c GridConfig) Validate() error {
	if c.TemplateWidth == Unset || c.TemplateHeight == Unset {
		return errors.New("geometry: template dimensions not set")
	}
	if c.ImageWidth == Unset || c.ImageHeight == Unset {
		return errors.New("geometry: image dimensions not set")
	}
	if c.TemplateWidth <= 0 || c.TemplateHeight <= 0 {
		return fmt.Errorf("geometry: invalid template size %dx%d", c.TemplateWidth, c.TemplateHeight)
	}
	if c.ImageWidth <= 0 || c.ImageHeight <= 0 {
		return fmt.Errorf("geometry: invalid image size %dx%d", c.ImageWidth, c.ImageHeight)
	}
	if c.MinScaleExp > c.MaxScaleExp {
		return fmt.Errorf("geometry: scale range [%d,%d] is empty", c.MinScaleExp, c.MaxScaleExp)
	}
	return nil
}

// steps returns the horizontal and vertical shift for a window of the given
// size. Proportional shifting never drops below one pixel.
func (c GridConfig) steps(w, h int) (int, int) {
	if !c.UseShift {
		return 1, 1
	}
	ratio := c.ShiftRatio
	if ratio <= 0 {
		ratio = 0.1
	}
	sw := int(math.Max(1, float64(w)*ratio))
	sh := int(math.Max(1, float64(h)*ratio))
	return sw, sh
}

// Grid is the full multi-scale sliding-window enumeration for one
// configuration. Windows are ordered by ascending scale index, then row,
// then column; downstream stages address them by position in Windows and
// rely on that order staying fixed for the lifetime of the grid.
type Grid struct {
	Scales  []Scale
	Windows []Window
}

// BuildGrid enumerates the scale pyramid and the candidate window grid.
//
// The scan area is inset by one pixel on every side because the integral
// image used by later stages is undefined at negative coordinates. Window
// counting runs as a separate first pass so the window slice can be
// allocated at its exact final size before generation.
func BuildGrid(cfg GridConfig) (*Grid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// The scan area spans [1, ImageWidth-1] x [1, ImageHeight-1]: one
	// pixel inset on the near sides for the integral-image corner
	// lookups, and windows may not touch the far image edge either.
	const scanX, scanY = 1, 1
	scanW := cfg.ImageWidth - 2
	scanH := cfg.ImageHeight - 2

	scales := make([]Scale, 0, cfg.MaxScaleExp-cfg.MinScaleExp+1)
	numWindows := 0

	for i := cfg.MinScaleExp; i <= cfg.MaxScaleExp; i++ {
		f := math.Pow(ScaleBase, float64(i))
		w := int(float64(cfg.TemplateWidth) * f)
		h := int(float64(cfg.TemplateHeight) * f)

		if w < cfg.MinSize || h < cfg.MinSize || w > scanW || h > scanH {
			continue
		}

		sw, sh := cfg.steps(w, h)
		scales = append(scales, Scale{Width: w, Height: h})
		numWindows += ((scanW - w + sw) / sw) * ((scanH - h + sh) / sh)
	}

	windows := make([]Window, 0, numWindows)

	for scaleIndex, s := range scales {
		sw, sh := cfg.steps(s.Width, s.Height)

		for y := scanY; y+s.Height <= scanY+scanH; y += sh {
			for x := scanX; x+s.Width <= scanX+scanW; x += sw {
				windows = append(windows, Window{
					X:     x,
					Y:     y,
					W:     s.Width,
					H:     s.Height,
					Scale: scaleIndex,
				})
			}
		}
	}

	if len(windows) != numWindows {
		return nil, fmt.Errorf("%w: counted %d, generated %d", ErrGridMismatch, numWindows, len(windows))
	}

	return &Grid{Scales: scales, Windows: windows}, nil
}

// NumScales returns the number of admissible pyramid scales.
func (g *Grid) NumScales() int { return len(g.Scales) }

// NumWindows returns the total candidate window count across all scales.
func (g *Grid) NumWindows() int { return len(g.Windows) }
