package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() GridConfig {
	return GridConfig{
		TemplateWidth:  24,
		TemplateHeight: 24,
		ImageWidth:     100,
		ImageHeight:    100,
		MinScaleExp:    -1,
		MaxScaleExp:    1,
		MinSize:        21,
		UseShift:       true,
		ShiftRatio:     0.1,
	}
}

func TestBuildGrid_ScaleAdmissibility(t *testing.T) {
	// Template 24x24 over 100x100: exponent -1 gives 20x20 which is below
	// the minimum side, exponents 0 and 1 give 24x24 and 28x28.
	grid, err := BuildGrid(testConfig())
	require.NoError(t, err)

	require.Equal(t, 2, grid.NumScales())
	assert.Equal(t, Scale{Width: 24, Height: 24}, grid.Scales[0])
	assert.Equal(t, Scale{Width: 28, Height: 28}, grid.Scales[1])

	for _, s := range grid.Scales {
		assert.GreaterOrEqual(t, s.Width, 21)
		assert.GreaterOrEqual(t, s.Height, 21)
		assert.LessOrEqual(t, s.Width, 99)
		assert.LessOrEqual(t, s.Height, 99)
	}
}

func TestBuildGrid_CountMatchesGeneration(t *testing.T) {
	configs := []GridConfig{
		testConfig(),
		{
			TemplateWidth: 16, TemplateHeight: 32,
			ImageWidth: 320, ImageHeight: 240,
			MinScaleExp: -5, MaxScaleExp: 5,
			MinSize: 15, UseShift: true, ShiftRatio: 0.1,
		},
		{
			TemplateWidth: 40, TemplateHeight: 40,
			ImageWidth: 64, ImageHeight: 64,
			MinScaleExp: -2, MaxScaleExp: 2,
			MinSize: 25, UseShift: false,
		},
	}

	for _, cfg := range configs {
		grid, err := BuildGrid(cfg)
		require.NoError(t, err)

		// The counting pass sizes the buffer; the generation pass must
		// fill it exactly.
		scanW := cfg.ImageWidth - 2
		scanH := cfg.ImageHeight - 2
		want := 0
		for _, s := range grid.Scales {
			sw, sh := cfg.steps(s.Width, s.Height)
			want += ((scanW - s.Width + sw) / sw) * ((scanH - s.Height + sh) / sh)
		}
		assert.Equal(t, want, grid.NumWindows())
	}
}

func TestBuildGrid_WindowsInsideInsetScanArea(t *testing.T) {
	cfg := testConfig()
	grid, err := BuildGrid(cfg)
	require.NoError(t, err)
	require.NotEmpty(t, grid.Windows)

	for _, w := range grid.Windows {
		if w.X < 1 || w.Y < 1 {
			t.Fatalf("window %+v starts outside the inset scan area", w)
		}
		if w.X+w.W > cfg.ImageWidth-1 || w.Y+w.H > cfg.ImageHeight-1 {
			t.Fatalf("window %+v extends outside the inset scan area", w)
		}
	}
}

func TestBuildGrid_UnitStepStopsBeforeImageEdge(t *testing.T) {
	// With a 1-pixel step the densest grid is generated; the far edge of
	// every window must stay at most one pixel inside the image, and the
	// densest grid must actually reach that limit.
	cfg := GridConfig{
		TemplateWidth:  10,
		TemplateHeight: 10,
		ImageWidth:     30,
		ImageHeight:    30,
		MinScaleExp:    0,
		MaxScaleExp:    0,
		MinSize:        5,
		UseShift:       false,
	}
	grid, err := BuildGrid(cfg)
	require.NoError(t, err)
	require.NotEmpty(t, grid.Windows)

	maxRight, maxBottom := 0, 0
	for _, w := range grid.Windows {
		maxRight = max(maxRight, w.X+w.W)
		maxBottom = max(maxBottom, w.Y+w.H)
	}
	assert.Equal(t, cfg.ImageWidth-1, maxRight)
	assert.Equal(t, cfg.ImageHeight-1, maxBottom)
}

func TestBuildGrid_DeterministicOrdering(t *testing.T) {
	grid, err := BuildGrid(testConfig())
	require.NoError(t, err)

	prev := grid.Windows[0]
	for _, w := range grid.Windows[1:] {
		switch {
		case w.Scale != prev.Scale:
			assert.Equal(t, prev.Scale+1, w.Scale, "scales must ascend")
		case w.Y != prev.Y:
			assert.Greater(t, w.Y, prev.Y, "rows must ascend within a scale")
		default:
			assert.Greater(t, w.X, prev.X, "columns must ascend within a row")
		}
		prev = w
	}
}

func TestBuildGrid_RejectsUnsetDimensions(t *testing.T) {
	cfg := testConfig()
	cfg.TemplateWidth = Unset
	_, err := BuildGrid(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.ImageHeight = Unset
	_, err = BuildGrid(cfg)
	assert.Error(t, err)
}

func TestBuildGrid_NoAdmissibleScales(t *testing.T) {
	cfg := testConfig()
	cfg.MinSize = 500 // larger than every candidate
	grid, err := BuildGrid(cfg)
	require.NoError(t, err)
	assert.Zero(t, grid.NumScales())
	assert.Zero(t, grid.NumWindows())
}

func TestBuildOffsets_CorrespondenceAndFeatureBase(t *testing.T) {
	const (
		stride      = 100
		numFeatures = 10
		numTrees    = 13
	)
	grid, err := BuildGrid(testConfig())
	require.NoError(t, err)

	offsets := BuildOffsets(grid.Windows, stride, numFeatures, numTrees)
	require.Len(t, offsets, grid.NumWindows())

	for i, w := range grid.Windows {
		o := offsets[i]
		assert.Equal(t, (w.Y-1)*stride+(w.X-1), o.TopLeft)
		assert.Equal(t, (w.Y+w.H-1)*stride+(w.X-1), o.BottomLeft)
		assert.Equal(t, (w.Y-1)*stride+(w.X+w.W-1), o.TopRight)
		assert.Equal(t, (w.Y+w.H-1)*stride+(w.X+w.W-1), o.BottomRight)
		assert.Equal(t, w.Scale*2*numFeatures*numTrees, o.FeatureBase)
		assert.Equal(t, w.W*w.H, o.Area)
	}
}
