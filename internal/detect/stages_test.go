package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackforge/tld/internal/device"
	"github.com/trackforge/tld/internal/geometry"
	"github.com/trackforge/tld/internal/imgutil"
)

func TestVarianceVariantsAgree(t *testing.T) {
	cfg := testCascadeConfig()
	grid, err := geometry.BuildGrid(cfg.gridConfig())
	require.NoError(t, err)
	offsets := geometry.BuildOffsets(grid.Windows, cfg.ImageStride, cfg.NumFeatures, cfg.NumTrees)

	devBuf, err := device.AllocWindows(grid.Windows)
	require.NoError(t, err)
	defer devBuf.Free()

	frame := noiseFrame(t, 11)
	ii, err := imgutil.NewIntegral(cfg.ImageWidth, cfg.ImageHeight, cfg.ImageStride)
	require.NoError(t, err)
	require.NoError(t, ii.Compute(frame))

	serialState := NewState(grid.NumWindows(), cfg.NumTrees)
	serial := &serialVarianceFilter{offsets: offsets, state: serialState, threshold: 50}
	serialOut, err := serial.FilterGrid(ii, serialState.SeedSurviving(grid.NumWindows()))
	require.NoError(t, err)

	parallelState := NewState(grid.NumWindows(), cfg.NumTrees)
	parallel := &parallelVarianceFilter{
		windows:   devBuf,
		stride:    cfg.ImageStride,
		state:     parallelState,
		threshold: 50,
		workers:   7,
	}
	parallelOut, err := parallel.FilterGrid(ii, parallelState.SeedSurviving(grid.NumWindows()))
	require.NoError(t, err)

	// Both variants must reject the same windows in the same order and
	// record the same scores.
	require.Equal(t, serialOut, parallelOut)
	assert.InDeltaSlice(t, serialState.Variances, parallelState.Variances, 1e-9)
}

func TestVariancePreservesOrder(t *testing.T) {
	cfg := testCascadeConfig()
	grid, err := geometry.BuildGrid(cfg.gridConfig())
	require.NoError(t, err)

	devBuf, err := device.AllocWindows(grid.Windows)
	require.NoError(t, err)
	defer devBuf.Free()

	frame := checkerFrame(t, 20, 20, 16)
	ii, err := imgutil.NewIntegral(cfg.ImageWidth, cfg.ImageHeight, cfg.ImageStride)
	require.NoError(t, err)
	require.NoError(t, ii.Compute(frame))

	state := NewState(grid.NumWindows(), cfg.NumTrees)
	filter := &parallelVarianceFilter{
		windows: devBuf, stride: cfg.ImageStride, state: state, threshold: 1, workers: 5,
	}
	out, err := filter.FilterGrid(ii, state.SeedSurviving(grid.NumWindows()))
	require.NoError(t, err)
	require.NotEmpty(t, out)

	for i := 1; i < len(out); i++ {
		assert.Less(t, out[i-1], out[i], "compaction must preserve index order")
	}
}

func TestEnsembleFeatureGeometryIsSeeded(t *testing.T) {
	cfg := testCascadeConfig()
	grid, err := geometry.BuildGrid(cfg.gridConfig())
	require.NoError(t, err)
	offsets := geometry.BuildOffsets(grid.Windows, cfg.ImageStride, cfg.NumFeatures, cfg.NumTrees)

	a := newEnsembleClassifier(cfg, grid, offsets, NewState(grid.NumWindows(), cfg.NumTrees))
	b := newEnsembleClassifier(cfg, grid, offsets, NewState(grid.NumWindows(), cfg.NumTrees))
	assert.Equal(t, a.featureOffsets, b.featureOffsets)

	cfg2 := cfg
	cfg2.Seed = 99
	c := newEnsembleClassifier(cfg2, grid, offsets, NewState(grid.NumWindows(), cfg.NumTrees))
	assert.NotEqual(t, a.featureOffsets, c.featureOffsets)

	// One offset pair per scale, tree and feature.
	assert.Len(t, a.featureOffsets, grid.NumScales()*2*cfg.NumFeatures*cfg.NumTrees)
}

func TestEnsembleSetModelValidatesShape(t *testing.T) {
	cfg := testCascadeConfig()
	grid, err := geometry.BuildGrid(cfg.gridConfig())
	require.NoError(t, err)
	offsets := geometry.BuildOffsets(grid.Windows, cfg.ImageStride, cfg.NumFeatures, cfg.NumTrees)
	e := newEnsembleClassifier(cfg, grid, offsets, NewState(grid.NumWindows(), cfg.NumTrees))

	assert.Error(t, e.SetModel(EnsembleModel{Posteriors: make([][]float32, 3)}))

	bad := emptyEnsembleModel(cfg.NumTrees, cfg.NumFeatures)
	bad.Posteriors[4] = bad.Posteriors[4][:7]
	assert.Error(t, e.SetModel(bad))

	assert.NoError(t, e.SetModel(acceptAllEnsembleModel(cfg.NumTrees, cfg.NumFeatures)))
}

func TestEnsembleWritesStateAndThresholds(t *testing.T) {
	cfg := testCascadeConfig()
	grid, err := geometry.BuildGrid(cfg.gridConfig())
	require.NoError(t, err)
	offsets := geometry.BuildOffsets(grid.Windows, cfg.ImageStride, cfg.NumFeatures, cfg.NumTrees)
	state := NewState(grid.NumWindows(), cfg.NumTrees)
	e := newEnsembleClassifier(cfg, grid, offsets, state)

	frame := noiseFrame(t, 21)

	// Zero posteriors reject every window with posterior 0.
	assert.False(t, e.Filter(frame, 0))
	assert.Zero(t, state.Posteriors[0])

	require.NoError(t, e.SetModel(acceptAllEnsembleModel(cfg.NumTrees, cfg.NumFeatures)))
	assert.True(t, e.Filter(frame, 0))
	assert.InDelta(t, 1.0, float64(state.Posteriors[0]), 1e-6)
}

func TestNNClassifierSimilarity(t *testing.T) {
	cfg := testCascadeConfig()
	grid, err := geometry.BuildGrid(cfg.gridConfig())
	require.NoError(t, err)
	nn := newNNClassifier(cfg, grid)

	frame := checkerFrame(t, 20, 20, 16)
	var target geometry.Window
	found := false
	for _, w := range grid.Windows {
		if w.X == 20 && w.Y == 20 && w.W == 16 {
			target, found = w, true
			break
		}
	}
	require.True(t, found)

	idx := 0
	for i, w := range grid.Windows {
		if w == target {
			idx = i
			break
		}
	}

	// No positive exemplars: everything rejected.
	assert.False(t, nn.Filter(frame, idx))

	patch := NormalizePatch(frame, target)
	nn.SetModel(NNModel{Positive: [][]float64{patch}})

	// The exact target window has relative similarity 1.
	assert.True(t, nn.Filter(frame, idx))
}
