package detect

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/trackforge/tld/internal/device"
	"github.com/trackforge/tld/internal/geometry"
	"github.com/trackforge/tld/internal/imgutil"
	"github.com/trackforge/tld/internal/mempool"
)

// ErrAlreadyInitialized is returned by Init on an initialized cascade.
// Re-initializing without Release would leak the device window buffer.
var ErrAlreadyInitialized = errors.New("detect: cascade already initialized")

// WindowFilter is the per-window stage contract shared by the ensemble and
// nearest-neighbor classifiers. Evaluations are independent across windows
// within a stage, so the orchestrator may run them in parallel.
type WindowFilter interface {
	Filter(frame *imgutil.Gray, idx int) bool
}

// PassStats summarizes the narrowing behavior of the last detection pass.
type PassStats struct {
	GridWindows       int
	VarianceSurvivors int
	EnsembleSurvivors int
	ConfidentWindows  int
	Detections        int
	Duration          time.Duration
}

// Cascade owns the window grid, the shared detection state and the device
// buffer, and sequences the filtering stages over a frame. Lifecycle is
// Uninitialized -> Initialized via Init and back via Release; Detect is a
// repeatable per-frame operation while initialized. A cascade runs at most
// one pass at a time; callers must serialize frames.
type Cascade struct {
	cfg Config

	grid    *geometry.Grid
	offsets []geometry.Offsets

	state      *State
	devWindows *device.WindowBuffer
	integral   *imgutil.Integral

	variance   GridFilter
	ensemble   *EnsembleClassifier
	nn         *NNClassifier
	clustering *Clustering

	detections []Detection
	stats      PassStats

	initialized bool
}

// NewCascade creates an uninitialized cascade. The configuration's template
// and image dimensions must be filled in before Init.
func NewCascade(cfg Config) *Cascade {
	return &Cascade{cfg: cfg}
}

// Initialized reports the lifecycle state.
func (c *Cascade) Initialized() bool { return c.initialized }

// Config returns the cascade configuration.
func (c *Cascade) Config() Config { return c.cfg }

// SetTemplateSize assigns the tracked object's template dimensions. Only
// valid before Init.
func (c *Cascade) SetTemplateSize(w, h int) {
	c.cfg.TemplateWidth = w
	c.cfg.TemplateHeight = h
}

// SetImageSize assigns the frame geometry. Only valid before Init.
func (c *Cascade) SetImageSize(w, h, stride int) {
	c.cfg.ImageWidth = w
	c.cfg.ImageHeight = h
	c.cfg.ImageStride = stride
}

// Init validates the configuration, builds the window grid and offset
// table, allocates the shared state and device buffer, and wires the stages
// together. On any failure the cascade is left uninitialized with nothing
// allocated.
func (c *Cascade) Init() error {
	if c.initialized {
		return ErrAlreadyInitialized
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	grid, err := geometry.BuildGrid(c.cfg.gridConfig())
	if err != nil {
		return fmt.Errorf("detect: building window grid: %w", err)
	}

	offsets := geometry.BuildOffsets(grid.Windows, c.cfg.ImageStride, c.cfg.NumFeatures, c.cfg.NumTrees)

	devWindows, err := device.AllocWindows(grid.Windows)
	if err != nil {
		return fmt.Errorf("detect: allocating device window buffer: %w", err)
	}

	integral, err := imgutil.NewIntegral(c.cfg.ImageWidth, c.cfg.ImageHeight, c.cfg.ImageStride)
	if err != nil {
		devWindows.Free()
		return fmt.Errorf("detect: allocating integral buffers: %w", err)
	}

	state := NewState(grid.NumWindows(), c.cfg.NumTrees)

	c.grid = grid
	c.offsets = offsets
	c.devWindows = devWindows
	c.integral = integral
	c.state = state

	workers := c.workers()
	if workers > 1 {
		c.variance = &parallelVarianceFilter{
			windows:   devWindows,
			stride:    c.cfg.ImageStride,
			state:     state,
			threshold: c.cfg.MinVariance,
			workers:   workers,
		}
	} else {
		c.variance = &serialVarianceFilter{
			offsets:   offsets,
			state:     state,
			threshold: c.cfg.MinVariance,
		}
	}
	c.ensemble = newEnsembleClassifier(c.cfg, grid, offsets, state)
	c.nn = newNNClassifier(c.cfg, grid)
	c.clustering = newClustering(c.cfg, grid, state)

	c.initialized = true
	slog.Debug("cascade initialized",
		"scales", grid.NumScales(),
		"windows", grid.NumWindows(),
		"trees", c.cfg.NumTrees,
		"features", c.cfg.NumFeatures,
		"workers", workers)
	return nil
}

// Release frees everything Init allocated and returns the cascade to the
// uninitialized state. Safe to call repeatedly and on a cascade that was
// never initialized.
func (c *Cascade) Release() {
	if !c.initialized {
		return
	}
	c.initialized = false

	c.devWindows.Free()
	c.devWindows = nil
	c.grid = nil
	c.offsets = nil
	c.integral = nil
	c.state = nil
	c.variance = nil
	c.ensemble = nil
	c.nn = nil
	c.clustering = nil
	c.detections = nil
	c.stats = PassStats{}

	c.cfg.TemplateWidth = geometry.Unset
	c.cfg.TemplateHeight = geometry.Unset

	slog.Debug("cascade released")
}

// Ensemble exposes the ensemble stage for model installation.
func (c *Cascade) Ensemble() *EnsembleClassifier { return c.ensemble }

// NN exposes the nearest-neighbor stage for model installation.
func (c *Cascade) NN() *NNClassifier { return c.nn }

// NumWindows returns the grid size, zero when uninitialized.
func (c *Cascade) NumWindows() int {
	if c.grid == nil {
		return 0
	}
	return c.grid.NumWindows()
}

// Detections returns the merged detections of the last pass.
func (c *Cascade) Detections() []Detection { return c.detections }

// Stats returns narrowing statistics of the last pass.
func (c *Cascade) Stats() PassStats { return c.stats }

// Valid reports whether the last detection pass completed.
func (c *Cascade) Valid() bool { return c.state != nil && c.state.Valid }

// Detect runs one detection pass over a frame: variance filter over the
// full grid, then the ensemble and nearest-neighbor stages over the
// shrinking surviving set, then clustering. A no-op while uninitialized.
// The pass tolerates zero survivors at any stage and never revisits a
// rejected window.
func (c *Cascade) Detect(frame *imgutil.Gray) error {
	if !c.initialized {
		return nil
	}
	start := time.Now()

	c.state.Reset()
	c.detections = nil
	c.stats = PassStats{GridWindows: c.grid.NumWindows()}

	if err := c.integral.Compute(frame); err != nil {
		return fmt.Errorf("detect: integral computation: %w", err)
	}

	surviving := c.state.SeedSurviving(c.grid.NumWindows())

	surviving, err := c.variance.FilterGrid(c.integral, surviving)
	if err != nil {
		return fmt.Errorf("detect: variance stage: %w", err)
	}
	c.stats.VarianceSurvivors = len(surviving)

	surviving = c.runStage(c.ensemble, frame, surviving)
	c.stats.EnsembleSurvivors = len(surviving)

	surviving = c.runStage(c.nn, frame, surviving)
	c.stats.ConfidentWindows = len(surviving)

	c.state.Surviving = surviving
	c.state.Confident = append(c.state.Confident, surviving...)
	c.detections = c.clustering.Cluster(c.state.Confident)
	c.stats.Detections = len(c.detections)
	c.stats.Duration = time.Since(start)

	c.state.Valid = true
	return nil
}

// runStage applies one per-window filter across the surviving set, in
// parallel chunks, and compacts the survivors preserving input order.
func (c *Cascade) runStage(filter WindowFilter, frame *imgutil.Gray, in []int) []int {
	if len(in) == 0 {
		return in
	}

	workers := c.workers()
	if workers == 1 {
		out := in[:0]
		for _, idx := range in {
			if filter.Filter(frame, idx) {
				out = append(out, idx)
			}
		}
		return out
	}

	keep := mempool.GetBool(len(in))
	defer mempool.PutBool(keep)

	var wg sync.WaitGroup
	for _, chunk := range chunkRanges(len(in), workers) {
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				keep[i] = filter.Filter(frame, in[i])
			}
		}(chunk.lo, chunk.hi)
	}
	wg.Wait()

	out := in[:0]
	for i, idx := range in {
		if keep[i] {
			out = append(out, idx)
		}
	}
	return out
}

func (c *Cascade) workers() int {
	if c.cfg.Workers > 0 {
		return c.cfg.Workers
	}
	return runtime.NumCPU()
}
