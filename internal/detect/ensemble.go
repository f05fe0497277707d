package detect

import (
	"fmt"
	"math/rand"

	"github.com/trackforge/tld/internal/geometry"
	"github.com/trackforge/tld/internal/imgutil"
)

// EnsembleModel holds the trained leaf posteriors of the fern ensemble, one
// table of 2^numFeatures entries per tree with values in [0, 1]. The model
// is produced by an external learner; this package only evaluates it.
type EnsembleModel struct {
	Posteriors [][]float32
}

// EnsembleClassifier is the second cascade stage: a fixed set of randomized
// ferns, each reading numFeatures pixel comparisons at scale-dependent
// positions inside the window. A window is accepted when the mean leaf
// posterior across trees exceeds 0.5.
type EnsembleClassifier struct {
	numTrees    int
	numFeatures int
	stride      int

	windows []geometry.Window
	offsets []geometry.Offsets
	state   *State

	// featureOffsets holds two flattened pixel positions (relative to the
	// window origin) per scale, tree and feature. A window's Offsets
	// record selects its scale's block via FeatureBase.
	featureOffsets []int

	model EnsembleModel
}

// newEnsembleClassifier builds the stage for the given grid, generating the
// randomized comparison geometry from the configured seed so a cascade is
// reproducible.
func newEnsembleClassifier(cfg Config, grid *geometry.Grid, offsets []geometry.Offsets, state *State) *EnsembleClassifier {
	rng := rand.New(rand.NewSource(cfg.Seed))

	featureOffsets := make([]int, grid.NumScales()*2*cfg.NumFeatures*cfg.NumTrees)
	for scaleIndex, s := range grid.Scales {
		base := scaleIndex * 2 * cfg.NumFeatures * cfg.NumTrees
		for t := 0; t < cfg.NumTrees; t++ {
			for f := 0; f < cfg.NumFeatures; f++ {
				i := base + (t*cfg.NumFeatures+f)*2
				featureOffsets[i] = randomPixel(rng, s, cfg.ImageStride)
				featureOffsets[i+1] = randomPixel(rng, s, cfg.ImageStride)
			}
		}
	}

	return &EnsembleClassifier{
		numTrees:       cfg.NumTrees,
		numFeatures:    cfg.NumFeatures,
		stride:         cfg.ImageStride,
		windows:        grid.Windows,
		offsets:        offsets,
		state:          state,
		featureOffsets: featureOffsets,
		model:          emptyEnsembleModel(cfg.NumTrees, cfg.NumFeatures),
	}
}

func randomPixel(rng *rand.Rand, s geometry.Scale, stride int) int {
	x := rng.Intn(s.Width)
	y := rng.Intn(s.Height)
	return y*stride + x
}

func emptyEnsembleModel(numTrees, numFeatures int) EnsembleModel {
	posteriors := make([][]float32, numTrees)
	for t := range posteriors {
		posteriors[t] = make([]float32, 1<<numFeatures)
	}
	return EnsembleModel{Posteriors: posteriors}
}

// SetModel installs trained leaf posteriors. The table shape must match the
// configured ensemble.
func (e *EnsembleClassifier) SetModel(m EnsembleModel) error {
	if len(m.Posteriors) != e.numTrees {
		return fmt.Errorf("detect: model has %d trees, ensemble expects %d", len(m.Posteriors), e.numTrees)
	}
	for t, table := range m.Posteriors {
		if len(table) != 1<<e.numFeatures {
			return fmt.Errorf("detect: tree %d has %d leaves, expected %d", t, len(table), 1<<e.numFeatures)
		}
	}
	e.model = m
	return nil
}

// leaf computes the fern leaf index of one tree for one window: each
// feature contributes one bit from a pixel comparison.
func (e *EnsembleClassifier) leaf(frame *imgutil.Gray, origin, featureBase, tree int) int {
	index := 0
	base := featureBase + tree*e.numFeatures*2
	for f := 0; f < e.numFeatures; f++ {
		index <<= 1
		p0 := frame.Pix[origin+e.featureOffsets[base+2*f]]
		p1 := frame.Pix[origin+e.featureOffsets[base+2*f+1]]
		if p0 > p1 {
			index |= 1
		}
	}
	return index
}

// Filter evaluates one window, records its feature vector and posterior in
// shared state, and reports acceptance.
func (e *EnsembleClassifier) Filter(frame *imgutil.Gray, idx int) bool {
	w := e.windows[idx]
	origin := w.Y*e.stride + w.X
	featureBase := e.offsets[idx].FeatureBase

	var conf float32
	for t := 0; t < e.numTrees; t++ {
		l := e.leaf(frame, origin, featureBase, t)
		e.state.FeatureVectors[idx*e.numTrees+t] = l
		conf += e.model.Posteriors[t][l]
	}
	conf /= float32(e.numTrees)
	e.state.Posteriors[idx] = conf

	return conf > 0.5
}
