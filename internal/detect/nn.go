package detect

import (
	"image"

	xdraw "golang.org/x/image/draw"
	"gonum.org/v1/gonum/floats"

	"github.com/trackforge/tld/internal/geometry"
	"github.com/trackforge/tld/internal/imgutil"
	"github.com/trackforge/tld/internal/mempool"
)

// patchSide is the edge length of the normalized patch the nearest-neighbor
// stage compares against its exemplars.
const patchSide = 15

const patchLen = patchSide * patchSide

// NNModel holds the exemplar patches of the nearest-neighbor stage. Patches
// are zero-mean, patchSide x patchSide, row-major. The model is maintained
// by an external learner; this stage only scores against it.
type NNModel struct {
	Positive [][]float64
	Negative [][]float64
}

// NNClassifier is the final and most expensive cascade stage. It resamples
// each window to a normalized patch and accepts when the patch's relative
// similarity to the positive exemplars exceeds theta.
type NNClassifier struct {
	windows []geometry.Window
	theta   float64
	model   NNModel
}

func newNNClassifier(cfg Config, grid *geometry.Grid) *NNClassifier {
	return &NNClassifier{
		windows: grid.Windows,
		theta:   cfg.NNTheta,
	}
}

// SetModel installs the exemplar sets.
func (n *NNClassifier) SetModel(m NNModel) {
	n.model = m
}

// NormalizePatch resamples a window region to patchSide x patchSide and
// subtracts the mean, returning a pooled buffer the caller must release
// with mempool.PutFloat64.
func NormalizePatch(frame *imgutil.Gray, w geometry.Window) []float64 {
	src := frame.SubImage(image.Rect(w.X, w.Y, w.X+w.W, w.Y+w.H))
	dst := image.NewGray(image.Rect(0, 0, patchSide, patchSide))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	patch := mempool.GetFloat64(patchLen)
	var sum float64
	for y := 0; y < patchSide; y++ {
		for x := 0; x < patchSide; x++ {
			v := float64(dst.Pix[y*dst.Stride+x])
			patch[y*patchSide+x] = v
			sum += v
		}
	}
	mean := sum / patchLen
	for i := range patch {
		patch[i] -= mean
	}
	return patch
}

// ncc returns the normalized cross correlation of two zero-mean patches,
// mapped from [-1, 1] to [0, 1].
func ncc(a, b []float64) float64 {
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0.5
	}
	return (floats.Dot(a, b)/(na*nb) + 1) / 2
}

func maxNCC(patch []float64, exemplars [][]float64) float64 {
	best := 0.0
	for _, ex := range exemplars {
		if c := ncc(patch, ex); c > best {
			best = c
		}
	}
	return best
}

// relativeSimilarity scores a patch against the model: the negative
// distance's share of the total distance to both exemplar sets.
func (n *NNClassifier) relativeSimilarity(patch []float64) float64 {
	if len(n.model.Positive) == 0 {
		return 0
	}
	dPos := 1 - maxNCC(patch, n.model.Positive)
	dNeg := 1 - maxNCC(patch, n.model.Negative)
	if dPos+dNeg == 0 {
		return 0
	}
	return dNeg / (dPos + dNeg)
}

// Filter evaluates one window against the exemplar model.
func (n *NNClassifier) Filter(frame *imgutil.Gray, idx int) bool {
	patch := NormalizePatch(frame, n.windows[idx])
	defer mempool.PutFloat64(patch)
	return n.relativeSimilarity(patch) > n.theta
}
