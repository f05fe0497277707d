package detect

import (
	"image"

	"gonum.org/v1/gonum/stat"

	"github.com/trackforge/tld/internal/geometry"
)

// Detection is one merged group of confident windows.
type Detection struct {
	Box        image.Rectangle `json:"box"`
	Confidence float32         `json:"confidence"`
	Windows    int             `json:"windows"`
}

// Clustering merges the confident-index set into distinct detections:
// windows whose pairwise overlap reaches the cutoff are grouped
// transitively, and every group is reduced to its mean box with the mean
// ensemble posterior as confidence.
type Clustering struct {
	windows []geometry.Window
	state   *State
	cutoff  float64
}

func newClustering(cfg Config, grid *geometry.Grid, state *State) *Clustering {
	return &Clustering{
		windows: grid.Windows,
		state:   state,
		cutoff:  cfg.ClusterCutoff,
	}
}

// overlap is intersection over union of two windows.
func overlap(a, b geometry.Window) float64 {
	ix := min(a.X+a.W, b.X+b.W) - max(a.X, b.X)
	iy := min(a.Y+a.H, b.Y+b.H) - max(a.Y, b.Y)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := a.W*a.H + b.W*b.H - inter
	return float64(inter) / float64(union)
}

// Cluster groups the given confident indices. The input is left untouched;
// results are ordered by the first member of each group, which keeps the
// output deterministic for a deterministic input order.
func (c *Clustering) Cluster(confident []int) []Detection {
	if len(confident) == 0 {
		return nil
	}

	// Connected components over the overlap graph: windows linked through
	// any chain of sufficient pairwise overlaps end up in one group.
	// Union by smaller root keeps every root at its group's first member,
	// so group numbering follows input order.
	parent := make([]int, len(confident))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	for i := range confident {
		for j := i + 1; j < len(confident); j++ {
			if overlap(c.windows[confident[i]], c.windows[confident[j]]) < c.cutoff {
				continue
			}
			ri, rj := find(i), find(j)
			if ri == rj {
				continue
			}
			if rj < ri {
				ri, rj = rj, ri
			}
			parent[rj] = ri
		}
	}

	group := make([]int, len(confident))
	numGroups := 0
	for i := range confident {
		if find(i) == i {
			group[i] = numGroups
			numGroups++
		} else {
			group[i] = group[find(i)]
		}
	}

	detections := make([]Detection, 0, numGroups)
	xs := make([]float64, 0, len(confident))
	ys := make([]float64, 0, len(confident))
	ws := make([]float64, 0, len(confident))
	hs := make([]float64, 0, len(confident))
	confs := make([]float64, 0, len(confident))

	for g := 0; g < numGroups; g++ {
		xs, ys, ws, hs, confs = xs[:0], ys[:0], ws[:0], hs[:0], confs[:0]
		for i, idx := range confident {
			if group[i] != g {
				continue
			}
			w := c.windows[idx]
			xs = append(xs, float64(w.X))
			ys = append(ys, float64(w.Y))
			ws = append(ws, float64(w.W))
			hs = append(hs, float64(w.H))
			confs = append(confs, float64(c.state.Posteriors[idx]))
		}

		x := int(stat.Mean(xs, nil) + 0.5)
		y := int(stat.Mean(ys, nil) + 0.5)
		w := int(stat.Mean(ws, nil) + 0.5)
		h := int(stat.Mean(hs, nil) + 0.5)
		detections = append(detections, Detection{
			Box:        image.Rect(x, y, x+w, y+h),
			Confidence: float32(stat.Mean(confs, nil)),
			Windows:    len(xs),
		})
	}

	return detections
}
