package geometry

// Offsets caches everything a stage needs to evaluate one window without
// re-deriving geometry: the four integral-image corner indices, the start of
// the window's scale in the shared feature table, and the window area.
//
// Corner indices are flattened row-major positions into an integral image
// with the given stride. They are shifted by -1 in both axes to pair with
// the one-pixel scan-area inset, so a window sum is
//
//	ii[BottomRight] - ii[BottomLeft] - ii[TopRight] + ii[TopLeft]
type Offsets struct {
	TopLeft     int
	BottomLeft  int
	TopRight    int
	BottomRight int
	FeatureBase int
	Area        int
}

func sub2idx(x, y, stride int) int { return y*stride + x }

// BuildOffsets computes one Offsets record per window, in window order.
// It is a pure function of the window sequence and the integral-image row
// stride, and must be rebuilt whenever either changes. FeatureBase points at
// the per-scale block of a feature table laid out as
// scale -> tree -> feature pairs.
func BuildOffsets(windows []Window, stride, numFeatures, numTrees int) []Offsets {
	offsets := make([]Offsets, len(windows))
	for i, w := range windows {
		offsets[i] = Offsets{
			TopLeft:     sub2idx(w.X-1, w.Y-1, stride),
			BottomLeft:  sub2idx(w.X-1, w.Y+w.H-1, stride),
			TopRight:    sub2idx(w.X+w.W-1, w.Y-1, stride),
			BottomRight: sub2idx(w.X+w.W-1, w.Y+w.H-1, stride),
			FeatureBase: w.Scale * 2 * numFeatures * numTrees,
			Area:        w.W * w.H,
		}
	}
	return offsets
}
