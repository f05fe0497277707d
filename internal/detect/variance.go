package detect

import (
	"sync"

	"github.com/trackforge/tld/internal/device"
	"github.com/trackforge/tld/internal/geometry"
	"github.com/trackforge/tld/internal/imgutil"
	"github.com/trackforge/tld/internal/mempool"
)

// GridFilter is the capability contract of the first cascade stage: one
// data-parallel evaluation over the whole surviving set followed by an
// index compaction. Compaction must preserve the relative order of the
// input indices so later stages see deterministic input.
type GridFilter interface {
	// FilterGrid narrows in to the windows whose intensity variance
	// reaches the threshold, writing each evaluated window's variance
	// into shared state. The returned slice reuses in's backing array.
	FilterGrid(ii *imgutil.Integral, in []int) ([]int, error)
}

// serialVarianceFilter is the host variant: a plain loop over the offset
// table. Used when the cascade runs single-worker.
type serialVarianceFilter struct {
	offsets   []geometry.Offsets
	state     *State
	threshold float64
}

func (f *serialVarianceFilter) FilterGrid(ii *imgutil.Integral, in []int) ([]int, error) {
	out := in[:0]
	for _, idx := range in {
		v := ii.Variance(f.offsets[idx])
		f.state.Variances[idx] = v
		if v >= f.threshold {
			out = append(out, idx)
		}
	}
	return out, nil
}

// parallelVarianceFilter is the accelerator-style variant: windows are read
// from the device-resident buffer and evaluated in independent chunks, then
// compacted in order on the host.
type parallelVarianceFilter struct {
	windows   *device.WindowBuffer
	stride    int
	state     *State
	threshold float64
	workers   int
}

func (f *parallelVarianceFilter) FilterGrid(ii *imgutil.Integral, in []int) ([]int, error) {
	keep := mempool.GetBool(len(in))
	defer mempool.PutBool(keep)

	var wg sync.WaitGroup
	for _, chunk := range chunkRanges(len(in), f.workers) {
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				idx := in[i]
				w := f.windows.Window(idx)
				v := ii.Variance(cornerOffsets(w, f.stride))
				f.state.Variances[idx] = v
				keep[i] = v >= f.threshold
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
	return out, nil
}

// cornerOffsets derives an offset record from a packed device window. The
// accelerator path computes corners on the fly instead of reading the host
// offset table.
func cornerOffsets(w geometry.Window, stride int) geometry.Offsets {
	return geometry.Offsets{
		TopLeft:     (w.Y-1)*stride + w.X - 1,
		BottomLeft:  (w.Y+w.H-1)*stride + w.X - 1,
		TopRight:    (w.Y-1)*stride + w.X + w.W - 1,
		BottomRight: (w.Y+w.H-1)*stride + w.X + w.W - 1,
		FeatureBase: 0,
		Area:        w.W * w.H,
	}
}

type indexRange struct{ lo, hi int }

// chunkRanges splits [0, n) into at most workers contiguous ranges.
func chunkRanges(n, workers int) []indexRange {
	if n == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	ranges := make([]indexRange, 0, workers)
	size := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += size {
		hi := min(lo+size, n)
		ranges = append(ranges, indexRange{lo: lo, hi: hi})
	}
	return ranges
}
