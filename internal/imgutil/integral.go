package imgutil

import (
	"fmt"

	"github.com/trackforge/tld/internal/geometry"
)

// Integral holds the summed-area tables of a frame: plain pixel sums and
// squared-pixel sums, both flattened row-major with the frame's stride.
// Together they give the mean and variance of any rectangle from four
// corner lookups each.
//
// The buffers are allocated once and reused across frames via Compute.
type Integral struct {
	Sum    []uint64
	SqSum  []uint64
	Width  int
	Height int
	Stride int
}

// NewIntegral allocates integral buffers for frames of the given geometry.
func NewIntegral(width, height, stride int) (*Integral, error) {
	if width <= 0 || height <= 0 || stride < width {
		return nil, fmt.Errorf("imgutil: invalid integral geometry %dx%d stride %d", width, height, stride)
	}
	return &Integral{
		Sum:    make([]uint64, stride*height),
		SqSum:  make([]uint64, stride*height),
		Width:  width,
		Height: height,
		Stride: stride,
	}, nil
}

// Compute fills both tables from the frame. The frame must match the
// geometry the Integral was allocated for.
func (ii *Integral) Compute(frame *Gray) error {
	if frame.Width != ii.Width || frame.Height != ii.Height || frame.Stride != ii.Stride {
		return fmt.Errorf("imgutil: frame %dx%d stride %d does not match integral %dx%d stride %d",
			frame.Width, frame.Height, frame.Stride, ii.Width, ii.Height, ii.Stride)
	}

	for y := 0; y < ii.Height; y++ {
		var rowSum, rowSq uint64
		row := y * ii.Stride
		for x := 0; x < ii.Width; x++ {
			p := uint64(frame.Pix[row+x])
			rowSum += p
			rowSq += p * p
			if y == 0 {
				ii.Sum[row+x] = rowSum
				ii.SqSum[row+x] = rowSq
			} else {
				ii.Sum[row+x] = ii.Sum[row-ii.Stride+x] + rowSum
				ii.SqSum[row+x] = ii.SqSum[row-ii.Stride+x] + rowSq
			}
		}
	}
	return nil
}

// Moments returns the pixel sum and squared-pixel sum of the window
// described by a precomputed offset record.
func (ii *Integral) Moments(o geometry.Offsets) (sum, sqSum int64) {
	sum = int64(ii.Sum[o.BottomRight]) - int64(ii.Sum[o.BottomLeft]) -
		int64(ii.Sum[o.TopRight]) + int64(ii.Sum[o.TopLeft])
	sqSum = int64(ii.SqSum[o.BottomRight]) - int64(ii.SqSum[o.BottomLeft]) -
		int64(ii.SqSum[o.TopRight]) + int64(ii.SqSum[o.TopLeft])
	return sum, sqSum
}

// Variance returns the intensity variance of the window described by a
// precomputed offset record.
func (ii *Integral) Variance(o geometry.Offsets) float64 {
	sum, sqSum := ii.Moments(o)
	mean := float64(sum) / float64(o.Area)
	return float64(sqSum)/float64(o.Area) - mean*mean
}
