package imgutil

import (
	"image"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackforge/tld/internal/geometry"
)

func randomFrame(t *testing.T, w, h int, seed int64) *Gray {
	t.Helper()
	frame, err := NewGray(w, h)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(seed))
	for i := range frame.Pix {
		frame.Pix[i] = uint8(rng.Intn(256))
	}
	return frame
}

// bruteMoments sums a window directly from the pixel buffer.
func bruteMoments(frame *Gray, x, y, w, h int) (sum, sqSum int64) {
	for yy := y; yy < y+h; yy++ {
		for xx := x; xx < x+w; xx++ {
			p := int64(frame.At(xx, yy))
			sum += p
			sqSum += p * p
		}
	}
	return sum, sqSum
}

func TestIntegralMomentsMatchBruteForce(t *testing.T) {
	frame := randomFrame(t, 48, 36, 1)
	ii, err := NewIntegral(frame.Width, frame.Height, frame.Stride)
	require.NoError(t, err)
	require.NoError(t, ii.Compute(frame))

	windows := []geometry.Window{
		{X: 1, Y: 1, W: 10, H: 10, Scale: 0},
		{X: 5, Y: 7, W: 20, H: 12, Scale: 0},
		{X: 30, Y: 20, W: 17, H: 15, Scale: 0},
		{X: 1, Y: 1, W: 46, H: 34, Scale: 0},
	}
	offsets := geometry.BuildOffsets(windows, frame.Stride, 10, 13)

	for i, w := range windows {
		wantSum, wantSq := bruteMoments(frame, w.X, w.Y, w.W, w.H)
		gotSum, gotSq := ii.Moments(offsets[i])
		assert.Equal(t, wantSum, gotSum, "window %d sum", i)
		assert.Equal(t, wantSq, gotSq, "window %d squared sum", i)
	}
}

func TestIntegralVariance(t *testing.T) {
	frame := randomFrame(t, 32, 32, 2)
	ii, err := NewIntegral(frame.Width, frame.Height, frame.Stride)
	require.NoError(t, err)
	require.NoError(t, ii.Compute(frame))

	win := []geometry.Window{{X: 3, Y: 4, W: 16, H: 12, Scale: 0}}
	off := geometry.BuildOffsets(win, frame.Stride, 10, 13)[0]

	sum, sqSum := bruteMoments(frame, 3, 4, 16, 12)
	area := float64(16 * 12)
	mean := float64(sum) / area
	want := float64(sqSum)/area - mean*mean

	assert.InDelta(t, want, ii.Variance(off), 1e-9)
}

func TestIntegralVariance_FlatFrameIsZero(t *testing.T) {
	frame, err := NewGray(20, 20)
	require.NoError(t, err)
	for i := range frame.Pix {
		frame.Pix[i] = 127
	}
	ii, err := NewIntegral(20, 20, 20)
	require.NoError(t, err)
	require.NoError(t, ii.Compute(frame))

	win := []geometry.Window{{X: 2, Y: 2, W: 10, H: 10, Scale: 0}}
	off := geometry.BuildOffsets(win, 20, 10, 13)[0]
	assert.InDelta(t, 0.0, ii.Variance(off), 1e-9)
}

func TestIntegralRejectsMismatchedFrame(t *testing.T) {
	frame := randomFrame(t, 16, 16, 3)
	ii, err := NewIntegral(32, 32, 32)
	require.NoError(t, err)
	assert.Error(t, ii.Compute(frame))
}

func TestFromImageConvertsColor(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 4))
	for i := range src.Pix {
		src.Pix[i] = 200
	}
	frame, err := FromImage(src)
	require.NoError(t, err)
	assert.Equal(t, 8, frame.Width)
	assert.Equal(t, 4, frame.Height)
	assert.Equal(t, 8, frame.Stride)
	assert.Len(t, frame.Pix, 32)
}

func TestSubImageCopiesRegion(t *testing.T) {
	frame := randomFrame(t, 24, 24, 4)
	sub := frame.SubImage(image.Rect(5, 6, 15, 18))
	require.Equal(t, 10, sub.Bounds().Dx())
	require.Equal(t, 12, sub.Bounds().Dy())
	for y := 0; y < 12; y++ {
		for x := 0; x < 10; x++ {
			assert.Equal(t, frame.At(5+x, 6+y), sub.GrayAt(x, y).Y)
		}
	}
}
