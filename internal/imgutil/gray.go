package imgutil

import (
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
)

// Gray is a single-channel frame with an explicit row stride. The cascade
// addresses pixels through flattened stride-based offsets, so the stride is
// part of the contract, not an implementation detail.
type Gray struct {
	Pix    []uint8
	Width  int
	Height int
	Stride int
}

// NewGray allocates a zeroed frame with stride equal to width.
func NewGray(width, height int) (*Gray, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("imgutil: invalid frame size %dx%d", width, height)
	}
	return &Gray{
		Pix:    make([]uint8, width*height),
		Width:  width,
		Height: height,
		Stride: width,
	}, nil
}

// FromImage converts any image into a Gray frame. Color input is collapsed
// to luminance first; the resulting stride equals the image width.
func FromImage(img image.Image) (*Gray, error) {
	if img == nil {
		return nil, errors.New("imgutil: nil image")
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, errors.New("imgutil: empty image")
	}

	gray := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(gray, gray.Bounds(), img, bounds.Min, draw.Src)

	// image.Gray guarantees Stride >= Width; repack only when they differ
	// so Pix stays addressable as y*Stride+x with no slack rows.
	if gray.Stride == w {
		return &Gray{Pix: gray.Pix, Width: w, Height: h, Stride: w}, nil
	}

	out := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		copy(out[y*w:(y+1)*w], gray.Pix[y*gray.Stride:y*gray.Stride+w])
	}
	return &Gray{Pix: out, Width: w, Height: h, Stride: w}, nil
}

// At returns the pixel at (x, y). Bounds are not checked.
func (g *Gray) At(x, y int) uint8 {
	return g.Pix[y*g.Stride+x]
}

// SubImage copies the given region into a standalone image.Gray, used for
// patch extraction. The rectangle is clamped to the frame bounds.
func (g *Gray) SubImage(r image.Rectangle) *image.Gray {
	r = r.Intersect(image.Rect(0, 0, g.Width, g.Height))
	out := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		src := (r.Min.Y+y)*g.Stride + r.Min.X
		copy(out.Pix[y*out.Stride:y*out.Stride+r.Dx()], g.Pix[src:src+r.Dx()])
	}
	return out
}

// LoadGray reads an image from disk and converts it to a Gray frame.
func LoadGray(path string) (*Gray, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("imgutil: open %s: %w", path, err)
	}
	return FromImage(img)
}
