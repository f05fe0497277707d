package detect

import (
	"image"
	"testing"

	"github.com/trackforge/tld/internal/geometry"
)

// windowAt finds the grid window with the given origin and side length.
func windowAt(t *testing.T, c *Cascade, x, y, side int) geometry.Window {
	t.Helper()
	for _, w := range c.grid.Windows {
		if w.X == x && w.Y == y && w.W == side && w.H == side {
			return w
		}
	}
	t.Fatalf("no %dx%d window at (%d,%d) in the grid", side, side, x, y)
	return geometry.Window{}
}

func imageRect(x, y, w, h int) image.Rectangle {
	return image.Rect(x, y, x+w, y+h)
}
