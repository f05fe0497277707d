// Package device owns the accelerator-side mirror of the candidate window
// grid. The grid is packed once at cascade initialization into the flat
// layout the data-parallel variance stage consumes, and freed at teardown;
// per-frame passes never copy windows back and forth.
package device

import (
	"errors"
	"fmt"

	"github.com/trackforge/tld/internal/geometry"
)

// recordWidth is the packed size of one window: x, y, w, h, scaleIndex.
const recordWidth = 5

// maxWindows caps a single buffer allocation. A grid past this size means a
// misconfigured scale range, not a real workload.
const maxWindows = 1 << 26

var errTooManyWindows = errors.New("device: window grid exceeds buffer capacity")

// WindowBuffer is a device-resident copy of the window grid. It is owned by
// the cascade: allocated in Init, released in Release, reused across frames.
type WindowBuffer struct {
	data  []int32
	count int
	freed bool
}

// AllocWindows packs the window grid into a new buffer.
func AllocWindows(windows []geometry.Window) (*WindowBuffer, error) {
	if len(windows) > maxWindows {
		return nil, fmt.Errorf("%w: %d windows", errTooManyWindows, len(windows))
	}

	data := make([]int32, recordWidth*len(windows))
	for i, w := range windows {
		base := recordWidth * i
		data[base+0] = int32(w.X)
		data[base+1] = int32(w.Y)
		data[base+2] = int32(w.W)
		data[base+3] = int32(w.H)
		data[base+4] = int32(w.Scale)
	}
	return &WindowBuffer{data: data, count: len(windows)}, nil
}

// Len returns the number of windows in the buffer, zero after Free.
func (b *WindowBuffer) Len() int {
	if b == nil || b.freed {
		return 0
	}
	return b.count
}

// Window unpacks record i.
func (b *WindowBuffer) Window(i int) geometry.Window {
	base := recordWidth * i
	return geometry.Window{
		X:     int(b.data[base+0]),
		Y:     int(b.data[base+1]),
		W:     int(b.data[base+2]),
		H:     int(b.data[base+3]),
		Scale: int(b.data[base+4]),
	}
}

// Free releases the buffer. Safe to call multiple times and on nil.
func (b *WindowBuffer) Free() {
	if b == nil || b.freed {
		return
	}
	b.data = nil
	b.count = 0
	b.freed = true
}
