// Package mempool provides sized pools for the buffers the cascade touches
// on its per-window hot paths: float64 patch buffers in the nearest-neighbor
// stage and bool keep-masks in the parallel stage loop.
package mempool

import "sync"

var (
	float64Pools sync.Map // key: size class (int), value: *sync.Pool
	boolPools    sync.Map // key: size class (int), value: *sync.Pool
)

// sizeClass rounds n up to a bucket to reduce churn. Patch buffers are a few
// hundred elements, keep-masks are tens of thousands, so buckets start small
// and step by 256.
func sizeClass(n int) int {
	const step = 256
	if n <= step {
		return step
	}
	return (n + step - 1) / step * step
}

// GetFloat64 retrieves a []float64 buffer of at least n elements. The
// returned slice has length n; contents are unspecified. Return it via
// PutFloat64 when done.
func GetFloat64(n int) []float64 {
	cls := sizeClass(n)
	pAny, _ := float64Pools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]float64, cls) }})
	p := pAny.(*sync.Pool)
	buf := p.Get().([]float64)
	if cap(buf) < n {
		buf = make([]float64, cls)
	}
	return buf[:cap(buf)][:n]
}

// PutFloat64 returns a buffer to the pool. Safe on nil.
func PutFloat64(buf []float64) {
	if buf == nil {
		return
	}
	cls := sizeClass(cap(buf))
	pAny, _ := float64Pools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]float64, cls) }})
	pAny.(*sync.Pool).Put(buf[:cap(buf)]) //nolint:staticcheck
}

// GetBool retrieves a zeroed []bool buffer of at least n elements. Return it
// via PutBool when done.
func GetBool(n int) []bool {
	cls := sizeClass(n)
	pAny, _ := boolPools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]bool, cls) }})
	p := pAny.(*sync.Pool)
	buf := p.Get().([]bool)
	if cap(buf) < n {
		buf = make([]bool, cls)
	}
	buf = buf[:cap(buf)][:n]
	for i := range buf {
		buf[i] = false
	}
	return buf
}

// PutBool returns a buffer to the pool. Safe on nil.
func PutBool(buf []bool) {
	if buf == nil {
		return
	}
	cls := sizeClass(cap(buf))
	pAny, _ := boolPools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]bool, cls) }})
	pAny.(*sync.Pool).Put(buf[:cap(buf)]) //nolint:staticcheck
}
