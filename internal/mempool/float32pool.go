// Package mempool pools float32 tensor buffers for the recognition hot path.
package mempool

import (
	"sync"
)

// step is the bucket granularity. Line strips resize to a fixed height with
// padded widths, so buffer sizes cluster into few buckets.
const step = 4096

var pools sync.Map // key: size class (int), value: *sync.Pool

// sizeClass rounds n up to the next bucket boundary.
func sizeClass(n int) int {
	if n <= step {
		return step
	}
	r := (n + step - 1) / step
	return r * step
}

// GetFloat32 retrieves a []float32 buffer of length n from the pool.
// The caller must return it via PutFloat32 when done.
func GetFloat32(n int) []float32 {
	cls := sizeClass(n)
	pAny, _ := pools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]float32, cls) }})
	p, ok := pAny.(*sync.Pool)
	if !ok {
		return make([]float32, n)
	}
	buf, ok := p.Get().([]float32)
	if !ok || cap(buf) < n {
		buf = make([]float32, cls)
	}
	return buf[:n]
}

// PutFloat32 returns a buffer to the pool. Safe to pass nil.
func PutFloat32(buf []float32) {
	if buf == nil {
		return
	}
	cls := sizeClass(cap(buf))
	if cls != cap(buf) {
		// Odd-sized buffer from elsewhere, let the GC have it.
		return
	}
	pAny, _ := pools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]float32, cls) }})
	if p, ok := pAny.(*sync.Pool); ok {
		p.Put(buf[:cap(buf)]) //nolint:staticcheck // SA6002: slice header allocation is acceptable here
	}
}
