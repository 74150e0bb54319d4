package messages

import (
	"sync"
	"sync/atomic"

	"game-overlay/src/desktop"
)

// Frame is a pushed BGRA pixel buffer. Its memory returns to the pool on the
// first Release; later calls do nothing.
type Frame struct {
	Width  int
	Height int
	Pix    []byte

	pool     *FramePool
	released atomic.Bool
}

// Release hands the pixel memory back to the pool exactly once.
func (f *Frame) Release() {
	if f == nil || !f.released.CompareAndSwap(false, true) {
		return
	}
	if f.pool != nil {
		f.pool.put(f.Pix)
	}
	f.Pix = nil
}

// Released reports whether Release has run.
func (f *Frame) Released() bool { return f.released.Load() }

// FramePool recycles frame pixel buffers between the worker and the overlays context.
type FramePool struct {
	buffers     sync.Pool
	outstanding atomic.Int64
}

// NewFramePool returns an empty pool.
func NewFramePool() *FramePool {
	return &FramePool{}
}

// Get returns a frame with room for width*height pixels.
func (p *FramePool) Get(width, height int) *Frame {
	need := width * height * desktop.BytesPerPixel
	var pix []byte
	if v, ok := p.buffers.Get().(*[]byte); ok && cap(*v) >= need {
		pix = (*v)[:need]
	} else {
		pix = make([]byte, need)
	}
	p.outstanding.Add(1)
	return &Frame{Width: width, Height: height, Pix: pix, pool: p}
}

func (p *FramePool) put(pix []byte) {
	p.outstanding.Add(-1)
	pix = pix[:0]
	p.buffers.Put(&pix)
}

// Outstanding is the number of frames handed out and not yet released.
func (p *FramePool) Outstanding() int64 { return p.outstanding.Load() }
