package resource

import (
	"errors"
	"io"
	"sync"
)

// BufferSize is the initial scratch buffer size and the amount it grows by
const BufferSize = 1 << 12

// BufferPool hands out growable scratch buffers for draining source
// streams. A buffer must be returned with Put once its contents have been
// copied out.
type BufferPool struct {
	pool sync.Pool
}

// NewBufferPool creates a pool of BufferSize scratch buffers
func NewBufferPool() *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() any {
				return &Buffer{buf: make([]byte, BufferSize)}
			},
		},
	}
}

// Get returns a scratch buffer
func (p *BufferPool) Get() *Buffer {
	return p.pool.Get().(*Buffer)
}

// Put returns b to the pool
func (p *BufferPool) Put(b *Buffer) {
	if b == nil {
		return
	}
	p.pool.Put(b)
}

// ReadAll drains r into a pooled buffer and returns a copy of the bytes
func (p *BufferPool) ReadAll(r io.Reader) ([]byte, error) {
	b := p.Get()
	defer p.Put(b)

	data, err := b.Fill(r)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Buffer is a reusable scratch area
type Buffer struct {
	buf []byte
}

// Cap returns the current capacity of the buffer
func (b *Buffer) Cap() int {
	return len(b.buf)
}

// Fill reads r to EOF and returns a view of the bytes read. The view is only
// valid until the buffer is reused.
func (b *Buffer) Fill(r io.Reader) ([]byte, error) {
	n := 0
	for {
		if n == len(b.buf) {
			grown := make([]byte, len(b.buf)+BufferSize)
			copy(grown, b.buf)
			b.buf = grown
		}
		read, err := r.Read(b.buf[n:])
		n += read
		if errors.Is(err, io.EOF) {
			return b.buf[:n], nil
		}
		if err != nil {
			return nil, err
		}
	}
}
