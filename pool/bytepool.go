// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "sync"

// BytePool hands out fixed-size byte buffers recycled through a sync.Pool.
// Buffers from GetBuffer always have len equal to Size.
type BytePool struct {
	size int
	p    sync.Pool
}

// NewBytePool creates a pool of size-byte buffers.
func NewBytePool(size int) *BytePool {
	if size <= 0 {
		size = 1
	}
	bp := &BytePool{size: size}
	bp.p.New = func() any {
		buf := make([]byte, size)
		return &buf
	}
	return bp
}

// Size returns the length of the buffers this pool hands out.
func (b *BytePool) Size() int { return b.size }

// GetBuffer returns a buffer of exactly Size bytes.
func (b *BytePool) GetBuffer() []byte {
	return *(b.p.Get().(*[]byte))
}

// PutBuffer recycles buf. Buffers of a foreign capacity are dropped so a
// resliced or swapped buffer cannot poison the pool.
func (b *BytePool) PutBuffer(buf []byte) {
	if cap(buf) != b.size {
		return
	}
	buf = buf[:b.size]
	b.p.Put(&buf)
}
