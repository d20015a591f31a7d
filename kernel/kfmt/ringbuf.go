package kfmt

import "io"

// ringBufferSize is the capacity of the early-boot output buffer, sized to
// hold a full 80x25 text-mode screen's worth of output. Must be a power of
// two so index wraparound can use a bitmask instead of a modulo.
const ringBufferSize = 2048

// ringBuffer buffers Printf output generated before a console/TTY sink is
// registered. Once full, it silently discards the oldest bytes rather than
// blocking, since nothing will ever drain it concurrently during boot.
type ringBuffer struct {
	data           [ringBufferSize]byte
	rIndex, wIndex int
}

// Write implements io.Writer.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.data[rb.wIndex] = b
		rb.wIndex = (rb.wIndex + 1) & (ringBufferSize - 1)
		if rb.rIndex == rb.wIndex {
			rb.rIndex = (rb.rIndex + 1) & (ringBufferSize - 1)
		}
	}
	return len(p), nil
}

// Read implements io.Reader so SetOutputSink can drain the buffer via
// io.Copy once a real sink becomes available.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	switch {
	case rb.rIndex < rb.wIndex:
		n := rb.wIndex - rb.rIndex
		if len(p) < n {
			n = len(p)
		}
		copy(p, rb.data[rb.rIndex:rb.rIndex+n])
		rb.rIndex += n
		return n, nil
	case rb.rIndex > rb.wIndex:
		n := len(rb.data) - rb.rIndex
		if len(p) < n {
			n = len(p)
		}
		copy(p, rb.data[rb.rIndex:rb.rIndex+n])
		rb.rIndex += n
		if rb.rIndex == len(rb.data) {
			rb.rIndex = 0
		}
		return n, nil
	default:
		return 0, io.EOF
	}
}
