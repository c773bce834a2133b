package satlink

/*------------------------------------------------------------------
 *
 * Purpose:	Fixed capacity circular byte buffer.
 *
 * Description:	Bytes go in at the tail and come out at the head.
 *		At looks at any byte by index without removing it
 *		so a frame can be located before it is taken out.
 *
 *		The buffer never overwrites unread data.  When there is
 *		no room the overflow policy decides how much of a write
 *		is refused, and the refusal is always reported.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
)

type OverflowPolicy int

const (
	// Keep as much of the write as fits, refuse the rest.
	OverflowDropTail OverflowPolicy = iota

	// Refuse the whole write unless all of it fits.
	OverflowRejectWrite
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowDropTail:
		return "drop-tail"
	case OverflowRejectWrite:
		return "reject-write"
	default:
		return fmt.Sprintf("OverflowPolicy(%d)", int(p))
	}
}

type RingBuffer struct {
	name   string
	data   []byte
	head   int // Index of oldest byte.
	count  int
	policy OverflowPolicy

	overflows int // Total bytes refused since creation.
}

func NewRingBuffer(name string, capacity int, policy OverflowPolicy) *RingBuffer {
	Assert(capacity > 0)

	return &RingBuffer{
		name:   name,
		data:   make([]byte, capacity),
		policy: policy,
	}
}

func (rb *RingBuffer) Name() string {
	return rb.name
}

func (rb *RingBuffer) Cap() int {
	return len(rb.data)
}

func (rb *RingBuffer) Len() int {
	return rb.count
}

func (rb *RingBuffer) Free() int {
	return len(rb.data) - rb.count
}

func (rb *RingBuffer) Full() bool {
	return rb.count == len(rb.data)
}

// Number of bytes refused so far.
func (rb *RingBuffer) Overflows() int {
	return rb.overflows
}

func (rb *RingBuffer) WriteByte(b byte) error {
	if rb.Full() {
		rb.overflows++
		return fmt.Errorf("%s buffer: %w", rb.name, ErrBufferOverflow)
	}

	rb.data[(rb.head+rb.count)%len(rb.data)] = b
	rb.count++

	return nil
}

/*-------------------------------------------------------------------
 *
 * Name:        Write
 *
 * Purpose:     Append bytes at the tail.
 *
 * Returns:	Number of bytes accepted.
 *		ErrBufferOverflow (wrapped) if any were refused.
 *
 *--------------------------------------------------------------------*/

func (rb *RingBuffer) Write(p []byte) (int, error) {
	if len(p) > rb.Free() {
		if rb.policy == OverflowRejectWrite {
			rb.overflows += len(p)
			return 0, fmt.Errorf("%s buffer: %d bytes with %d free: %w", rb.name, len(p), rb.Free(), ErrBufferOverflow)
		}

		var n = rb.Free()
		rb.put(p[:n])
		rb.overflows += len(p) - n

		return n, fmt.Errorf("%s buffer: dropped %d of %d bytes: %w", rb.name, len(p)-n, len(p), ErrBufferOverflow)
	}

	rb.put(p)

	return len(p), nil
}

func (rb *RingBuffer) put(p []byte) {
	var tail = (rb.head + rb.count) % len(rb.data)
	var n = copy(rb.data[tail:], p)
	copy(rb.data, p[n:])
	rb.count += len(p)
}

// Byte at position i counting from the head.  Does not remove it.
func (rb *RingBuffer) At(i int) byte {
	Assert(i >= 0 && i < rb.count)
	return rb.data[(rb.head+i)%len(rb.data)]
}

/*-------------------------------------------------------------------
 *
 * Name:        Read
 *
 * Purpose:     Remove up to len(p) bytes from the head.
 *
 * Returns:	Number of bytes removed and copied into p.
 *
 *--------------------------------------------------------------------*/

func (rb *RingBuffer) Read(p []byte) int {
	var n = min(len(p), rb.count)

	var first = copy(p[:n], rb.data[rb.head:])
	if first < n {
		copy(p[first:n], rb.data)
	}

	rb.Discard(n)

	return n
}

// Remove n bytes from the head without looking at them.
func (rb *RingBuffer) Discard(n int) {
	n = min(n, rb.count)
	rb.head = (rb.head + n) % len(rb.data)
	rb.count -= n
	if rb.count == 0 {
		rb.head = 0
	}
}

func (rb *RingBuffer) Reset() {
	rb.head = 0
	rb.count = 0
}
