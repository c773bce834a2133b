package satlink

/*------------------------------------------------------------------
 *
 * Purpose:   	Transmit queue - hold encoded frames for transmission until the channel is clear.
 *
 * Description:	Producers of frames to be transmitted call Append and then
 *		go merrily on their way, unconcerned about when the frame might
 *		actually get transmitted.
 *
 *		The pipeline removes frames from the queue and transmits them
 *		when the channel arbiter says so.
 *
 *		We have different timing rules for different types of
 *		frames so they are put into different queues.
 *
 *		High Priority -
 *
 *			Replies to the ground station go out first.
 *
 *		Low Priority -
 *
 *			Bulk data from the host.
 *
 *		Every slot is allocated when the queue is created, big enough
 *		for the largest encoded frame, and reused.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"sync"
)

const TQ_NUM_PRIO = 2 /* Number of priorities. */

const TQ_PRIO_0_HI = 0
const TQ_PRIO_1_LO = 1

const DEFAULT_TQ_SLOTS = 8 /* Per priority. */

type tqSlot struct {
	data [IL2P_MAX_ENCODED_SIZE]byte
	len  int
}

type tqRing struct {
	slots []tqSlot
	head  int
	count int
	bytes int
}

type TransmitQueue struct {
	mu    sync.Mutex /* Critical section for updating queues. */
	rings [TQ_NUM_PRIO]tqRing
}

func NewTransmitQueue(slotsPerPrio int) *TransmitQueue {
	Assert(slotsPerPrio > 0)

	var q = new(TransmitQueue)
	for p := range q.rings {
		q.rings[p].slots = make([]tqSlot, slotsPerPrio)
	}
	return q
}

/*-------------------------------------------------------------------
 *
 * Name:        Append
 *
 * Purpose:     Add an encoded frame to the end of a queue.
 *
 * Inputs:	prio	- Priority, use TQ_PRIO_0_HI for replies
 *			  and TQ_PRIO_1_LO for everything else.
 *
 *		frame	- Encoded frame.  It is copied.
 *
 * Returns:	ErrBufferOverflow if there is no free slot.
 *
 *--------------------------------------------------------------------*/

func (q *TransmitQueue) Append(prio int, frame []byte) error {
	if prio < 0 || prio >= TQ_NUM_PRIO {
		return fmt.Errorf("transmit queue priority %d is not valid", prio)
	}
	if len(frame) > IL2P_MAX_ENCODED_SIZE {
		return fmt.Errorf("%d byte frame: %w", len(frame), ErrPayloadTooLarge)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	var r = &q.rings[prio]
	if r.count == len(r.slots) {
		return fmt.Errorf("transmit queue %s full: %w", prioName(prio), ErrBufferOverflow)
	}

	var s = &r.slots[(r.head+r.count)%len(r.slots)]
	s.len = copy(s.data[:], frame)
	r.count++
	r.bytes += s.len

	return nil
}

// Next frame to send, high priority first, without removing it.
// Valid until it is removed.  nil if nothing is queued.

func (q *TransmitQueue) Peek() []byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	for p := range q.rings {
		var r = &q.rings[p]
		if r.count > 0 {
			var s = &r.slots[r.head]
			return s.data[:s.len]
		}
	}
	return nil
}

// Remove the frame Peek returned.
func (q *TransmitQueue) Remove() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for p := range q.rings {
		var r = &q.rings[p]
		if r.count > 0 {
			r.bytes -= r.slots[r.head].len
			r.head = (r.head + 1) % len(r.slots)
			r.count--
			return
		}
	}
}

// Number of frames queued at one priority, or all of them for prio < 0.
func (q *TransmitQueue) Count(prio int) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if prio >= 0 {
		return q.rings[prio].count
	}
	return q.rings[TQ_PRIO_0_HI].count + q.rings[TQ_PRIO_1_LO].count
}

// Total encoded bytes waiting.
func (q *TransmitQueue) Bytes() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.rings[TQ_PRIO_0_HI].bytes + q.rings[TQ_PRIO_1_LO].bytes
}

// Full reports whether Append at this priority would fail.
func (q *TransmitQueue) Full(prio int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	var r = &q.rings[prio]
	return r.count == len(r.slots)
}

func (q *TransmitQueue) IsEmpty() bool {
	return q.Count(-1) == 0
}

func prioName(prio int) string {
	return IfThenElse(prio == TQ_PRIO_0_HI, "high", "low")
}
