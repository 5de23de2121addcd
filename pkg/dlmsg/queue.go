package dlmsg

import "container/list"

// QueueStats counts enqueue/send activity per class, mirroring the
// counters a host uses to judge fairness across the three message
// groups.
type QueueStats struct {
	BasicEnqueued     uint64
	ControlEnqueued   uint64
	UartEnqueued      uint64
	BasicSent         uint64
	ControlSent       uint64
	UartSent          uint64
	UartMultiDwordMsgs uint64
}

// Queue multiplexes Basic, Control and UART messages onto a single DWord
// stream. It round-robins across the three per-class FIFOs, except while a
// multi-DWord UartStreamTransport is being drained: once its header DWord
// is popped, every subsequent Pop returns that message's remaining payload
// DWords back to back before the round-robin resumes, so a transport
// message is never interleaved with anything else on the wire.
//
// The round-robin cursor is retargeted whenever a message arrives on an
// otherwise-idle queue, so whichever class broke the idle period is served
// first: an enqueue into a running queue never jumps the line, but one
// that wakes an empty queue does.
type Queue struct {
	fifos  [3]*list.List // indexed by Group-1 (Basic, Control, Uart)
	next   int           // next fifo to poll, round-robin cursor
	locked [][4]byte     // remaining DWords of an in-flight UartStreamTransport
	lockedGroup int
	stats  QueueStats
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	q := &Queue{}
	for i := range q.fifos {
		q.fifos[i] = list.New()
	}
	return q
}

// Stats returns a snapshot of the queue's counters.
func (q *Queue) Stats() QueueStats { return q.stats }

// ResetStats zeroes the queue's counters without otherwise disturbing
// queued or in-flight messages.
func (q *Queue) ResetStats() { q.stats = QueueStats{} }

func groupIndex(g Group) int {
	switch g {
	case GroupBasic:
		return 0
	case GroupControl:
		return 1
	case GroupUart:
		return 2
	default:
		return -1
	}
}

// Enqueue adds msg to its class's FIFO. If the queue was idle, the
// round-robin cursor is retargeted to msg's class so it is served first.
func (q *Queue) Enqueue(msg Message) {
	idx := groupIndex(GroupOf(msg))
	wasIdle := q.Empty()
	q.fifos[idx].PushBack(msg)
	if wasIdle {
		q.next = idx
	}
	switch idx {
	case 0:
		q.stats.BasicEnqueued++
	case 1:
		q.stats.ControlEnqueued++
	case 2:
		q.stats.UartEnqueued++
	}
}

// Empty reports whether every FIFO, and the in-flight transport lock, are
// empty.
func (q *Queue) Empty() bool {
	if len(q.locked) > 0 {
		return false
	}
	for _, f := range q.fifos {
		if f.Len() > 0 {
			return false
		}
	}
	return true
}

// Pop returns the next DWord to transmit and true, or false if the queue
// is empty. Callers drain one DWord at a time; Pop internally tracks
// multi-DWord UartStreamTransport messages so the caller never needs to
// know a message spans more than one DWord.
func (q *Queue) Pop() ([4]byte, bool) {
	if len(q.locked) > 0 {
		dw := q.locked[0]
		q.locked = q.locked[1:]
		q.bumpSent(q.lockedGroup)
		return dw, true
	}
	for tries := 0; tries < len(q.fifos); tries++ {
		idx := q.next
		q.next = (q.next + 1) % len(q.fifos)
		f := q.fifos[idx]
		elem := f.Front()
		if elem == nil {
			continue
		}
		f.Remove(elem)
		msg := elem.Value.(Message)
		dwords, err := EncodeMessage(msg)
		if err != nil || len(dwords) == 0 {
			continue
		}
		if len(dwords) > 1 {
			q.locked = dwords[1:]
			q.lockedGroup = idx
			q.stats.UartMultiDwordMsgs++
		}
		q.bumpSent(idx)
		return dwords[0], true
	}
	return [4]byte{}, false
}

func (q *Queue) bumpSent(idx int) {
	switch idx {
	case 0:
		q.stats.BasicSent++
	case 1:
		q.stats.ControlSent++
	case 2:
		q.stats.UartSent++
	}
}

// Len returns the total number of queued messages across all three
// classes (the in-flight transport lock is not a queued message and is
// not counted).
func (q *Queue) Len() int {
	n := 0
	for _, f := range q.fifos {
		n += f.Len()
	}
	return n
}
