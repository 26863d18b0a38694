package engine

import "sync"

const DefaultQueueCapacity = 100

// Queue is a bounded FIFO of encoded messages waiting for the transport to
// become writable. Pushing onto a full queue drops the oldest message.
type Queue struct {
	mu       sync.Mutex
	items    [][]byte
	capacity int
	dropped  uint64

	ready chan struct{}
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}

	return &Queue{
		items:    make([][]byte, 0, capacity),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// Push appends the message and reports whether an older message had to be dropped to make room.
func (queue *Queue) Push(msg []byte) bool {
	queue.mu.Lock()

	var dropped bool

	if len(queue.items) == queue.capacity {
		queue.items[0] = nil
		queue.items = queue.items[1:]
		queue.dropped++
		dropped = true
	}

	queue.items = append(queue.items, msg)
	queue.mu.Unlock()

	// Wake up the drainer, a pending wake-up is as good as a new one
	select {
	case queue.ready <- struct{}{}:
	default:
	}

	return dropped
}

// Drain removes and returns everything queued so far.
func (queue *Queue) Drain() [][]byte {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	if len(queue.items) == 0 {
		return nil
	}

	items := queue.items
	queue.items = make([][]byte, 0, queue.capacity)

	return items
}

// Ready fires after a Push.
func (queue *Queue) Ready() <-chan struct{} {
	return queue.ready
}

func (queue *Queue) Len() int {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	return len(queue.items)
}

func (queue *Queue) Dropped() uint64 {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	return queue.dropped
}
