// queue.go is the bounded outbound queue held while the channel is not authenticated.

package transport

// DefaultQueueCapacity is the maximum number of messages held while offline.
const DefaultQueueCapacity = 1000

// Outbound is a serialized message waiting to be written.
type Outbound struct {
	// Type is the envelope type ("register", "exception").
	Type string

	// Data is the encoded envelope.
	Data []byte
}

// Queue is a fixed-capacity FIFO deque. When full, PushBack evicts the oldest
// entry. It is not safe for concurrent use; Channel guards it with its mutex.
type Queue struct {
	items []Outbound
	head  int // index of the oldest entry
	size  int
}

// NewQueue creates a queue holding at most capacity messages.
// A non-positive capacity uses DefaultQueueCapacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{items: make([]Outbound, capacity)}
}

// Cap returns the capacity.
func (q *Queue) Cap() int {
	return len(q.items)
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	return q.size
}

// PushBack appends msg, evicting the oldest message when full.
// Reports whether an eviction happened.
func (q *Queue) PushBack(msg Outbound) (evicted bool) {
	if q.size == len(q.items) {
		q.items[q.head] = Outbound{}
		q.head = (q.head + 1) % len(q.items)
		q.size--
		evicted = true
	}
	q.items[(q.head+q.size)%len(q.items)] = msg
	q.size++
	return evicted
}

// PushFront returns msg to the head of the queue, used when a flush write
// fails. If the queue filled up meanwhile, msg is the oldest entry and is
// dropped; PushFront then reports false.
func (q *Queue) PushFront(msg Outbound) bool {
	if q.size == len(q.items) {
		return false
	}
	q.head = (q.head - 1 + len(q.items)) % len(q.items)
	q.items[q.head] = msg
	q.size++
	return true
}

// PopFront removes and returns the oldest message.
func (q *Queue) PopFront() (Outbound, bool) {
	if q.size == 0 {
		return Outbound{}, false
	}
	msg := q.items[q.head]
	q.items[q.head] = Outbound{}
	q.head = (q.head + 1) % len(q.items)
	q.size--
	return msg, true
}
