package socket

// Ring is a bounded FIFO of received chunks. When full, pushing discards the
// oldest chunk. It is not safe for concurrent use; sockets guard it with
// their own lock.
type Ring struct {
	buf     [][]byte
	head    int
	size    int
	dropped uint64
}

// NewRing creates a ring holding at most capacity chunks.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([][]byte, capacity)}
}

// Push appends b, dropping the oldest chunk if the ring is full. It reports
// whether a chunk was dropped.
func (r *Ring) Push(b []byte) bool {
	if r.size == len(r.buf) {
		r.buf[r.head] = b
		r.head = (r.head + 1) % len(r.buf)
		r.dropped++
		return true
	}
	r.buf[(r.head+r.size)%len(r.buf)] = b
	r.size++
	return false
}

// Pop removes and returns the oldest chunk.
func (r *Ring) Pop() ([]byte, bool) {
	if r.size == 0 {
		return nil, false
	}
	b := r.buf[r.head]
	r.buf[r.head] = nil
	r.head = (r.head + 1) % len(r.buf)
	r.size--
	return b, true
}

// Len returns the number of buffered chunks.
func (r *Ring) Len() int { return r.size }

func (r *Ring) capacity() int { return len(r.buf) }

// Dropped returns how many chunks were discarded to make room.
func (r *Ring) Dropped() uint64 { return r.dropped }

// Clear discards every buffered chunk.
func (r *Ring) Clear() {
	for i := range r.buf {
		r.buf[i] = nil
	}
	r.head = 0
	r.size = 0
}

// snapshot returns the buffered chunks, oldest first, without removing them.
func (r *Ring) snapshot() [][]byte {
	out := make([][]byte, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}
