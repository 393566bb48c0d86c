package telemetry

import (
	"sync"
)

// Recorder buffers samples for consumers that cannot keep up with the loop.
//
// Publish never blocks: the ring drops its oldest entry when full, and
// subscriber channels drop the sample when their buffer is full. The control
// loop's timing is never in the hands of a telemetry consumer.
type Recorder struct {
	mu sync.Mutex

	ring  []Sample
	head  int
	count int

	subs    map[int]chan Sample
	nextSub int

	dropped uint64
}

// NewRecorder creates a recorder holding the most recent capacity samples.
func NewRecorder(capacity int) *Recorder {
	if capacity < 1 {
		capacity = 1
	}
	return &Recorder{
		ring: make([]Sample, capacity),
		subs: make(map[int]chan Sample),
	}
}

// Publish records a sample and fans it out to subscribers. Never blocks.
func (r *Recorder) Publish(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := (r.head + r.count) % len(r.ring)
	if r.count == len(r.ring) {
		// Full: overwrite the oldest.
		r.head = (r.head + 1) % len(r.ring)
		r.dropped++
		idx = (r.head + r.count - 1) % len(r.ring)
	} else {
		r.count++
	}
	r.ring[idx] = s

	for _, ch := range r.subs {
		select {
		case ch <- s:
		default:
			r.dropped++
		}
	}
}

// Subscribe returns a channel receiving future samples and a cancel func.
// A subscriber that stops draining loses samples, not the loop.
func (r *Recorder) Subscribe(buffer int) (<-chan Sample, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Sample, buffer)

	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if sub, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(sub)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

// Recent returns up to n of the most recent samples, oldest first.
func (r *Recorder) Recent(n int) []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > r.count {
		n = r.count
	}
	out := make([]Sample, 0, n)
	start := r.count - n
	for i := start; i < r.count; i++ {
		out = append(out, r.ring[(r.head+i)%len(r.ring)])
	}
	return out
}

// Dropped returns how many samples were discarded by the ring or by slow
// subscribers.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
