package domain

import "sync"

// LatencyRing is a fixed-size ring buffer of millisecond latency samples.
// It is safe for concurrent use.
type LatencyRing struct {
	mu      sync.Mutex
	samples []int64
	next    int
	full    bool
}

// NewLatencyRing creates a ring holding up to size samples.
func NewLatencyRing(size int) *LatencyRing {
	if size <= 0 {
		size = 100
	}
	return &LatencyRing{samples: make([]int64, size)}
}

// Add records a sample, evicting the oldest when full.
func (r *LatencyRing) Add(ms int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[r.next] = ms
	r.next++
	if r.next == len(r.samples) {
		r.next = 0
		r.full = true
	}
}

// Values returns the recorded samples, oldest first.
func (r *LatencyRing) Values() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]int64, r.next)
		copy(out, r.samples[:r.next])
		return out
	}
	out := make([]int64, 0, len(r.samples))
	out = append(out, r.samples[r.next:]...)
	out = append(out, r.samples[:r.next]...)
	return out
}

// Average returns the mean of the recorded samples, or 0 when empty.
func (r *LatencyRing) Average() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.next
	if r.full {
		n = len(r.samples)
	}
	if n == 0 {
		return 0
	}
	var sum int64
	for _, s := range r.samples[:n] {
		sum += s
	}
	if r.full {
		sum = 0
		for _, s := range r.samples {
			sum += s
		}
	}
	return float64(sum) / float64(n)
}
