package audio

// Ring is a fixed-capacity rolling buffer of raw samples. It always holds the
// most recent Cap() samples pushed into it; overflow silently evicts the
// oldest samples. Owned by the audio loop alone - not safe for concurrent use.
type Ring struct {
	data  []int16
	pos   int
	count int
}

// NewRing creates a rolling buffer holding capacity samples.
func NewRing(capacity int) *Ring {
	return &Ring{data: make([]int16, capacity)}
}

// Push appends samples, evicting the oldest beyond capacity.
func (r *Ring) Push(samples []int16) {
	size := len(r.data)
	if len(samples) >= size {
		copy(r.data, samples[len(samples)-size:])
		r.pos = 0
		r.count = size
		return
	}
	n := copy(r.data[r.pos:], samples)
	if n < len(samples) {
		copy(r.data, samples[n:])
	}
	r.pos = (r.pos + len(samples)) % size
	r.count += len(samples)
	if r.count > size {
		r.count = size
	}
}

// Snapshot returns a copy of the buffered samples, oldest first.
func (r *Ring) Snapshot() []int16 {
	out := make([]int16, r.count)
	if r.count < len(r.data) {
		copy(out, r.data[:r.count])
		return out
	}
	n := copy(out, r.data[r.pos:])
	copy(out[n:], r.data[:r.pos])
	return out
}

// Clear resets the buffer content.
func (r *Ring) Clear() {
	r.pos = 0
	r.count = 0
}

// Len returns the number of buffered samples.
func (r *Ring) Len() int { return r.count }

// Cap returns the buffer capacity.
func (r *Ring) Cap() int { return len(r.data) }

// Full reports whether the buffer holds a complete window.
func (r *Ring) Full() bool { return r.count == len(r.data) }
