package sample

// Ring keeps the most recent values up to a fixed capacity.
type Ring[T any] struct {
	buf  []T
	pos  int
	full bool
}

// NewRing allocates a ring holding up to size values.
func NewRing[T any](size int) *Ring[T] {
	if size <= 0 {
		size = 1
	}
	return &Ring[T]{buf: make([]T, size)}
}

// Push stores v, overwriting the oldest value when full.
func (r *Ring[T]) Push(v T) {
	r.buf[r.pos] = v
	r.pos = (r.pos + 1) % len(r.buf)
	if r.pos == 0 {
		r.full = true
	}
}

// Len returns the number of stored values.
func (r *Ring[T]) Len() int {
	if r.full {
		return len(r.buf)
	}
	return r.pos
}

// Clear drops all values.
func (r *Ring[T]) Clear() {
	r.pos = 0
	r.full = false
}

// Values appends the stored values, oldest first, to dst[:0].
func (r *Ring[T]) Values(dst []T) []T {
	dst = dst[:0]
	if r.full {
		dst = append(dst, r.buf[r.pos:]...)
	}
	return append(dst, r.buf[:r.pos]...)
}
