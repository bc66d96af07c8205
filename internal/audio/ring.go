package audio

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrOversize is returned by Ring.Write when a single write exceeds the
// buffer capacity. This indicates a frame-size/buffer-duration
// misconfiguration, not a transient condition.
var ErrOversize = errors.New("audio: write larger than ring capacity")

// defaultWarnEvery controls how often overwrite warnings are emitted:
// once each time the overwrite counter crosses a multiple of this value.
const defaultWarnEvery = 100

// Ring is a fixed-capacity circular byte buffer with overwrite-on-full
// semantics. Writes never block: when the buffer is full the oldest unread
// bytes are dropped to make room. This is intentional for live capture —
// the capture goroutine must never stall on a slow consumer.
//
// A single mutex guards all state. Both operations hold the lock for the
// duration of the copy, which is fine at audio chunk sizes.
type Ring struct {
	log *slog.Logger

	mu         sync.Mutex
	buf        []byte
	head       int // next write position
	size       int // unread bytes, 0..len(buf)
	overwrites uint64
	warnEvery  uint64
}

// NewRing creates a ring buffer holding up to capacity bytes.
// A nil logger falls back to slog.Default().
func NewRing(capacity int, logger *slog.Logger) *Ring {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ring{
		log:       logger,
		buf:       make([]byte, capacity),
		warnEvery: defaultWarnEvery,
	}
}

// Write copies p into the buffer, dropping the oldest bytes when there is
// not enough free space. Lost bytes are counted and reported at a throttled
// rate; overwriting is lossy degradation, not an error. The only failure is
// a write larger than the whole buffer.
func (r *Ring) Write(p []byte) error {
	if len(p) > len(r.buf) {
		return ErrOversize
	}
	if len(p) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := r.size + len(p) - len(r.buf)
	if dropped > 0 {
		before := r.overwrites / r.warnEvery
		r.size -= dropped
		r.overwrites += uint64(dropped)
		if r.overwrites/r.warnEvery != before {
			r.log.Warn("ring buffer overwriting unread audio",
				"dropped", dropped, "total_overwritten", r.overwrites)
		}
	}

	n := copy(r.buf[r.head:], p)
	if n < len(p) {
		copy(r.buf, p[n:])
	}
	r.head = (r.head + len(p)) % len(r.buf)
	r.size += len(p)

	return nil
}

// Read returns up to n unread bytes in FIFO order. When fewer than n bytes
// are buffered it returns only what is available — short reads are never
// padded, so callers can trust every returned byte came from the device.
func (r *Ring) Read(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return nil
	}

	out := make([]byte, n)
	tail := (r.head - r.size + len(r.buf)) % len(r.buf)
	c := copy(out, r.buf[tail:])
	if c < n {
		copy(out[c:], r.buf)
	}
	r.size -= n

	return out
}

// Buffered returns the number of unread bytes.
func (r *Ring) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Capacity returns the total capacity in bytes.
func (r *Ring) Capacity() int {
	return len(r.buf)
}

// Overwrites returns the total number of bytes dropped to overwriting.
func (r *Ring) Overwrites() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overwrites
}
