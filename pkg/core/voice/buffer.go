package voice

import (
	"context"
	"sync"
	"time"

	"github.com/vango-go/vai-examiner/pkg/core"
)

// AudioBuffer accumulates the caller's audio chunks for the current utterance.
//
// Transcription works on snapshots handed out as leases. At most one lease
// is outstanding at a time, so a preview transcription and the commit
// transcription never run against the same buffer concurrently.
type AudioBuffer struct {
	maxBytes int

	mu          sync.Mutex
	data        []byte
	lastAttempt time.Time

	inflight chan struct{}
}

// NewAudioBuffer creates an empty buffer. maxBytes <= 0 disables the size cap.
func NewAudioBuffer(maxBytes int) *AudioBuffer {
	return &AudioBuffer{
		maxBytes: maxBytes,
		data:     make([]byte, 0, 64*1024),
		inflight: make(chan struct{}, 1),
	}
}

// Lease is a copy of the buffer taken for one transcription. The holder
// must call Release when the transcription finishes, on every path.
type Lease struct {
	Audio []byte

	once    sync.Once
	release func()
}

// Release returns the in-flight slot. Safe to call more than once.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		if l.release != nil {
			l.release()
		}
	})
}

// Append extends the buffer with chunk. It only fails when the configured
// size cap would be exceeded, in which case the buffer is left untouched.
func (b *AudioBuffer) Append(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxBytes > 0 && len(b.data)+len(chunk) > b.maxBytes {
		return core.NewBufferFullError(b.maxBytes)
	}
	b.data = append(b.data, chunk...)
	return nil
}

// Len returns the number of buffered bytes.
func (b *AudioBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Purge drops all buffered audio.
func (b *AudioBuffer) Purge() {
	b.mu.Lock()
	b.data = b.data[:0]
	b.mu.Unlock()
}

// TrySnapshotForPreview hands out a lease on a copy of the buffer when no
// other lease is outstanding, more than interval has passed since the last
// preview attempt and the buffer holds a valid container. It never blocks.
//
// A buffer that fails container validation is purged, since appending more
// bytes cannot repair it.
func (b *AudioBuffer) TrySnapshotForPreview(now time.Time, interval time.Duration) (*Lease, bool) {
	select {
	case b.inflight <- struct{}{}:
	default:
		return nil, false
	}

	b.mu.Lock()
	if !b.lastAttempt.IsZero() && now.Sub(b.lastAttempt) <= interval {
		b.mu.Unlock()
		b.releaseSlot()
		return nil, false
	}
	if len(b.data) == 0 {
		b.mu.Unlock()
		b.releaseSlot()
		return nil, false
	}
	if !IsValidContainer(b.data) {
		b.data = b.data[:0]
		b.mu.Unlock()
		b.releaseSlot()
		return nil, false
	}
	b.lastAttempt = now
	snapshot := make([]byte, len(b.data))
	copy(snapshot, b.data)
	b.mu.Unlock()

	return &Lease{Audio: snapshot, release: b.releaseSlot}, true
}

// SnapshotAndClear waits for any outstanding lease, then takes the whole
// buffer and empties it in one step. The returned lease must be released
// once the commit transcription is done.
//
// An empty or invalid buffer yields ErrEmptyBuffer or ErrInvalidContainer;
// in both cases the buffer is cleared and no lease is held.
func (b *AudioBuffer) SnapshotAndClear(ctx context.Context) (*Lease, error) {
	select {
	case b.inflight <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	b.mu.Lock()
	data := b.data
	b.data = make([]byte, 0, cap(data))
	b.mu.Unlock()

	if len(data) == 0 {
		b.releaseSlot()
		return nil, core.NewEmptyBufferError()
	}
	if !IsValidContainer(data) {
		b.releaseSlot()
		return nil, core.NewInvalidContainerError(len(data))
	}
	return &Lease{Audio: data, release: b.releaseSlot}, nil
}

func (b *AudioBuffer) releaseSlot() {
	select {
	case <-b.inflight:
	default:
	}
}
