package bus

import (
	"context"
	"sync"
	"sync/atomic"
)

// MemorySink is an in-memory Sink for testing. Published frames are retained
// per subject for inspection.
type MemorySink struct {
	mu     sync.RWMutex
	frames map[string][][]byte
	closed atomic.Bool
}

// NewMemorySink creates an in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{frames: make(map[string][][]byte)}
}

func (s *MemorySink) Publish(ctx context.Context, subject string, frame []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[subject] = append(s.frames[subject], append([]byte(nil), frame...))
	return nil
}

// Frames returns the frames published to a subject, in order.
func (s *MemorySink) Frames(subject string) [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	frames := make([][]byte, len(s.frames[subject]))
	copy(frames, s.frames[subject])
	return frames
}

func (s *MemorySink) Close() error {
	s.closed.Store(true)
	return nil
}
