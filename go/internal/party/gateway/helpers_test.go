package gateway

import (
	"sync"
	"testing"
	"time"
)

// fakeMember records the frames handed to it
type fakeMember struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed bool

	got     chan []byte
	block   chan struct{} // when set, Enqueue waits on it
	entered chan struct{}
}

func newFakeMember(id string) *fakeMember {
	return &fakeMember{id: id, got: make(chan []byte, 256)}
}

func (m *fakeMember) ID() string { return m.id }

func (m *fakeMember) Enqueue(frame []byte) bool {
	if m.entered != nil {
		select {
		case m.entered <- struct{}{}:
		default:
		}
	}
	if m.block != nil {
		<-m.block
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail || m.closed {
		return false
	}
	m.frames = append(m.frames, frame)
	m.got <- frame
	return true
}

func (m *fakeMember) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *fakeMember) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *fakeMember) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

func (m *fakeMember) next(t *testing.T) []byte {
	t.Helper()
	select {
	case f := <-m.got:
		return f
	case <-time.After(2 * time.Second):
		t.Fatalf("member %s received nothing", m.id)
		return nil
	}
}
