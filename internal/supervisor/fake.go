package supervisor

import (
	"context"
	"os"
	"sync"

	"silexa/mcp-supervisor/internal/registry"
)

// FakeSpawner is a deterministic Spawner for tests: each call returns the
// next queued *FakeChild (or an error if the queue is exhausted).
type FakeSpawner struct {
	mu      sync.Mutex
	queue   []*FakeChild
	spawned []registry.Entry
}

// FakeChild is a controllable Child: tests signal exit via Exit.
type FakeChild struct {
	pid  int
	exit chan error

	mu        sync.Mutex
	terminate int
	killed    int
}

// NewFakeChild returns a FakeChild with the given synthetic pid.
func NewFakeChild(pid int) *FakeChild {
	return &FakeChild{pid: pid, exit: make(chan error, 1)}
}

// Exit makes a pending Wait() return err.
func (f *FakeChild) Exit(err error) {
	f.exit <- err
}

func (f *FakeChild) Pid() int { return f.pid }

func (f *FakeChild) Wait() error { return <-f.exit }

func (f *FakeChild) Terminate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminate++
	return nil
}

func (f *FakeChild) Kill() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed++
	select {
	case f.exit <- nil:
	default:
	}
	return nil
}

// Enqueue registers the next child FakeSpawner.Spawn should hand out.
func (s *FakeSpawner) Enqueue(child *FakeChild) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, child)
}

func (s *FakeSpawner) Spawn(ctx context.Context, entry registry.Entry, dir string, logFile *os.File) (Child, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spawned = append(s.spawned, entry)
	if len(s.queue) == 0 {
		return nil, context.DeadlineExceeded
	}
	child := s.queue[0]
	s.queue = s.queue[1:]
	return child, nil
}
