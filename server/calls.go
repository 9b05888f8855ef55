package server

import "sync"

// callTracker counts running service method calls. Calls can outlive their HTTP
// handler when a middleware stops waiting for them, so the handler WaitGroup
// does not see them. After drain, new calls are refused.
type callTracker struct {
	mu      sync.Mutex
	running int
	closed  bool
	idle    chan struct{}
}

func (t *callTracker) enter() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.running++
	return true
}

func (t *callTracker) leave() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running--
	if t.closed && t.running == 0 && t.idle != nil {
		close(t.idle)
		t.idle = nil
	}
}

// drain refuses new calls and returns a channel closed once none are running.
func (t *callTracker) drain() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	ch := make(chan struct{})
	if t.running == 0 {
		close(ch)
	} else {
		t.idle = ch
	}
	return ch
}
