// Package coordinator tracks which sessions have reached their payout
// target so the runner can stop early.
package coordinator

import "sync"

// Coordinator is a process-wide set of finished sessions. All methods are
// safe for concurrent use and none of them block on other sessions.
type Coordinator struct {
	mu     sync.Mutex
	done   map[string]struct{}
	notify chan struct{}
}

func New() *Coordinator {
	return &Coordinator{
		done:   make(map[string]struct{}),
		notify: make(chan struct{}, 1),
	}
}

// MarkDone records sessionID as finished. Marking the same id twice is a no-op.
func (c *Coordinator) MarkDone(sessionID string) {
	c.mu.Lock()
	_, seen := c.done[sessionID]
	if !seen {
		c.done[sessionID] = struct{}{}
	}
	c.mu.Unlock()

	if seen {
		return
	}
	select {
	case c.notify <- struct{}{}:
	default:
		// a wakeup is already pending
	}
}

// IsAllDone reports whether at least total distinct sessions are finished.
func (c *Coordinator) IsAllDone(total int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.done) >= total
}

func (c *Coordinator) IsDone(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.done[sessionID]
	return ok
}

func (c *Coordinator) Done() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.done)
}

// Notify receives a value after one or more new completions. Wakeups are
// coalesced, so receivers should re-check IsAllDone.
func (c *Coordinator) Notify() <-chan struct{} { return c.notify }
