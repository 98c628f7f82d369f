package server

import "sync"

// Tracker maps a user id to at most one live connection. A second
// login for the same user replaces the first.
type Tracker interface {
	Register(userId int, c *Client)
	Lookup(userId int) (*Client, bool)
	Unregister(userId int, c *Client)
}

type ConnTracker struct {
	mu    sync.RWMutex
	conns map[int]*Client
}

func NewConnTracker() *ConnTracker {
	return &ConnTracker{
		conns: make(map[int]*Client),
	}
}

func (t *ConnTracker) Register(userId int, c *Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[userId] = c
}

func (t *ConnTracker) Lookup(userId int) (*Client, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.conns[userId]
	return c, ok
}

// Unregister removes the mapping only if it still points at c, so a
// disconnecting displaced connection cannot evict its replacement.
func (t *ConnTracker) Unregister(userId int, c *Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conns[userId] == c {
		delete(t.conns, userId)
	}
}
