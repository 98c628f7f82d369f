package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnTracker(t *testing.T) {
	t.Run("register and lookup", func(t *testing.T) {
		tracker := NewConnTracker()
		c := &Client{id: "c1"}

		tracker.Register(1, c)
		got, ok := tracker.Lookup(1)
		assert.True(t, ok, "expected lookup to find registered connection")
		assert.Same(t, c, got)

		_, ok = tracker.Lookup(2)
		assert.False(t, ok, "expected lookup of unknown user to fail")
	})

	t.Run("second login replaces the first", func(t *testing.T) {
		tracker := NewConnTracker()
		first := &Client{id: "first"}
		second := &Client{id: "second"}

		tracker.Register(1, first)
		tracker.Register(1, second)

		got, ok := tracker.Lookup(1)
		assert.True(t, ok)
		assert.Same(t, second, got, "expected the newer connection to win")
	})

	t.Run("unregister only removes the matching connection", func(t *testing.T) {
		tracker := NewConnTracker()
		first := &Client{id: "first"}
		second := &Client{id: "second"}

		tracker.Register(1, first)
		tracker.Register(1, second)

		// the displaced connection disconnects late
		tracker.Unregister(1, first)
		got, ok := tracker.Lookup(1)
		assert.True(t, ok, "expected replacement to survive stale unregister")
		assert.Same(t, second, got)

		tracker.Unregister(1, second)
		_, ok = tracker.Lookup(1)
		assert.False(t, ok, "expected connection to be removed")
	})
}
