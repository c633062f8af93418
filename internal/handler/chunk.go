package handler

import (
	"github.com/roach88/rulecore/internal/sorted"
	"github.com/roach88/rulecore/internal/status"
)

// Chunk groups the callbacks that load and unload together.
type Chunk struct {
	Callbacks []*Callback
}

// Chunks is the registry of handler chunks sorted by chunk key.
// All mutations go through Extend, ExtendAll and Erase.
type Chunks struct {
	m sorted.Map[status.Key, Chunk]
}

// Extend appends cb to the chunk, creating the chunk if needed.
// A nil callback is skipped and nothing is created.
func (c *Chunks) Extend(key status.Key, cb *Callback) bool {
	if cb == nil {
		return false
	}
	chunk, _ := c.m.Equip(key)
	chunk.Callbacks = append(chunk.Callbacks, cb)
	return true
}

// ExtendAll appends every non-nil callback and returns how many were
// appended.
func (c *Chunks) ExtendAll(key status.Key, cbs []*Callback) int {
	n := 0
	for _, cb := range cbs {
		if cb != nil {
			n++
		}
	}
	if n == 0 {
		return 0
	}
	chunk, _ := c.m.Equip(key)
	for _, cb := range cbs {
		if cb != nil {
			chunk.Callbacks = append(chunk.Callbacks, cb)
		}
	}
	return n
}

// Erase removes the chunk and revokes its callbacks.
// Returns false when no chunk is registered under key.
func (c *Chunks) Erase(key status.Key) bool {
	chunk, ok := c.m.Erase(key)
	if !ok {
		return false
	}
	for _, cb := range chunk.Callbacks {
		cb.Revoke()
	}
	return true
}

// Find returns the chunk registered under key, or nil.
func (c *Chunks) Find(key status.Key) *Chunk {
	return c.m.Find(key)
}

// Len returns the number of chunks.
func (c *Chunks) Len() int {
	return c.m.Len()
}

// Keys returns the chunk keys in ascending order.
func (c *Chunks) Keys() []status.Key {
	return c.m.Keys()
}
