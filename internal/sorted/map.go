// Package sorted provides an ordered associative sequence: a slice of
// entries kept sorted by key.
//
// Lookups are O(log n) binary searches; inserts and erases shift the tail
// and are O(n). Iteration is always in ascending key order, which the
// engine relies on for deterministic dispatch and chunk handling.
package sorted

import (
	"cmp"
	"iter"
	"slices"
)

// Entry is one key/value pair.
type Entry[K cmp.Ordered, V any] struct {
	Key   K
	Value V
}

// Map is a slice of entries sorted ascending by key with unique keys.
// The zero value is an empty map ready to use.
type Map[K cmp.Ordered, V any] struct {
	entries []Entry[K, V]
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	return len(m.entries)
}

func (m *Map[K, V]) search(key K) (int, bool) {
	return slices.BinarySearchFunc(m.entries, key, func(e Entry[K, V], k K) int {
		return cmp.Compare(e.Key, k)
	})
}

// Find returns a pointer to the value stored under key, or nil.
// The pointer is invalidated by the next Equip or Erase.
func (m *Map[K, V]) Find(key K) *V {
	i, found := m.search(key)
	if !found {
		return nil
	}
	return &m.entries[i].Value
}

// Equip returns the value stored under key, inserting a zero value at its
// sorted position when absent. The second result reports an insert.
func (m *Map[K, V]) Equip(key K) (*V, bool) {
	i, found := m.search(key)
	if found {
		return &m.entries[i].Value, false
	}
	m.entries = slices.Insert(m.entries, i, Entry[K, V]{Key: key})
	return &m.entries[i].Value, true
}

// Erase removes key and returns the removed value.
func (m *Map[K, V]) Erase(key K) (V, bool) {
	i, found := m.search(key)
	if !found {
		var zero V
		return zero, false
	}
	v := m.entries[i].Value
	m.entries = slices.Delete(m.entries, i, i+1)
	return v, true
}

// EraseFunc removes every entry for which fn returns true and returns the
// number removed. fn may modify the values it keeps.
func (m *Map[K, V]) EraseFunc(fn func(K, *V) bool) int {
	kept := m.entries[:0]
	for i := range m.entries {
		if !fn(m.entries[i].Key, &m.entries[i].Value) {
			kept = append(kept, m.entries[i])
		}
	}
	removed := len(m.entries) - len(kept)
	clear(m.entries[len(kept):])
	m.entries = kept
	return removed
}

// All iterates entries in ascending key order.
// The map must not be mutated during iteration.
func (m *Map[K, V]) All() iter.Seq2[K, *V] {
	return func(yield func(K, *V) bool) {
		for i := range m.entries {
			if !yield(m.entries[i].Key, &m.entries[i].Value) {
				return
			}
		}
	}
}

// Keys returns a copy of the keys in ascending order.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, len(m.entries))
	for i, e := range m.entries {
		keys[i] = e.Key
	}
	return keys
}
