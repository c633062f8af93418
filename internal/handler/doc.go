// Package handler binds condition-transition masks to callback targets.
//
// A Handler fires when an expression's evaluation moves from one of the
// "last" states to one of the "now" states named in its Condition. The
// dispatcher computes a TransitionCode for every evaluation change and
// calls IsMatched; matches are frozen into a Cache and invoked after all
// expressions have been evaluated.
//
// Callback targets are capability handles owned by a Chunk. Erasing the
// chunk revokes its callbacks, after which any Handler still pointing at
// them is a silent no-op.
package handler
