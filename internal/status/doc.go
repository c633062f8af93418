// Package status defines the scalar values the engine stores and the packed
// descriptors that locate them inside chunk bit storage.
//
// DATA MODEL:
//
// Value is a transient by-value view over one of five kinds (empty, bool,
// unsigned, signed, float). It is produced when a status is read and
// consumed when one is written; persistent storage lives in the reservoir.
//
// Descriptor packs a status's bit position, its "changed this cycle" flag
// and a 7-bit size/variety tag into one word:
//
//	bits  0-23  position inside the chunk's bit storage
//	bit   24    transition flag
//	bits 25-31  size (unsigned reading) or variety (sign-extended reading)
//
// INVARIANTS:
//   - Position is always < 2^24; SetPosition rejects larger values without
//     mutating the descriptor.
//   - A new descriptor starts with its transition flag set, so a freshly
//     registered status is seen as changed by the next dispatch.
//   - Compare never collapses to a boolean: cross-kind comparisons that are
//     unsafe report OrderFailed.
package status
