// Package engine drives the status reservoir, condition expressions,
// handlers and the modifier through update cycles.
//
// ARCHITECTURE:
//
// Update Cycle (Tick):
//  1. Submissions from other goroutines are drained into the modifier
//  2. The modifier applies queued writes, at most one effective write per
//     status; series touching an already changed status carry over
//  3. The dispatcher evaluates expressions whose statuses changed and
//     calls matching handlers in priority order
//  4. Writes, fires and their (cycle, seq) positions go to the Recorder
//
// Handlers run inside step 3. Writes they queue apply on the next cycle,
// never the current one. Settle repeats cycles until nothing is pending.
//
// Chunks:
// Statuses, expressions and handlers are grouped into named chunks.
// UnloadChunk removes a chunk's statuses and expressions and revokes its
// handlers in one step.
//
// CRITICAL PATTERNS:
//
// Single Writer:
// All engine state is owned by one goroutine. Submit and Stop are the only
// methods safe to call from elsewhere.
//
// Logical Clock:
// Cycles are numbered by Clock. Traces never carry wall-clock time, so a
// scenario replays to an identical trace.
//
// Log and Continue:
// A rejected write or a failing trace write is logged; the cycle
// completes.
package engine
