// Package modifier batches proposed status writes and applies them once
// per update cycle.
//
// Writes are grouped into series. A series whose statuses were already
// changed this cycle is carried to the next cycle as a unit, so no status
// is written by two different series within one cycle.
package modifier

import (
	"log/slog"

	"github.com/roach88/rulecore/internal/status"
)

// Delay selects how a write joins the queue.
type Delay uint8

const (
	// NonBlock starts a new series; if it is deferred, later series are
	// unaffected.
	NonBlock Delay = iota

	// Block starts a new series; if it is deferred, every later write in
	// the queue is deferred with it.
	Block

	// Follow joins the series of the previous write.
	Follow
)

// String returns the delay name.
func (d Delay) String() string {
	switch d {
	case Block:
		return "block"
	case Follow:
		return "follow"
	default:
		return "nonblock"
	}
}

// ParseDelay accepts "nonblock", "block" or "follow"; empty is NonBlock.
func ParseDelay(s string) (Delay, bool) {
	switch s {
	case "", "nonblock", "NONBLOCK":
		return NonBlock, true
	case "block", "BLOCK":
		return Block, true
	case "follow", "FOLLOW":
		return Follow, true
	}
	return NonBlock, false
}

// Reservoir is the status storage the modifier writes through.
type Reservoir interface {
	// Transition returns 1 if key changed this cycle, 0 if not, and -1 if
	// key is unknown.
	Transition(key status.Key) int8

	// AssignStatus applies one write. Returns false when rejected.
	AssignStatus(a status.Assignment) bool
}

type record struct {
	assignment status.Assignment
	series     bool
	block      bool
}

// Modifier holds writes accumulated for the current cycle and writes
// carried over from earlier cycles.
//
// Not safe for concurrent use.
type Modifier struct {
	accumulated []record
	delayed     []record
	logger      *slog.Logger
}

// New creates a Modifier. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Modifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Modifier{logger: logger}
}

// Accumulate queues "key := value".
func (m *Modifier) Accumulate(key status.Key, value status.Value, delay Delay) {
	m.AccumulateAssignment(status.Assignment{Key: key, Operator: status.Copy, Value: value}, delay)
}

// AccumulateAssignment queues an arbitrary assignment.
func (m *Modifier) AccumulateAssignment(a status.Assignment, delay Delay) {
	series := true
	if n := len(m.accumulated); n > 0 {
		series = m.accumulated[n-1].series != (delay != Follow)
	}
	m.accumulated = append(m.accumulated, record{
		assignment: a,
		series:     series,
		block:      delay == Block,
	})
}

// Len returns the number of queued writes.
func (m *Modifier) Len() int {
	return len(m.accumulated)
}

// Pending returns a copy of the queued writes in order.
func (m *Modifier) Pending() []status.Assignment {
	out := make([]status.Assignment, len(m.accumulated))
	for i, r := range m.accumulated {
		out[i] = r.assignment
	}
	return out
}

// Modify applies queued writes to r.
//
// Each series is applied in full unless one of its statuses already
// changed this cycle, in which case the whole series is carried to the
// next call. A carried series that began with a Block write carries every
// write after it as well. A rejected write is logged and dropped; the rest
// of its series still applies.
//
// Returns the number of writes applied.
func (m *Modifier) Modify(r Reservoir) int {
	applied := 0
	end := len(m.accumulated)
	for i := 0; i < end; {
		j := i
		modify := true
		for ; j < end && m.accumulated[i].series == m.accumulated[j].series; j++ {
			if modify && r.Transition(m.accumulated[j].assignment.Key) > 0 {
				modify = false
			}
		}

		if modify {
			for ; i < j; i++ {
				a := m.accumulated[i].assignment
				if !r.AssignStatus(a) {
					m.logger.Warn("status write rejected",
						"status_key", uint32(a.Key),
						"operator", a.Operator.String(),
						"value", a.Value.String())
					continue
				}
				applied++
			}
			continue
		}

		n := len(m.delayed)
		localSeries := n == 0 || m.delayed[n-1].series == m.accumulated[i].series
		if m.accumulated[i].block {
			j = end
		}
		for ; i < j; i++ {
			rec := m.accumulated[i]
			rec.series = rec.series != localSeries
			m.delayed = append(m.delayed, rec)
		}
	}

	m.accumulated = m.accumulated[:0]
	m.accumulated, m.delayed = m.delayed, m.accumulated
	return applied
}
