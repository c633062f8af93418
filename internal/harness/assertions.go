package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/rulecore/internal/engine"
	"github.com/roach88/rulecore/internal/status"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFires:\n")
		for _, event := range e.Trace {
			if event.Type == EventFire {
				fmt.Fprintf(&buf, "  [%d.%d] %s %s: %s -> %s\n",
					event.Cycle, event.Seq, event.Expression, event.Handler, event.Last, event.Now)
			}
		}
	}

	return buf.String()
}

// describeFire renders the fire filter of an assertion.
func describeFire(a Assertion) string {
	var parts []string
	if a.Handler != "" {
		parts = append(parts, "handler "+a.Handler)
	}
	if a.Expression != "" {
		parts = append(parts, "expression "+a.Expression)
	}
	if a.Last != "" || a.Now != "" {
		parts = append(parts, fmt.Sprintf("%s -> %s", orAny(a.Last), orAny(a.Now)))
	}
	if a.Cycle > 0 {
		parts = append(parts, fmt.Sprintf("in cycle %d", a.Cycle))
	}
	return strings.Join(parts, " ")
}

func orAny(s string) string {
	if s == "" {
		return "*"
	}
	return s
}

// matchesFire reports whether a fire event passes every filter set on a.
func matchesFire(event TraceEvent, a Assertion) bool {
	if event.Type != EventFire {
		return false
	}
	if a.Handler != "" && event.Handler != a.Handler {
		return false
	}
	if a.Expression != "" && event.Expression != a.Expression {
		return false
	}
	if a.Now != "" && !strings.EqualFold(event.Now, a.Now) {
		return false
	}
	if a.Last != "" && !strings.EqualFold(event.Last, a.Last) {
		return false
	}
	if a.Cycle > 0 && event.Cycle != a.Cycle {
		return false
	}
	return true
}

func countFires(trace []TraceEvent, a Assertion) int {
	n := 0
	for _, event := range trace {
		if matchesFire(event, a) {
			n++
		}
	}
	return n
}

// assertFired checks that at least one fire matches.
func assertFired(trace []TraceEvent, a Assertion) error {
	if countFires(trace, a) > 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertFired,
		Expected: describeFire(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertNotFired checks that no fire matches.
func assertNotFired(trace []TraceEvent, a Assertion) error {
	if n := countFires(trace, a); n > 0 {
		return &AssertionError{
			Type:     AssertNotFired,
			Expected: "no fires of " + describeFire(a),
			Actual:   fmt.Sprintf("%d fires", n),
			Trace:    trace,
		}
	}
	return nil
}

// assertFireCount checks that exactly Count fires match.
func assertFireCount(trace []TraceEvent, a Assertion) error {
	if n := countFires(trace, a); n != a.Count {
		return &AssertionError{
			Type:     AssertFireCount,
			Expected: fmt.Sprintf("%d fires of %s", a.Count, describeFire(a)),
			Actual:   fmt.Sprintf("%d fires", n),
			Trace:    trace,
		}
	}
	return nil
}

// assertFireOrder checks that handlers first fired in the given order.
// Handlers don't need to be consecutive (intervening fires are allowed).
func assertFireOrder(trace []TraceEvent, a Assertion) error {
	// Step 1: Find first position of each expected handler
	positions := make(map[string]int)
	pos := 0
	for _, event := range trace {
		if event.Type != EventFire {
			continue
		}
		pos++
		if _, seen := positions[event.Handler]; !seen {
			positions[event.Handler] = pos
		}
	}

	// Step 2: Verify all handlers fired
	for _, name := range a.Handlers {
		if positions[name] == 0 {
			return &AssertionError{
				Type:     AssertFireOrder,
				Expected: fmt.Sprintf("all handlers fired: %v", a.Handlers),
				Actual:   fmt.Sprintf("missing handler: %s", name),
				Trace:    trace,
			}
		}
	}

	// Step 3: Verify order
	for i := 1; i < len(a.Handlers); i++ {
		prev := a.Handlers[i-1]
		curr := a.Handlers[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertFireOrder,
				Expected: fmt.Sprintf("handlers in order: %v", a.Handlers),
				Actual: fmt.Sprintf("%s (fire %d) should be before %s (fire %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertStatusEquals compares a final status value.
//
// With an engine the expected text is parsed as the status's own kind, so
// "1" matches a float 1.0 and "TRUE" matches true. Without one the
// recorded text must match exactly.
func assertStatusEquals(result *Result, eng *engine.Engine, a Assertion) error {
	if eng != nil {
		v, err := eng.Value(a.Status)
		if err != nil {
			return &AssertionError{
				Type:     AssertStatusEquals,
				Expected: fmt.Sprintf("%s = %s", a.Status, a.Value),
				Actual:   err.Error(),
			}
		}
		want := status.Make(a.Value, v.Kind())
		if want.IsEmpty() || v.Compare(want) != status.OrderEqual {
			return &AssertionError{
				Type:     AssertStatusEquals,
				Expected: fmt.Sprintf("%s = %s", a.Status, a.Value),
				Actual:   fmt.Sprintf("%s = %s", a.Status, v),
			}
		}
		return nil
	}

	got, ok := result.State[a.Status]
	if !ok {
		return &AssertionError{
			Type:     AssertStatusEquals,
			Expected: fmt.Sprintf("%s = %s", a.Status, a.Value),
			Actual:   "status not in final state",
		}
	}
	if got != a.Value {
		return &AssertionError{
			Type:     AssertStatusEquals,
			Expected: fmt.Sprintf("%s = %s", a.Status, a.Value),
			Actual:   fmt.Sprintf("%s = %s", a.Status, got),
		}
	}
	return nil
}

// assertEvaluationEquals evaluates an expression against final values.
// An expression that is no longer loaded evaluates to failed.
func assertEvaluationEquals(eng *engine.Engine, a Assertion) error {
	got, err := eng.Evaluate(a.Expression)
	if err != nil && !engine.IsUnknownError(err) {
		return err
	}
	if !strings.EqualFold(got.String(), a.Value) {
		return &AssertionError{
			Type:     AssertEvaluationEquals,
			Expected: fmt.Sprintf("%s is %s", a.Expression, strings.ToLower(a.Value)),
			Actual:   fmt.Sprintf("%s is %s", a.Expression, got),
		}
	}
	return nil
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	// Engine answers status_equals and evaluation_equals from live state.
	Engine *engine.Engine
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides engine access for evaluation_equals.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	var eng *engine.Engine
	if actx != nil {
		eng = actx.Engine
	}

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertStatusEquals:
			err = assertStatusEquals(result, eng, assertion)
		case AssertEvaluationEquals:
			if eng == nil {
				err = fmt.Errorf("assertion[%d]: evaluation_equals requires an engine", i)
			} else {
				err = assertEvaluationEquals(eng, assertion)
			}
		case AssertFired:
			err = assertFired(result.Trace, assertion)
		case AssertNotFired:
			err = assertNotFired(result.Trace, assertion)
		case AssertFireCount:
			err = assertFireCount(result.Trace, assertion)
		case AssertFireOrder:
			err = assertFireOrder(result.Trace, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
