package handler

import (
	"fmt"
	"strings"
)

// ParseCondition builds a Condition from the evaluations a handler accepts
// now and last. Names are "true", "false" and "failed" in any case; an
// empty list accepts all three.
func ParseCondition(now, last []string) (Condition, error) {
	nowTrue, nowFalse, nowFailed, err := parseEvaluations(now)
	if err != nil {
		return ConditionInvalid, fmt.Errorf("now: %w", err)
	}
	lastTrue, lastFalse, lastFailed, err := parseEvaluations(last)
	if err != nil {
		return ConditionInvalid, fmt.Errorf("last: %w", err)
	}
	return MakeCondition(nowTrue, nowFalse, nowFailed, lastTrue, lastFalse, lastFailed), nil
}

func parseEvaluations(names []string) (isTrue, isFalse, isFailed bool, err error) {
	if len(names) == 0 {
		return true, true, true, nil
	}
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "true":
			isTrue = true
		case "false":
			isFalse = true
		case "failed":
			isFailed = true
		default:
			return false, false, false, fmt.Errorf("unknown evaluation %q", name)
		}
	}
	return isTrue, isFalse, isFailed, nil
}
