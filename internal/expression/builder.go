package expression

import (
	"errors"
	"fmt"

	"github.com/roach88/rulecore/internal/status"
)

// Row is one line of an expression table. Exactly one of Comparisons,
// Transitions and Subs is set.
type Row struct {
	Name        string          `yaml:"name" json:"name"`
	Logic       string          `yaml:"logic,omitempty" json:"logic,omitempty"`
	Comparisons []ComparisonRow `yaml:"comparisons,omitempty" json:"comparisons,omitempty"`
	Transitions []string        `yaml:"transitions,omitempty" json:"transitions,omitempty"`
	Subs        []SubRow        `yaml:"subs,omitempty" json:"subs,omitempty"`
}

// ComparisonRow is "status op value", or "status op right" when Right is
// set.
type ComparisonRow struct {
	Status string `yaml:"status" json:"status"`
	Op     string `yaml:"op" json:"op"`
	Value  string `yaml:"value,omitempty" json:"value,omitempty"`
	Right  string `yaml:"right,omitempty" json:"right,omitempty"`
}

// SubRow references an earlier expression. Not inverts the condition.
type SubRow struct {
	Expression string `yaml:"expression" json:"expression"`
	Not        bool   `yaml:"not,omitempty" json:"not,omitempty"`
}

// BuildExpressions registers every row of an expression table into
// chunkKey, in order. A sub-expression row may only reference rows above
// it or expressions registered earlier.
//
// Rows that fail are skipped; their errors are joined into the returned
// error. Returns the number of rows registered.
func BuildExpressions(e *Evaluator, chunkKey status.Key, rows []Row) (int, error) {
	var errs []error
	registered := 0
	for i, row := range rows {
		if err := buildExpression(e, chunkKey, row); err != nil {
			errs = append(errs, fmt.Errorf("row %d (%s): %w", i, row.Name, err))
			continue
		}
		registered++
	}
	return registered, errors.Join(errs...)
}

func buildExpression(e *Evaluator, chunkKey status.Key, row Row) error {
	if row.Name == "" {
		return errors.New("name is required")
	}
	logic, ok := ParseLogic(row.Logic)
	if !ok {
		return fmt.Errorf("unknown logic %q", row.Logic)
	}

	set := 0
	for _, n := range []int{len(row.Comparisons), len(row.Transitions), len(row.Subs)} {
		if n > 0 {
			set++
		}
	}
	if set != 1 {
		return errors.New("exactly one of comparisons, transitions or subs is required")
	}

	key := status.MakeKey(row.Name)
	switch {
	case len(row.Comparisons) > 0:
		elems := make([]Comparison, 0, len(row.Comparisons))
		for _, c := range row.Comparisons {
			cmp, err := buildComparison(c)
			if err != nil {
				return err
			}
			elems = append(elems, cmp)
		}
		ok = e.RegisterComparisons(chunkKey, key, logic, elems)
	case len(row.Transitions) > 0:
		elems := make([]Transition, 0, len(row.Transitions))
		for _, name := range row.Transitions {
			if name == "" {
				return errors.New("transition status is required")
			}
			elems = append(elems, Transition{Status: status.MakeKey(name)})
		}
		ok = e.RegisterTransitions(chunkKey, key, logic, elems)
	default:
		elems := make([]Sub, 0, len(row.Subs))
		for _, s := range row.Subs {
			if s.Expression == "" {
				return errors.New("sub expression is required")
			}
			elems = append(elems, Sub{Expression: status.MakeKey(s.Expression), Condition: !s.Not})
		}
		ok = e.RegisterSubExpressions(chunkKey, key, logic, elems)
	}
	if !ok {
		return errors.New("cannot register expression (duplicate name or unknown sub expression)")
	}
	return nil
}

func buildComparison(c ComparisonRow) (Comparison, error) {
	if c.Status == "" {
		return Comparison{}, errors.New("comparison status is required")
	}
	op, ok := status.ParseComparison(c.Op)
	if !ok {
		return Comparison{}, fmt.Errorf("unknown comparison %q", c.Op)
	}
	cmp := Comparison{Status: status.MakeKey(c.Status), Operator: op}
	switch {
	case c.Right != "" && c.Value != "":
		return Comparison{}, fmt.Errorf("comparison on %s has both value and right", c.Status)
	case c.Right != "":
		cmp.Right = status.MakeKey(c.Right)
	default:
		cmp.Value = status.Make(c.Value, status.KindEmpty)
		if cmp.Value.IsEmpty() {
			return Comparison{}, fmt.Errorf("comparison on %s has no valid value %q", c.Status, c.Value)
		}
	}
	return cmp, nil
}
