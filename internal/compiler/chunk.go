package compiler

import (
	"fmt"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/rulecore/internal/engine"
	"github.com/roach88/rulecore/internal/expression"
	"github.com/roach88/rulecore/internal/reservoir"
)

// CompileChunk parses a CUE value into a ChunkDef.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The chunk name is the struct label unless a name field overrides it:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`chunk: hero: { statuses: [...] }`)
//	def, err := CompileChunk(v.LookupPath(cue.ParsePath("chunk.hero")))
func CompileChunk(v cue.Value) (*engine.ChunkDef, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := &engine.ChunkDef{Name: labelOf(v)}
	name, err := optionalString(v, "name")
	if err != nil {
		return nil, err
	}
	if name != "" {
		def.Name = name
	}
	if def.Name == "" {
		return nil, &CompileError{Field: "name", Message: "chunk name is required", Pos: v.Pos()}
	}

	def.Statuses, err = parseStatuses(v)
	if err != nil {
		return nil, err
	}
	def.Expressions, err = parseExpressions(v)
	if err != nil {
		return nil, err
	}
	if len(def.Statuses) == 0 && len(def.Expressions) == 0 {
		return nil, &CompileError{
			Field:   "statuses",
			Message: "chunk defines no statuses or expressions",
			Pos:     v.Pos(),
		}
	}
	return def, nil
}

func parseStatuses(v cue.Value) ([]reservoir.Row, error) {
	var rows []reservoir.Row
	err := eachListItem(v, "statuses", func(item cue.Value) error {
		var row reservoir.Row
		var err error
		if row.Name, err = requiredString(item, "status", "name"); err != nil {
			return err
		}
		if row.Kind, err = requiredString(item, "status", "kind"); err != nil {
			return err
		}
		if row.Value, err = optionalScalar(item, "value"); err != nil {
			return err
		}
		rows = append(rows, row)
		return nil
	})
	return rows, err
}

func parseExpressions(v cue.Value) ([]expression.Row, error) {
	var rows []expression.Row
	err := eachListItem(v, "expressions", func(item cue.Value) error {
		var row expression.Row
		var err error
		if row.Name, err = requiredString(item, "expression", "name"); err != nil {
			return err
		}
		if row.Logic, err = optionalString(item, "logic"); err != nil {
			return err
		}

		err = eachListItem(item, "comparisons", func(c cue.Value) error {
			var cmp expression.ComparisonRow
			var err error
			if cmp.Status, err = requiredString(c, "comparison", "status"); err != nil {
				return err
			}
			if cmp.Op, err = requiredString(c, "comparison", "op"); err != nil {
				return err
			}
			if cmp.Value, err = optionalScalar(c, "value"); err != nil {
				return err
			}
			if cmp.Right, err = optionalString(c, "right"); err != nil {
				return err
			}
			row.Comparisons = append(row.Comparisons, cmp)
			return nil
		})
		if err != nil {
			return err
		}

		err = eachListItem(item, "transitions", func(t cue.Value) error {
			s, err := t.String()
			if err != nil {
				return formatCUEError(err)
			}
			row.Transitions = append(row.Transitions, s)
			return nil
		})
		if err != nil {
			return err
		}

		err = eachListItem(item, "subs", func(s cue.Value) error {
			var sub expression.SubRow
			var err error
			if sub.Expression, err = requiredString(s, "sub", "expression"); err != nil {
				return err
			}
			if notVal := s.LookupPath(cue.ParsePath("not")); notVal.Exists() {
				if sub.Not, err = notVal.Bool(); err != nil {
					return formatCUEError(err)
				}
			}
			row.Subs = append(row.Subs, sub)
			return nil
		})
		if err != nil {
			return err
		}

		rows = append(rows, row)
		return nil
	})
	return rows, err
}

// eachListItem calls fn for every element of the list at field. A missing
// field is an empty list.
func eachListItem(v cue.Value, field string, fn func(cue.Value) error) error {
	listVal := v.LookupPath(cue.ParsePath(field))
	if !listVal.Exists() {
		return nil
	}
	iter, err := listVal.List()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func labelOf(v cue.Value) string {
	labels := v.Path().Selectors()
	if len(labels) == 0 {
		return ""
	}
	return labels[len(labels)-1].Unquoted()
}

func requiredString(v cue.Value, owner, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s %s is required", owner, field),
			Pos:     v.Pos(),
		}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// optionalScalar reads a string, number or bool field as text, so rule
// files can write value: 100 as well as value: "100".
func optionalScalar(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	switch fv.IncompleteKind() {
	case cue.StringKind:
		s, err := fv.String()
		if err != nil {
			return "", formatCUEError(err)
		}
		return s, nil
	case cue.BoolKind:
		b, err := fv.Bool()
		if err != nil {
			return "", formatCUEError(err)
		}
		return strconv.FormatBool(b), nil
	case cue.IntKind:
		i, err := fv.Int64()
		if err != nil {
			return "", formatCUEError(err)
		}
		return strconv.FormatInt(i, 10), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := fv.Float64()
		if err != nil {
			return "", formatCUEError(err)
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	default:
		return "", &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported value kind: %v", fv.IncompleteKind()),
			Pos:     fv.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
