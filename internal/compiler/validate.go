package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/rulecore/internal/engine"
	"github.com/roach88/rulecore/internal/expression"
	"github.com/roach88/rulecore/internal/handler"
	"github.com/roach88/rulecore/internal/reservoir"
	"github.com/roach88/rulecore/internal/status"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedType = "E100" // unsupported type for validation

	// Chunk errors (E101-E109)
	ErrChunkNameEmpty     = "E101" // chunk name is required
	ErrChunkEmpty         = "E102" // chunk defines nothing
	ErrInvalidStatusKind  = "E103" // unknown kind or width
	ErrInvalidStatusValue = "E104" // value does not parse as the kind
	ErrDuplicateName      = "E105" // duplicate status/expression name
	ErrInvalidElements    = "E106" // not exactly one element list
	ErrInvalidComparison  = "E107" // unknown comparison or operand
	ErrInvalidLogic       = "E108" // unknown logic
	ErrForwardReference   = "E109" // sub-expression defined later or not at all

	// Handler errors (E110-E119)
	ErrHandlerNameEmpty   = "E110" // handler name is required
	ErrHandlerChunkEmpty  = "E111" // handler chunk is required
	ErrHandlerNoExpr      = "E112" // handler expression is required
	ErrInvalidCondition   = "E113" // unknown evaluation in now/last
	ErrInvalidWrite       = "E114" // write does not parse
	ErrUndefinedReference = "E115" // references an undefined status or expression
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a single chunk or handler in isolation.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch def := v.(type) {
	case *engine.ChunkDef:
		return validateChunk(def)
	case engine.ChunkDef:
		return validateChunk(&def)
	case *HandlerSpec:
		return validateHandler(def)
	case HandlerSpec:
		return validateHandler(&def)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type: %T", v),
			Code:    ErrUnsupportedType,
		}}
	}
}

// ValidateSpec checks every chunk and handler, then cross-references
// names in load order: comparisons must name a status of some chunk, and
// sub-expressions must name an expression defined before them.
// Handler expressions and write targets must exist somewhere in spec.
func ValidateSpec(spec *Spec) []ValidationError {
	var errs []ValidationError
	statuses := make(map[string]bool)
	expressions := make(map[string]bool)

	for _, c := range spec.Chunks {
		for _, row := range c.Statuses {
			statuses[row.Name] = true
		}
	}

	for i, c := range spec.Chunks {
		for _, e := range validateChunk(&c) {
			e.Field = fmt.Sprintf("chunks[%d].%s", i, e.Field)
			errs = append(errs, e)
		}
		for j, row := range c.Expressions {
			field := fmt.Sprintf("chunks[%d].expressions[%d]", i, j)
			for _, cmp := range row.Comparisons {
				if !statuses[cmp.Status] {
					errs = append(errs, undefined(field, "status", cmp.Status))
				}
				if cmp.Right != "" && !statuses[cmp.Right] {
					errs = append(errs, undefined(field, "status", cmp.Right))
				}
			}
			for _, s := range row.Transitions {
				if !statuses[s] {
					errs = append(errs, undefined(field, "status", s))
				}
			}
			for _, sub := range row.Subs {
				if !expressions[sub.Expression] {
					errs = append(errs, ValidationError{
						Field:   field + ".subs",
						Message: fmt.Sprintf("sub-expression %q is not defined before %q", sub.Expression, row.Name),
						Code:    ErrForwardReference,
					})
				}
			}
			expressions[row.Name] = true
		}
	}

	for i, h := range spec.Handlers {
		field := fmt.Sprintf("handlers[%d]", i)
		for _, e := range validateHandler(&h) {
			e.Field = field + "." + e.Field
			errs = append(errs, e)
		}
		if h.Expression != "" && !expressions[h.Expression] {
			errs = append(errs, undefined(field, "expression", h.Expression))
		}
		for _, w := range h.Writes {
			if w.Status != "" && !statuses[w.Status] {
				errs = append(errs, undefined(field+".writes", "status", w.Status))
			}
		}
	}

	return errs
}

func undefined(field, what, name string) ValidationError {
	return ValidationError{
		Field:   field,
		Message: fmt.Sprintf("undefined %s %q", what, name),
		Code:    ErrUndefinedReference,
	}
}

func validateChunk(def *engine.ChunkDef) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(def.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "chunk name is required and must be non-empty",
			Code:    ErrChunkNameEmpty,
		})
	}
	if len(def.Statuses) == 0 && len(def.Expressions) == 0 {
		errs = append(errs, ValidationError{
			Field:   "statuses",
			Message: "chunk must define at least one status or expression",
			Code:    ErrChunkEmpty,
		})
	}

	names := make(map[string]bool)
	for i, row := range def.Statuses {
		field := fmt.Sprintf("statuses[%d]", i)
		if names[row.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate status name: %q", row.Name),
				Code:    ErrDuplicateName,
			})
		}
		names[row.Name] = true

		kind, _, err := reservoir.ParseFormat(row.Kind)
		if err != nil {
			errs = append(errs, ValidationError{Field: field + ".kind", Message: err.Error(), Code: ErrInvalidStatusKind})
			continue
		}
		if row.Value != "" && status.Make(row.Value, kind).IsEmpty() {
			errs = append(errs, ValidationError{
				Field:   field + ".value",
				Message: fmt.Sprintf("value %q is not a %s", row.Value, kind),
				Code:    ErrInvalidStatusValue,
			})
		}
	}

	exprNames := make(map[string]bool)
	for i, row := range def.Expressions {
		errs = append(errs, validateExpressionRow(fmt.Sprintf("expressions[%d]", i), row, exprNames)...)
		exprNames[row.Name] = true
	}

	return errs
}

func validateExpressionRow(field string, row expression.Row, earlier map[string]bool) []ValidationError {
	var errs []ValidationError

	if earlier[row.Name] {
		errs = append(errs, ValidationError{
			Field:   field + ".name",
			Message: fmt.Sprintf("duplicate expression name: %q", row.Name),
			Code:    ErrDuplicateName,
		})
	}
	if _, ok := expression.ParseLogic(row.Logic); !ok {
		errs = append(errs, ValidationError{
			Field:   field + ".logic",
			Message: fmt.Sprintf("invalid logic %q, must be \"and\" or \"or\"", row.Logic),
			Code:    ErrInvalidLogic,
		})
	}

	set := 0
	for _, n := range []int{len(row.Comparisons), len(row.Transitions), len(row.Subs)} {
		if n > 0 {
			set++
		}
	}
	if set != 1 {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("expression %q needs exactly one of comparisons, transitions or subs", row.Name),
			Code:    ErrInvalidElements,
		})
	}

	for j, cmp := range row.Comparisons {
		cf := fmt.Sprintf("%s.comparisons[%d]", field, j)
		if _, ok := status.ParseComparison(cmp.Op); !ok {
			errs = append(errs, ValidationError{
				Field:   cf + ".op",
				Message: fmt.Sprintf("invalid comparison %q", cmp.Op),
				Code:    ErrInvalidComparison,
			})
		}
		if (cmp.Value == "") == (cmp.Right == "") {
			errs = append(errs, ValidationError{
				Field:   cf,
				Message: "exactly one of value or right is required",
				Code:    ErrInvalidComparison,
			})
		} else if cmp.Value != "" && status.Make(cmp.Value, status.KindEmpty).IsEmpty() {
			errs = append(errs, ValidationError{
				Field:   cf + ".value",
				Message: fmt.Sprintf("invalid value %q", cmp.Value),
				Code:    ErrInvalidComparison,
			})
		}
	}

	for j, sub := range row.Subs {
		if sub.Expression == row.Name {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.subs[%d]", field, j),
				Message: fmt.Sprintf("expression %q references itself", row.Name),
				Code:    ErrForwardReference,
			})
		}
	}

	return errs
}

func validateHandler(h *HandlerSpec) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(h.Name) == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "handler name is required", Code: ErrHandlerNameEmpty})
	}
	if strings.TrimSpace(h.Chunk) == "" {
		errs = append(errs, ValidationError{Field: "chunk", Message: "handler chunk is required", Code: ErrHandlerChunkEmpty})
	}
	if strings.TrimSpace(h.Expression) == "" {
		errs = append(errs, ValidationError{Field: "expression", Message: "handler expression is required", Code: ErrHandlerNoExpr})
	}
	if _, err := handler.ParseCondition(h.Now, h.Last); err != nil {
		errs = append(errs, ValidationError{Field: "now", Message: err.Error(), Code: ErrInvalidCondition})
	}

	for i, w := range h.Writes {
		field := fmt.Sprintf("writes[%d]", i)
		if w.Status == "" {
			errs = append(errs, ValidationError{Field: field + ".status", Message: "write status is required", Code: ErrInvalidWrite})
		}
		if _, _, _, err := w.Parse(); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error(), Code: ErrInvalidWrite})
		}
	}

	return errs
}
