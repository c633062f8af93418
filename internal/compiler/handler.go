package compiler

import (
	"cuelang.org/go/cue"
)

// CompileHandler parses a CUE value into a HandlerSpec.
//
// The handler name is the struct label unless a name field overrides it.
// The expression and chunk fields are required:
//
//	handler: warn: {
//		chunk:      "ui"
//		expression: "low_hp"
//		now:        ["true"]
//		writes: [{status: "alarm", value: true}]
//	}
func CompileHandler(v cue.Value) (*HandlerSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &HandlerSpec{Name: labelOf(v)}
	name, err := optionalString(v, "name")
	if err != nil {
		return nil, err
	}
	if name != "" {
		spec.Name = name
	}

	if spec.Chunk, err = requiredString(v, "handler", "chunk"); err != nil {
		return nil, err
	}
	if spec.Expression, err = requiredString(v, "handler", "expression"); err != nil {
		return nil, err
	}
	if spec.Now, err = parseStringList(v, "now"); err != nil {
		return nil, err
	}
	if spec.Last, err = parseStringList(v, "last"); err != nil {
		return nil, err
	}

	if pv := v.LookupPath(cue.ParsePath("priority")); pv.Exists() {
		p, err := pv.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if p < -1<<31 || p > 1<<31-1 {
			return nil, &CompileError{Field: "priority", Message: "priority must fit in 32 bits", Pos: pv.Pos()}
		}
		spec.Priority = int32(p)
	}

	err = eachListItem(v, "writes", func(item cue.Value) error {
		var w WriteSpec
		var err error
		if w.Status, err = requiredString(item, "write", "status"); err != nil {
			return err
		}
		if w.Op, err = optionalString(item, "op"); err != nil {
			return err
		}
		if w.Value, err = optionalScalar(item, "value"); err != nil {
			return err
		}
		if w.Delay, err = optionalString(item, "delay"); err != nil {
			return err
		}
		spec.Writes = append(spec.Writes, w)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return spec, nil
}

func parseStringList(v cue.Value, field string) ([]string, error) {
	var out []string
	err := eachListItem(v, field, func(item cue.Value) error {
		s, err := item.String()
		if err != nil {
			return formatCUEError(err)
		}
		out = append(out, s)
		return nil
	})
	return out, err
}
