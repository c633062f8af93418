package compiler

import (
	stderrors "errors"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// CompileSpec compiles every entry under the top-level chunk and handler
// fields of v, in declaration order.
//
// With failFast the first error stops compilation; otherwise all errors
// are collected and the entries that compiled are returned.
func CompileSpec(v cue.Value, failFast bool) (*Spec, []error) {
	spec := &Spec{}
	var errs []error

	chunksVal := v.LookupPath(cue.ParsePath("chunk"))
	if chunksVal.Exists() {
		iter, err := chunksVal.Fields()
		if err != nil {
			return spec, []error{fmt.Errorf("iterating chunks: %w", formatCUEError(err))}
		}
		for iter.Next() {
			def, err := CompileChunk(iter.Value())
			if err != nil {
				errs = append(errs, fmt.Errorf("chunk.%s: %w", iter.Selector().Unquoted(), err))
				if failFast {
					return spec, errs
				}
				continue
			}
			spec.Chunks = append(spec.Chunks, *def)
		}
	}

	handlersVal := v.LookupPath(cue.ParsePath("handler"))
	if handlersVal.Exists() {
		iter, err := handlersVal.Fields()
		if err != nil {
			return spec, append(errs, fmt.Errorf("iterating handlers: %w", formatCUEError(err)))
		}
		for iter.Next() {
			h, err := CompileHandler(iter.Value())
			if err != nil {
				errs = append(errs, fmt.Errorf("handler.%s: %w", iter.Selector().Unquoted(), err))
				if failFast {
					return spec, errs
				}
				continue
			}
			spec.Handlers = append(spec.Handlers, *h)
		}
	}

	return spec, errs
}

// LoadFiles loads CUE rule files as one instance and compiles them.
// All files must belong to the same CUE package.
func LoadFiles(paths ...string) (*Spec, error) {
	if len(paths) == 0 {
		return &Spec{}, nil
	}
	return loadInstance(paths, &load.Config{})
}

// LoadDir loads the CUE package in dir and compiles it.
func LoadDir(dir string) (*Spec, error) {
	return loadInstance([]string{"."}, &load.Config{Dir: dir})
}

func loadInstance(args []string, cfg *load.Config) (*Spec, error) {
	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded")
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %w", formatCUEError(err))
	}

	spec, errs := CompileSpec(value, false)
	if len(errs) > 0 {
		return nil, stderrors.Join(errs...)
	}
	return spec, nil
}

// Merge appends other's chunks and handlers after s's.
func (s *Spec) Merge(other *Spec) {
	if other == nil {
		return
	}
	s.Chunks = append(s.Chunks, other.Chunks...)
	s.Handlers = append(s.Handlers, other.Handlers...)
}
