package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/rulecore/internal/compiler"
)

// LoadMode controls how errors are handled during rule loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the rules compiled from one or more paths.
type LoadResult struct {
	Spec      *compiler.Spec
	FileCount int // Number of CUE files found
}

// LoadError represents an error that occurred during rule loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadRules loads and compiles CUE rules. Each path is a directory holding
// one CUE package or a single .cue file; results are merged in argument
// order.
//
// A nil result means nothing could be loaded. Compile errors come back
// alongside the entries that did compile.
func LoadRules(paths []string, mode LoadMode) (*LoadResult, []error) {
	if len(paths) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: "no rule paths given"}}
	}

	result := &LoadResult{Spec: &compiler.Spec{}}
	var errs []error
	for _, path := range paths {
		spec, count, pathErrs := loadPath(path, mode)
		if spec == nil {
			return nil, pathErrs
		}
		result.Spec.Merge(spec)
		result.FileCount += count
		errs = append(errs, pathErrs...)
		if mode == LoadModeFailFast && len(errs) > 0 {
			return result, errs
		}
	}

	if len(result.Spec.Chunks) == 0 && len(result.Spec.Handlers) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no chunks or handlers found in rules"})
	}
	return result, errs
}

func loadPath(path string, mode LoadMode) (*compiler.Spec, int, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, 0, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("rules path not found: %s", path)}}
	}
	if err != nil {
		return nil, 0, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing rules path: %v", err)}}
	}

	args := []string{path}
	cfg := &load.Config{}
	count := 1
	if info.IsDir() {
		cueFiles, err := FindCUEFiles(path)
		if err != nil {
			return nil, 0, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
		}
		if len(cueFiles) == 0 {
			return nil, 0, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}}
		}
		args = []string{"."}
		cfg.Dir = path
		count = len(cueFiles)
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return nil, 0, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, 0, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, 0, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	spec, compileErrs := compiler.CompileSpec(value, mode == LoadModeFailFast)
	errs := make([]error, 0, len(compileErrs))
	for _, err := range compileErrs {
		errs = append(errs, convertCompileError(err))
	}
	return spec, count, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
// The message keeps the chunk or handler prefix added by the compiler.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: err.Error(),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: err.Error(),
	}
}

// Error code constants for command-level failures. Rule errors use the
// compiler's E1xx codes.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeRunFailed   = "E008" // Scenario could not be executed
	ErrCodeTestFailed  = "E009" // One or more scenarios failed
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "name":
		return compiler.ErrChunkNameEmpty
	case "statuses":
		return compiler.ErrChunkEmpty
	case "kind":
		return compiler.ErrInvalidStatusKind
	case "value":
		return compiler.ErrInvalidStatusValue
	case "comparisons", "status", "op", "right":
		return compiler.ErrInvalidComparison
	case "logic":
		return compiler.ErrInvalidLogic
	case "subs":
		return compiler.ErrForwardReference
	case "expression":
		return compiler.ErrHandlerNoExpr
	case "chunk":
		return compiler.ErrHandlerChunkEmpty
	case "now", "last":
		return compiler.ErrInvalidCondition
	case "writes", "delay":
		return compiler.ErrInvalidWrite
	default:
		return ErrCodeGeneric
	}
}
