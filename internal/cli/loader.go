package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/simkernel/internal/compiler"
)

// Error codes shared by compile, validate and run.
const (
	ErrCodeGeneric     = "E001"
	ErrCodeScanError   = "E002" // walking the content directory failed
	ErrCodeNoFiles     = "E003"
	ErrCodeLoadFailed  = "E004" // cue/load rejected the package
	ErrCodeNotFound    = "E005"
	ErrCodeBuildFailed = "E006" // the package does not evaluate
	ErrCodeWriteFailed = "E007"

	ErrCodeInvalidProperty = "E101"
	ErrCodeFlaggedProperty = "E102" // persistent or read_only names an unknown property
	ErrCodeInvalidEffect   = "E103" // signals and on_update
	ErrCodeInvalidHandler  = "E104"
	ErrCodeInvalidBinding  = "E105"
	ErrCodeInvalidStream   = "E106"
	ErrCodeInvalidKind     = "E107"
)

// fieldCodes maps the leading segment of a CompileError field to its code.
var fieldCodes = map[string]string{
	"properties": ErrCodeInvalidProperty,
	"value":      ErrCodeInvalidProperty,
	"persistent": ErrCodeFlaggedProperty,
	"read_only":  ErrCodeFlaggedProperty,
	"signals":    ErrCodeInvalidEffect,
	"on_update":  ErrCodeInvalidEffect,
	"handlers":   ErrCodeInvalidHandler,
	"bindings":   ErrCodeInvalidBinding,
	"streams":    ErrCodeInvalidStream,
	"type":       ErrCodeInvalidKind,
	"kind":       ErrCodeInvalidKind,
	"cue":        ErrCodeBuildFailed,
}

// MapFieldToErrorCode returns the code for a compiler error field such as
// "signals.Go[0].op".
func MapFieldToErrorCode(field string) string {
	if i := strings.IndexAny(field, ".["); i >= 0 {
		field = field[:i]
	}
	if code, ok := fieldCodes[field]; ok {
		return code
	}
	return ErrCodeGeneric
}

// LoadMode selects whether compilation stops at the first error.
type LoadMode int

const (
	LoadModeFailFast LoadMode = iota
	LoadModeCollectAll
)

// LoadResult is a compiled content directory.
type LoadResult struct {
	Program   *compiler.Program
	FileCount int
}

// LoadError is a content problem reported with a CLI error code.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // zero when the error has no source position
}

func (e *LoadError) Error() string {
	if !e.Pos.IsValid() {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
}

func loadFailure(code, format string, args ...any) []error {
	return []error{&LoadError{Code: code, Message: fmt.Sprintf(format, args...)}}
}

// LoadContent evaluates the CUE package in dir and compiles its
// dispatchers and content roots. A nil result means the package could
// not be evaluated; otherwise the result comes with every compile error
// found, or only the first in LoadModeFailFast.
func LoadContent(dir string, mode LoadMode) (*LoadResult, []error) {
	switch info, err := os.Stat(dir); {
	case os.IsNotExist(err):
		return nil, loadFailure(ErrCodeNotFound, "content directory not found: %s", dir)
	case err != nil:
		return nil, loadFailure(ErrCodeNotFound, "error accessing content directory: %v", err)
	case !info.IsDir():
		return nil, loadFailure(ErrCodeNotFound, "not a directory: %s", dir)
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, loadFailure(ErrCodeScanError, "error scanning directory: %v", err)
	}
	if len(files) == 0 {
		return nil, loadFailure(ErrCodeNoFiles, "no CUE files found in %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, loadFailure(ErrCodeLoadFailed, "no CUE instances loaded")
	}
	if err := instances[0].Err; err != nil {
		return nil, loadFailure(ErrCodeLoadFailed, "loading CUE files: %v", err)
	}
	v := cuecontext.New().BuildInstance(instances[0])
	if err := v.Err(); err != nil {
		return nil, loadFailure(ErrCodeBuildFailed, "building CUE value: %v", err)
	}

	cmode := compiler.FailFast
	if mode == LoadModeCollectAll {
		cmode = compiler.CollectAll
	}
	prog, cerrs := compiler.CompileProgram(v, cmode)
	errs := make([]error, len(cerrs))
	for i, err := range cerrs {
		errs[i] = convertCompileError(err)
	}
	return &LoadResult{Program: prog, FileCount: len(files)}, errs
}

// FindCUEFiles returns every .cue file under dir.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// asLoadError returns err as a LoadError, filing errors of any other type
// under ErrCodeGeneric.
func asLoadError(err error) *LoadError {
	var le *LoadError
	if errors.As(err, &le) {
		return le
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// convertCompileError turns a compiler error into a LoadError. The
// "dispatcher.X: " or "content.X: " prefix the compiler wraps it in is
// kept so the failing entry stays identifiable.
func convertCompileError(err error) *LoadError {
	var ce *compiler.CompileError
	if !errors.As(err, &ce) {
		return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	prefix, ok := strings.CutSuffix(err.Error(), ce.Error())
	if !ok {
		prefix = ""
	}
	return &LoadError{
		Code:    MapFieldToErrorCode(ce.Field),
		Message: prefix + ce.Field + ": " + ce.Message,
		Pos:     ce.Pos,
	}
}
