package cli

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"

	"github.com/roach88/resmodel/internal/compiler"
)

// LoadError represents an error that occurred during definition loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
	Stage   compiler.LoadStage
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSpecs loads and compiles the CUE definitions of a directory. Every
// failure comes back as a *LoadError carrying a CLI error code.
func LoadSpecs(dir string) (*compiler.LoadResult, error) {
	res, err := compiler.LoadDir(dir)
	if err != nil {
		return nil, convertLoadError(err)
	}
	return res, nil
}

// convertLoadError maps a compiler load failure onto a LoadError.
func convertLoadError(err error) *LoadError {
	var stage compiler.LoadStage
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		stage = loadErr.Stage
	}

	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
			Stage:   stage,
		}
	}
	if loadErr == nil {
		return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	code := ErrCodeGeneric
	switch loadErr.Stage {
	case compiler.StageNotFound:
		code = ErrCodeNotFound
	case compiler.StageScan:
		code = ErrCodeScanError
	case compiler.StageNoFiles:
		code = ErrCodeNoFiles
	case compiler.StageLoad:
		code = ErrCodeLoadFailed
	case compiler.StageBuild:
		code = ErrCodeBuildFailed
	}
	return &LoadError{Code: code, Message: loadErr.Err.Error(), Stage: stage}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error

	// Definition compile errors
	ErrCodeInvalidPath      = "E010" // Malformed resource path or alias
	ErrCodeInvalidAttribute = "E011" // Malformed attribute declaration
	ErrCodeInvalidBase      = "E012" // Unknown or cyclic attribute set base
	ErrCodeInvalidRule      = "E013" // Malformed transformation rule
	ErrCodeInvalidVersions  = "E014" // Malformed versions block
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "resource", "path", "legacy_paths", "children", "required_children":
		return ErrCodeInvalidPath
	case "attributes", "type", "element_type", "default", "allowed", "value":
		return ErrCodeInvalidAttribute
	case "bases", "attribute_sets":
		return ErrCodeInvalidBase
	case "transformations", "applies_below", "path_redirect", "attribute_rewrites", "operation_overrides", "map_children":
		return ErrCodeInvalidRule
	case "versions":
		return ErrCodeInvalidVersions
	case "cue":
		return ErrCodeBuildFailed
	default:
		return ErrCodeGeneric
	}
}
