package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// LoadStage names the step of LoadDir that failed.
type LoadStage string

const (
	StageNotFound LoadStage = "not_found" // directory missing or not a directory
	StageScan     LoadStage = "scan"      // walking the directory failed
	StageNoFiles  LoadStage = "no_files"  // no .cue files
	StageLoad     LoadStage = "load"      // CUE instance load failed
	StageBuild    LoadStage = "build"     // CUE evaluation failed
	StageCompile  LoadStage = "compile"   // definitions did not compile
)

// LoadError reports a failure to turn a directory into a Model.
type LoadError struct {
	Stage LoadStage
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// LoadResult is a compiled definitions directory.
type LoadResult struct {
	Model     *Model
	FileCount int // Number of CUE files found
}

// LoadDir loads every CUE file of dir as one instance and compiles it.
func LoadDir(dir string) (*LoadResult, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Stage: StageNotFound, Err: fmt.Errorf("specs directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Stage: StageNotFound, Err: fmt.Errorf("error accessing specs directory: %w", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Stage: StageNotFound, Err: fmt.Errorf("not a directory: %s", dir)}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Stage: StageScan, Err: fmt.Errorf("error scanning directory: %w", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Stage: StageNoFiles, Err: fmt.Errorf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	cfg := &load.Config{Dir: dir}
	instances := load.Instances([]string{"."}, cfg)
	if len(instances) == 0 {
		return nil, &LoadError{Stage: StageLoad, Err: fmt.Errorf("no CUE instances loaded")}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Stage: StageLoad, Err: fmt.Errorf("loading CUE files: %w", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Stage: StageBuild, Err: formatCUEError(err)}
	}

	model, err := CompileModel(value)
	if err != nil {
		return nil, &LoadError{Stage: StageCompile, Err: err}
	}

	return &LoadResult{Model: model, FileCount: len(cueFiles)}, nil
}

// CompileString compiles definitions from CUE source text. Used by tests and
// by scenarios that embed their definitions.
func CompileString(src string) (*Model, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileModel(v)
}

// FindCUEFiles walks the directory and returns all .cue file paths.
// Only the top level is read: load.Instances compiles one package per
// directory.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}
