package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/resmodel/internal/compiler"
	"github.com/roach88/resmodel/internal/engine"
	"github.com/roach88/resmodel/internal/ir"
	"github.com/roach88/resmodel/internal/registry"
	"github.com/roach88/resmodel/internal/store"
	"github.com/roach88/resmodel/internal/transform"
)

// Collaborator names of a System.
const (
	StoreCollaborator       = "store"
	DefinitionsCollaborator = "definitions"
	ControllerCollaborator  = "controller"
	JournalCheck            = "journal-check"
)

// DatabaseFile is the database file name inside the storage directory.
const DatabaseFile = "state.db"

// DefaultVersion is the model version when neither the configuration nor
// the definitions declare one.
const DefaultVersion = "1.0.0"

// SystemConfig describes a registry to assemble.
type SystemConfig struct {
	// SpecsDir holds the CUE resource definitions.
	SpecsDir string

	// Database is the SQLite path. Empty means DatabaseFile inside
	// StorageDir(Storage, DataDir); store.MemoryPath keeps everything in
	// memory.
	Database string
	Storage  string
	DataDir  string

	// Versions overrides the version policy declared by the definitions.
	Versions *compiler.VersionSpec

	Activation Activation
	Builders   map[string]engine.Builder
	Catalog    *transform.Catalog

	// Clock and IDs replace the controller's defaults; used for
	// deterministic runs.
	Clock engine.SeqSource
	IDs   engine.IDGenerator
}

// DatabasePath resolves where the store lives.
func (c SystemConfig) DatabasePath() string {
	if c.Database != "" {
		return c.Database
	}
	return filepath.Join(StorageDir(c.Storage, c.DataDir), DatabaseFile)
}

// System is a registry assembled by an Orchestrator: a store and the
// compiled definitions in the first stage, the controller in the second,
// and an optional lazy journal check in the third.
type System struct {
	cfg    SystemConfig
	logger *slog.Logger
	orch   *Orchestrator

	Store      *store.Store
	Model      *compiler.Model
	Registry   *registry.Registry
	Policy     ir.VersionPolicy
	Controller *engine.Controller
	Restored   int // resources loaded from the snapshot
}

// NewSystem prepares a system; nothing is opened until Start.
func NewSystem(cfg SystemConfig, logger *slog.Logger) (*System, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Activation == "" {
		cfg.Activation = DefaultActivation
	}
	if cfg.Catalog == nil {
		cfg.Catalog = transform.NewCatalog()
	}

	s := &System{cfg: cfg, logger: logger}
	s.orch = New(WithActivation(cfg.Activation), WithLogger(logger))

	stages := []struct {
		name    string
		members []Collaborator
	}{
		{"foundation", []Collaborator{
			{Name: StoreCollaborator, Start: s.openStore, Stop: s.closeStore},
			{Name: DefinitionsCollaborator, Start: s.loadDefinitions},
		}},
		{"management", []Collaborator{
			{Name: ControllerCollaborator, Start: s.startController, Stop: s.stopController},
		}},
		{"verification", []Collaborator{
			{Name: JournalCheck, Start: s.checkJournal, Optional: true, Lazy: true},
		}},
	}
	for _, st := range stages {
		if err := s.orch.AddStage(st.name, st.members...); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start brings the system up.
func (s *System) Start(ctx context.Context) (*Report, error) {
	return s.orch.Start(ctx)
}

// Activate starts a collaborator deferred by lazy activation.
func (s *System) Activate(ctx context.Context, name string) error {
	return s.orch.Activate(ctx, name)
}

// Stop shuts the system down. It never fails.
func (s *System) Stop(ctx context.Context) {
	s.orch.Stop(ctx)
}

func (s *System) openStore(context.Context) error {
	path := s.cfg.DatabasePath()
	if path != store.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create storage directory: %w", err)
		}
	}
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	s.Store = st
	s.logger.Debug("store opened", "path", path)
	return nil
}

func (s *System) closeStore(context.Context) error {
	if s.Store == nil {
		return nil
	}
	err := s.Store.Close()
	s.Store = nil
	return err
}

func (s *System) loadDefinitions(context.Context) error {
	res, err := compiler.LoadDir(s.cfg.SpecsDir)
	if err != nil {
		return err
	}
	if verrs := compiler.Validate(res.Model, s.cfg.Catalog); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, e := range verrs {
			errs[i] = e
		}
		return ir.Errorf(ir.KindConfigurationConflict, "%d invalid definitions", len(verrs)).Wrap(errors.Join(errs...))
	}

	spec := s.cfg.Versions
	if spec == nil {
		spec = res.Model.Versions
	}
	if spec == nil {
		spec = &compiler.VersionSpec{Current: DefaultVersion}
	}
	policy, err := spec.Policy()
	if err != nil {
		return fmt.Errorf("version policy: %w", err)
	}

	reg, err := registry.Build(res.Model.Resources)
	if err != nil {
		return err
	}

	s.Model = res.Model
	s.Registry = reg
	s.Policy = policy
	s.logger.Debug("definitions loaded",
		"files", res.FileCount,
		"resources", reg.Len(),
		"version", policy.Current().String(),
	)
	return nil
}

func (s *System) startController(ctx context.Context) error {
	opts := []engine.Option{
		engine.WithStore(s.Store),
		engine.WithLogger(s.logger),
		engine.WithCatalog(s.cfg.Catalog),
	}
	for name, b := range s.cfg.Builders {
		opts = append(opts, engine.WithBuilder(name, b))
	}
	if s.cfg.Clock != nil {
		opts = append(opts, engine.WithClock(s.cfg.Clock))
	}
	if s.cfg.IDs != nil {
		opts = append(opts, engine.WithIDGenerator(s.cfg.IDs))
	}

	c, err := engine.New(s.Registry, s.Policy, opts...)
	if err != nil {
		return err
	}
	n, err := c.Restore(ctx)
	if err != nil {
		c.Close()
		return err
	}
	s.Controller = c
	s.Restored = n
	return nil
}

func (s *System) stopController(context.Context) error {
	if s.Controller == nil {
		return nil
	}
	err := s.Controller.Close()
	s.Controller = nil
	return err
}

// checkJournal replays the journal and compares it with the snapshot.
func (s *System) checkJournal(ctx context.Context) error {
	res, err := s.Controller.Replay(ctx)
	if err != nil {
		return err
	}
	if !res.Match {
		return fmt.Errorf("journal (seq %d, hash %s) does not reproduce the snapshot (seq %d, hash %s)",
			res.LastSeq, res.ReplayHash, res.SnapshotSeq, res.SnapshotHash)
	}
	s.logger.Debug("journal verified", "operations", res.Operations, "hash", res.ReplayHash)
	return nil
}
