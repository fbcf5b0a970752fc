package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/resmodel/internal/ir"
)

// Collaborator is one service the registry depends on.
type Collaborator struct {
	Name  string
	Start func(ctx context.Context) error
	Stop  func(ctx context.Context) error // optional

	// Optional collaborators degrade the system when they fail to start
	// instead of aborting startup.
	Optional bool

	// Lazy collaborators start during Start only under eager activation.
	Lazy bool
}

// Degraded records an optional collaborator that failed to start.
type Degraded struct {
	Name string
	Err  error
}

// Report describes the outcome of a successful Start.
type Report struct {
	Started  []string   // in start order; a stage in declaration order
	Degraded []Degraded // optional collaborators that failed
	Deferred []string   // lazy collaborators waiting for Activate
	Duration time.Duration
}

// Partial reports whether startup succeeded without every collaborator.
func (r *Report) Partial() bool {
	return len(r.Degraded) > 0
}

type stage struct {
	name    string
	members []Collaborator
}

// Orchestrator starts and stops collaborators in stages.
//
// Thread-safety: all methods are safe for concurrent use; Start, Stop and
// Activate are serialised.
type Orchestrator struct {
	mu         sync.Mutex
	stages     []stage
	activation Activation
	logger     *slog.Logger

	running bool
	started []Collaborator // in start order
	report  *Report
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithActivation sets the activation policy. Default: ActivationEager.
func WithActivation(a Activation) Option {
	return func(o *Orchestrator) {
		o.activation = a
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// New creates an orchestrator without stages.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		activation: DefaultActivation,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// AddStage appends a stage. Collaborator names must be unique and stages
// cannot be added once started.
func (o *Orchestrator) AddStage(name string, members ...Collaborator) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return fmt.Errorf("stage %s: orchestrator already started", name)
	}
	for _, m := range members {
		if m.Name == "" || m.Start == nil {
			return fmt.Errorf("stage %s: collaborator needs a name and a start function", name)
		}
		if _, ok := o.find(m.Name); ok {
			return fmt.Errorf("stage %s: duplicate collaborator %q", name, m.Name)
		}
	}
	o.stages = append(o.stages, stage{name: name, members: members})
	return nil
}

func (o *Orchestrator) find(name string) (Collaborator, bool) {
	for _, s := range o.stages {
		for _, m := range s.members {
			if m.Name == name {
				return m, true
			}
		}
	}
	return Collaborator{}, false
}

// Running reports whether Start succeeded and Stop has not run since.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Start runs every stage. Calling Start on a running orchestrator returns
// the first report and starts nothing.
func (o *Orchestrator) Start(ctx context.Context) (*Report, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return o.report, nil
	}

	begin := time.Now()
	report := &Report{}
	o.logger.Debug("bootstrap starting", "stages", len(o.stages), "activation", string(o.activation))

	for _, s := range o.stages {
		var members []Collaborator
		for _, m := range s.members {
			if m.Lazy && o.activation == ActivationLazy {
				report.Deferred = append(report.Deferred, m.Name)
				continue
			}
			members = append(members, m)
		}

		started, degraded, err := o.runStage(ctx, s.name, members)
		o.started = append(o.started, started...)
		if err != nil {
			o.stopAll(context.WithoutCancel(ctx))
			return nil, err
		}
		for _, m := range started {
			report.Started = append(report.Started, m.Name)
		}
		report.Degraded = append(report.Degraded, degraded...)
	}

	report.Duration = time.Since(begin)
	o.running = true
	o.report = report

	o.logger.Info("bootstrap complete",
		"started", len(report.Started),
		"degraded", len(report.Degraded),
		"deferred", len(report.Deferred),
		"duration", report.Duration,
	)
	for _, d := range report.Degraded {
		o.logger.Warn("collaborator degraded", "name", d.Name, "error", d.Err)
	}
	return report, nil
}

// runStage starts members concurrently. It returns the members that
// started, in declaration order, even when another member failed.
func (o *Orchestrator) runStage(ctx context.Context, name string, members []Collaborator) ([]Collaborator, []Degraded, error) {
	errs := make([]error, len(members))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range members {
		g.Go(func() error {
			o.logger.Debug("starting collaborator", "stage", name, "name", m.Name)
			if err := m.Start(gctx); err != nil {
				errs[i] = err
				if m.Optional {
					return nil
				}
				return startFailure(m.Name, err)
			}
			return nil
		})
	}
	err := g.Wait()

	var started []Collaborator
	var degraded []Degraded
	for i, m := range members {
		switch {
		case errs[i] == nil:
			started = append(started, m)
		case m.Optional:
			degraded = append(degraded, Degraded{Name: m.Name, Err: errs[i]})
		}
	}
	return started, degraded, err
}

func startFailure(name string, err error) error {
	return ir.Errorf(ir.KindBootstrapFailure, "collaborator %s failed to start", name).Wrap(err)
}

// Activate starts a collaborator deferred by lazy activation. Activating
// a started collaborator does nothing.
func (o *Orchestrator) Activate(ctx context.Context, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return fmt.Errorf("activate %s: orchestrator not started", name)
	}
	m, ok := o.find(name)
	if !ok {
		return ir.Errorf(ir.KindNotFound, "no collaborator named %q", name)
	}
	i := slices.Index(o.report.Deferred, name)
	if i < 0 {
		return nil
	}

	if err := m.Start(ctx); err != nil {
		if m.Optional {
			o.report.Degraded = append(o.report.Degraded, Degraded{Name: name, Err: err})
			o.report.Deferred = slices.Delete(o.report.Deferred, i, i+1)
			o.logger.Warn("collaborator degraded", "name", name, "error", err)
			return nil
		}
		return startFailure(name, err)
	}
	o.report.Deferred = slices.Delete(o.report.Deferred, i, i+1)
	o.report.Started = append(o.report.Started, name)
	o.started = append(o.started, m)
	o.logger.Info("collaborator activated", "name", name)
	return nil
}

// Stop stops every started collaborator in reverse start order. Failures
// are logged; Stop never fails.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.stopAll(ctx)
	o.running = false
	o.report = nil
}

func (o *Orchestrator) stopAll(ctx context.Context) {
	for i := len(o.started) - 1; i >= 0; i-- {
		m := o.started[i]
		if m.Stop == nil {
			continue
		}
		if err := m.Stop(ctx); err != nil {
			o.logger.Warn("stopping collaborator failed", "name", m.Name, "error", err)
			continue
		}
		o.logger.Debug("collaborator stopped", "name", m.Name)
	}
	o.started = nil
}
