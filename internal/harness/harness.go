package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/resmodel/internal/bootstrap"
	"github.com/roach88/resmodel/internal/engine"
	"github.com/roach88/resmodel/internal/ir"
	"github.com/roach88/resmodel/internal/store"
	"github.com/roach88/resmodel/internal/testutil"
)

// Harness executes one scenario against a bootstrapped system.
type Harness struct {
	system *bootstrap.System
	clock  *testutil.DeterministicClock
	ids    *testutil.SequentialIDs
	logger *slog.Logger

	mu    sync.Mutex
	built []string // drained after every step
}

// Run executes a scenario and returns the result.
//
// Each scenario runs on a fresh in-memory store with a deterministic clock
// and sequential operation IDs, so identical scenarios produce identical
// traces.
//
// Execution flow:
//  1. Bootstrap store, definitions and controller from scenario.Specs
//  2. Execute setup steps; any failure aborts the run
//  3. Execute flow steps, checking expect clauses
//  4. Evaluate assertions against the final tree
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()
	h := &Harness{
		clock:  testutil.NewDeterministicClock(),
		ids:    testutil.NewSequentialIDs(""),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	builders := make(map[string]engine.Builder, len(scenario.Builders))
	for _, name := range scenario.Builders {
		builders[name] = h.record
	}

	sys, err := bootstrap.NewSystem(bootstrap.SystemConfig{
		SpecsDir:   scenario.Specs,
		Database:   store.MemoryPath,
		Activation: bootstrap.ActivationLazy,
		Builders:   builders,
		Clock:      h.clock,
		IDs:        h.ids,
	}, h.logger)
	if err != nil {
		return nil, err
	}
	if _, err := sys.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to bootstrap: %w", err)
	}
	defer sys.Stop(ctx)
	h.system = sys

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{Ctx: ctx, Controller: sys.Controller}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	doc, err := sys.Controller.Tree().Document(ir.Address{})
	if err != nil {
		return nil, fmt.Errorf("failed to read final tree: %w", err)
	}
	result.Document = doc
	return result, nil
}

// record is the builder bound to every name in Scenario.Builders.
func (h *Harness) record(_ context.Context, addr ir.Address, _ ir.Object) (engine.RuntimeHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.built = append(h.built, addr.String())
	return engine.HandleFunc(func() error { return nil }), nil
}

func (h *Harness) drainBuilt() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	built := h.built
	h.built = nil
	return built
}

// executeSetup runs the setup steps. Setup establishes state, so the
// first failure aborts the scenario.
func (h *Harness) executeSetup(ctx context.Context, setup []Step, result *Result) error {
	for i, step := range setup {
		ev, err := h.execute(ctx, PhaseSetup, i+1, step)
		if err != nil {
			return fmt.Errorf("setup step %d: %w", i+1, err)
		}
		result.AddTrace(ev)
		if ev.Outcome != OutcomeSuccess {
			return fmt.Errorf("setup step %d: %s failed: %s", i+1, ev.Operation, ev.ErrorKind)
		}
	}
	return nil
}

// executeFlow runs the flow steps and checks their expect clauses. A
// failing operation is an outcome, not a harness error.
func (h *Harness) executeFlow(ctx context.Context, flow []Step, result *Result) error {
	for i, step := range flow {
		ev, err := h.execute(ctx, PhaseFlow, i+1, step)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i+1, err)
		}
		result.AddTrace(ev)

		expect := step.Expect
		if expect == nil {
			expect = &ExpectClause{Outcome: OutcomeSuccess}
		}
		for _, msg := range checkExpect(ev, expect) {
			result.AddError(fmt.Sprintf("flow step %d (%s): %s", i+1, ev.Operation, msg))
		}
	}
	return nil
}

// execute runs one step. Returned errors are harness errors (malformed
// step); operation failures are recorded on the event.
func (h *Harness) execute(ctx context.Context, phase string, n int, step Step) (TraceEvent, error) {
	op, err := step.operation()
	if err != nil {
		return TraceEvent{}, err
	}

	ev := TraceEvent{
		Phase:     phase,
		Step:      n,
		Operation: op.String(),
		Version:   op.Version,
	}

	before := h.clock.Current()
	res, err := h.system.Controller.Execute(ctx, op)
	built := h.drainBuilt()
	if err != nil {
		ev.Outcome = OutcomeFailure
		ev.ErrorKind = string(ir.KindOf(err))
		h.logger.Info("step failed", "phase", phase, "step", n, "operation", ev.Operation, "error", err)
		return ev, nil
	}

	ev.Outcome = OutcomeSuccess
	ev.Result = res.Value
	ev.Built = built
	for _, applied := range res.Applied {
		ev.Applied = append(ev.Applied, applied.String())
	}
	if seq := h.clock.Current(); seq != before {
		ev.Seq = seq
		ev.ID = h.ids.Last()
	}
	h.logger.Info("step completed", "phase", phase, "step", n, "operation", ev.Operation, "seq", ev.Seq)
	return ev, nil
}

// checkExpect compares an executed step with its expect clause.
func checkExpect(ev TraceEvent, expect *ExpectClause) []string {
	var errs []string
	if ev.Outcome != expect.Outcome {
		detail := ""
		if ev.ErrorKind != "" {
			detail = " (" + ev.ErrorKind + ")"
		}
		errs = append(errs, fmt.Sprintf("expected outcome %s, got %s%s", expect.Outcome, ev.Outcome, detail))
		return errs
	}
	if expect.ErrorKind != "" && ev.ErrorKind != expect.ErrorKind {
		errs = append(errs, fmt.Sprintf("expected error kind %s, got %q", expect.ErrorKind, ev.ErrorKind))
	}
	if expect.Result != nil {
		want, err := ir.FromAny(expect.Result)
		if err != nil {
			return append(errs, fmt.Sprintf("expected result: %v", err))
		}
		if !matchValue(ev.Result, want) {
			errs = append(errs, fmt.Sprintf("expected result %s, got %s", render(want), render(ev.Result)))
		}
	}
	return errs
}
