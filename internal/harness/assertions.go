package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/resmodel/internal/engine"
	"github.com/roach88/resmodel/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s", i+1, ev.Phase, ev.Operation)
			if ev.Version != "" {
				fmt.Fprintf(&buf, "@%s", ev.Version)
			}
			fmt.Fprintf(&buf, " -> %s", ev.Outcome)
			if ev.ErrorKind != "" {
				fmt.Fprintf(&buf, " (%s)", ev.ErrorKind)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// AssertionContext provides the system state assertions inspect.
type AssertionContext struct {
	Ctx        context.Context
	Controller *engine.Controller
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertErrorKind:
			err = assertErrorKind(result, assertion)
		case AssertResourceExists, AssertResourceAbsent, AssertModelEquals, AssertReplayMatches:
			if actx == nil || actx.Controller == nil {
				err = fmt.Errorf("assertion[%d]: %s requires a controller", i, assertion.Type)
				break
			}
			switch assertion.Type {
			case AssertResourceExists:
				err = assertExists(actx.Controller, assertion, true, result.Trace)
			case AssertResourceAbsent:
				err = assertExists(actx.Controller, assertion, false, result.Trace)
			case AssertModelEquals:
				err = assertModelEquals(actx.Controller, assertion, result.Trace)
			case AssertReplayMatches:
				err = assertReplayMatches(actx, result.Trace)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// assertExists checks whether a resource is present at the canonical
// address.
func assertExists(c *engine.Controller, a Assertion, want bool, trace []TraceEvent) error {
	addr, err := ir.ParseAddress(a.Address)
	if err != nil {
		return fmt.Errorf("%s: %w", a.Type, err)
	}
	if c.Tree().Exists(addr) == want {
		return nil
	}

	expected, actual := "resource at "+a.Address, "no resource"
	if !want {
		expected, actual = "no resource at "+a.Address, "resource exists"
	}
	return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Trace: trace}
}

// assertModelEquals compares the stored model at an address. Stored models
// hold explicitly set attributes only; defaults are not filled in.
func assertModelEquals(c *engine.Controller, a Assertion, trace []TraceEvent) error {
	addr, err := ir.ParseAddress(a.Address)
	if err != nil {
		return fmt.Errorf("model_equals: %w", err)
	}
	want, err := ir.ObjectFromAny(a.Model)
	if err != nil {
		return fmt.Errorf("model_equals: %w", err)
	}

	got, ok := c.Tree().Model(addr)
	if !ok {
		return &AssertionError{
			Type:     AssertModelEquals,
			Expected: fmt.Sprintf("model %s at %s", render(want), a.Address),
			Actual:   "no resource",
			Trace:    trace,
		}
	}
	if !ir.Equal(got, want) {
		return &AssertionError{
			Type:     AssertModelEquals,
			Expected: render(want),
			Actual:   render(got),
			Trace:    trace,
		}
	}
	return nil
}

// assertErrorKind checks that a flow step failed with the given kind.
func assertErrorKind(result *Result, a Assertion) error {
	ev, ok := result.FlowEvent(a.Step)
	if !ok {
		return fmt.Errorf("error_kind: no flow step %d in trace", a.Step)
	}
	if ev.Outcome == OutcomeFailure && ev.ErrorKind == a.Kind {
		return nil
	}

	actual := "success"
	if ev.Outcome == OutcomeFailure {
		actual = "failure with " + ev.ErrorKind
	}
	return &AssertionError{
		Type:     AssertErrorKind,
		Expected: fmt.Sprintf("flow step %d (%s) fails with %s", a.Step, ev.Operation, a.Kind),
		Actual:   actual,
		Trace:    result.Trace,
	}
}

// assertReplayMatches replays the journal into a scratch tree and
// compares it with the stored snapshot.
func assertReplayMatches(actx *AssertionContext, trace []TraceEvent) error {
	ctx := actx.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := actx.Controller.Replay(ctx)
	if err != nil {
		return fmt.Errorf("replay_matches: %w", err)
	}
	if res.Match {
		return nil
	}
	return &AssertionError{
		Type:     AssertReplayMatches,
		Expected: fmt.Sprintf("snapshot hash %s at seq %d", res.SnapshotHash, res.SnapshotSeq),
		Actual:   fmt.Sprintf("replay hash %s at seq %d", res.ReplayHash, res.LastSeq),
		Trace:    trace,
	}
}

// matchValue reports whether actual matches expected. Objects match as a
// subset (extra keys in actual are ignored, recursively); lists and
// scalars must be equal.
func matchValue(actual, expected ir.Value) bool {
	exp, ok := expected.(ir.Object)
	if !ok {
		return ir.Equal(actual, expected)
	}
	act, ok := actual.(ir.Object)
	if !ok {
		return false
	}
	for key, want := range exp {
		got, exists := act[key]
		if !exists || !matchValue(got, want) {
			return false
		}
	}
	return true
}

// render formats a value as canonical JSON for messages.
func render(v ir.Value) string {
	if v == nil {
		return "<none>"
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
