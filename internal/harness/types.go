package harness

import "github.com/roach88/resmodel/internal/ir"

// Trace phases.
const (
	PhaseSetup = "setup"
	PhaseFlow  = "flow"
)

// TraceEvent records one executed operation.
type TraceEvent struct {
	Phase     string   `json:"phase"`
	Step      int      `json:"step"` // 1-based within the phase
	Operation string   `json:"operation"`
	Version   string   `json:"version,omitempty"`
	Outcome   string   `json:"outcome"`
	ErrorKind string   `json:"error_kind,omitempty"`
	Seq       int64    `json:"seq,omitempty"` // 0 when nothing was committed
	ID        string   `json:"id,omitempty"`
	Applied   []string `json:"applied,omitempty"`
	Built     []string `json:"built,omitempty"`
	Result    ir.Value `json:"result,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every expect clause and assertion
	// matched.
	Pass bool `json:"pass"`

	// Trace contains setup and flow operations in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Document is the final tree as a nested canonical document.
	Document ir.Object `json:"document,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}

// FlowEvent returns the trace event of flow step n (1-based).
func (r *Result) FlowEvent(n int) (TraceEvent, bool) {
	for _, ev := range r.Trace {
		if ev.Phase == PhaseFlow && ev.Step == n {
			return ev, true
		}
	}
	return TraceEvent{}, false
}
