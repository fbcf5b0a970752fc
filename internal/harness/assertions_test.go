package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/resmodel/internal/ir"
)

func TestMatchValue(t *testing.T) {
	actual := ir.Object{
		"data-source": ir.String("ds"),
		"table": ir.Object{
			"binary": ir.Object{"prefix": ir.String("b")},
			"string": ir.Object{},
		},
		"columns": ir.List{ir.String("a"), ir.String("b")},
	}

	tests := []struct {
		name     string
		expected ir.Value
		want     bool
	}{
		{"empty object matches", ir.Object{}, true},
		{"subset", ir.Object{"data-source": ir.String("ds")}, true},
		{"nested subset", ir.Object{"table": ir.Object{"binary": ir.Object{}}}, true},
		{"missing key", ir.Object{"dialect": ir.String("H2")}, false},
		{"different value", ir.Object{"data-source": ir.String("other")}, false},
		{"lists are exact", ir.Object{"columns": ir.List{ir.String("a")}}, false},
		{"whole list", ir.Object{"columns": ir.List{ir.String("a"), ir.String("b")}}, true},
		{"scalar against object", ir.String("ds"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchValue(actual, tt.expected))
		})
	}

	assert.True(t, matchValue(ir.Int(3), ir.Int(3)))
	assert.False(t, matchValue(nil, ir.Object{}))
}

func TestAssertErrorKind(t *testing.T) {
	result := NewResult()
	result.AddTrace(TraceEvent{Phase: PhaseSetup, Step: 1, Operation: "/a=b:add", Outcome: OutcomeSuccess})
	result.AddTrace(TraceEvent{Phase: PhaseFlow, Step: 1, Operation: "/a=b:remove", Outcome: OutcomeSuccess})
	result.AddTrace(TraceEvent{Phase: PhaseFlow, Step: 2, Operation: "/a=b:read-resource", Outcome: OutcomeFailure, ErrorKind: "NotFound"})

	require.NoError(t, assertErrorKind(result, Assertion{Type: AssertErrorKind, Step: 2, Kind: "NotFound"}))

	err := assertErrorKind(result, Assertion{Type: AssertErrorKind, Step: 2, Kind: "ValidationFailure"})
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "failure with NotFound", aerr.Actual)

	err = assertErrorKind(result, Assertion{Type: AssertErrorKind, Step: 1, Kind: "NotFound"})
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "success", aerr.Actual)

	err = assertErrorKind(result, Assertion{Type: AssertErrorKind, Step: 3, Kind: "NotFound"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no flow step 3")
}

func TestAssertionError_Message(t *testing.T) {
	err := &AssertionError{
		Type:     AssertResourceAbsent,
		Expected: "no resource at /a=b",
		Actual:   "resource exists",
		Trace: []TraceEvent{
			{Phase: PhaseFlow, Step: 1, Operation: "/a=b:add", Version: "1.4.0", Outcome: OutcomeSuccess},
			{Phase: PhaseFlow, Step: 2, Operation: "/a=b:remove", Outcome: OutcomeFailure, ErrorKind: "NotFound"},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: resource_absent")
	assert.Contains(t, msg, "Expected: no resource at /a=b")
	assert.Contains(t, msg, "[1] flow /a=b:add@1.4.0 -> success")
	assert.Contains(t, msg, "[2] flow /a=b:remove -> failure (NotFound)")
}

func TestEvaluateAssertions_RequiresController(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertResourceExists, Address: "/a=b"},
		{Type: "bogus"},
	}, nil)

	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "requires a controller")
	assert.Contains(t, errs[1], `unknown assertion type "bogus"`)
}

func TestRender(t *testing.T) {
	assert.Equal(t, "<none>", render(nil))
	assert.Equal(t, `{"a":[1,true]}`, render(ir.Object{"a": ir.List{ir.Int(1), ir.Bool(true)}}))
}
