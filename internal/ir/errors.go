package ir

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies every structured error the resource model reports.
type ErrorKind string

const (
	KindDuplicatePath         ErrorKind = "DuplicatePath"
	KindNotFound              ErrorKind = "NotFound"
	KindConfigurationConflict ErrorKind = "ConfigurationConflict"
	KindUnsupportedRewrite    ErrorKind = "UnsupportedRewrite"
	KindValidationFailure     ErrorKind = "ValidationFailure"
	KindBootstrapFailure      ErrorKind = "BootstrapFailure"
)

// Sentinels for errors.Is checks. Every *Error matches the sentinel of its
// kind.
var (
	ErrDuplicatePath         = errors.New("duplicate path")
	ErrNotFound              = errors.New("not found")
	ErrConfigurationConflict = errors.New("configuration conflict")
	ErrUnsupportedRewrite    = errors.New("unsupported rewrite")
	ErrValidationFailure     = errors.New("validation failure")
	ErrBootstrapFailure      = errors.New("bootstrap failure")
)

var sentinels = map[ErrorKind]error{
	KindDuplicatePath:         ErrDuplicatePath,
	KindNotFound:              ErrNotFound,
	KindConfigurationConflict: ErrConfigurationConflict,
	KindUnsupportedRewrite:    ErrUnsupportedRewrite,
	KindValidationFailure:     ErrValidationFailure,
	KindBootstrapFailure:      ErrBootstrapFailure,
}

// Error is a structured error identifying the offending address, attribute
// and client version.
type Error struct {
	Kind      ErrorKind
	Address   string
	Attribute string
	Version   string
	Message   string
	Cause     error
}

// Errorf creates an Error of the given kind.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Address != "" {
		b.WriteString(" at ")
		b.WriteString(e.Address)
	}
	if e.Attribute != "" {
		fmt.Fprintf(&b, " attribute %q", e.Attribute)
	}
	if e.Version != "" {
		fmt.Fprintf(&b, " (version %s)", e.Version)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the originating cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// At returns a copy of e with the address set.
func (e *Error) At(addr Address) *Error {
	c := *e
	c.Address = addr.String()
	return &c
}

// Attr returns a copy of e with the attribute set.
func (e *Error) Attr(name string) *Error {
	c := *e
	c.Attribute = name
	return &c
}

// AtVersion returns a copy of e with the client version set.
func (e *Error) AtVersion(v string) *Error {
	c := *e
	c.Version = v
	return &c
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	c := *e
	c.Cause = cause
	return &c
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// err carries none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// AsError extracts the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
