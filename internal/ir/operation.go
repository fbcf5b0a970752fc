package ir

import (
	"fmt"
)

// OperationName is a management operation.
type OperationName string

const (
	OpAdd               OperationName = "add"
	OpRemove            OperationName = "remove"
	OpReadResource      OperationName = "read-resource"
	OpReadAttribute     OperationName = "read-attribute"
	OpWriteAttribute    OperationName = "write-attribute"
	OpUndefineAttribute OperationName = "undefine-attribute"
	OpComposite         OperationName = "composite"
)

// ValidOperations defines the operations the controller accepts.
var ValidOperations = map[OperationName]bool{
	OpAdd:               true,
	OpRemove:            true,
	OpReadResource:      true,
	OpReadAttribute:     true,
	OpWriteAttribute:    true,
	OpUndefineAttribute: true,
	OpComposite:         true,
}

// IsRead reports whether the operation never mutates the tree.
func (n OperationName) IsRead() bool {
	return n == OpReadResource || n == OpReadAttribute
}

// Operation is one management request addressed by path and version.
type Operation struct {
	Name      OperationName
	Address   Address
	Version   string // empty means the current version
	Attribute string // read/write/undefine-attribute
	Value     Value  // write-attribute
	Params    Object // add
	Recursive bool   // read-resource
	Steps     []Operation
}

// ValidationError represents a validation error with field path and message.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the operation's shape. Returns all errors (not
// fail-fast).
func (op Operation) Validate() []ValidationError {
	return op.validate("")
}

func (op Operation) validate(prefix string) []ValidationError {
	var errs []ValidationError
	field := func(name string) string { return prefix + name }

	if !ValidOperations[op.Name] {
		errs = append(errs, ValidationError{Field: field("operation"), Message: fmt.Sprintf("unknown operation %q", op.Name)})
		return errs
	}

	switch op.Name {
	case OpComposite:
		if len(op.Steps) == 0 {
			errs = append(errs, ValidationError{Field: field("steps"), Message: "composite requires at least one step"})
		}
		for i, step := range op.Steps {
			if step.Name == OpComposite {
				errs = append(errs, ValidationError{Field: field(fmt.Sprintf("steps[%d].operation", i)), Message: "composite steps cannot nest"})
				continue
			}
			errs = append(errs, step.validate(fmt.Sprintf("%ssteps[%d].", prefix, i))...)
		}
	case OpAdd, OpRemove:
		if op.Address.IsRoot() {
			errs = append(errs, ValidationError{Field: field("address"), Message: fmt.Sprintf("%s cannot target the root", op.Name)})
		}
	case OpReadAttribute, OpUndefineAttribute:
		if op.Attribute == "" {
			errs = append(errs, ValidationError{Field: field("name"), Message: "attribute name is required"})
		}
	case OpWriteAttribute:
		if op.Attribute == "" {
			errs = append(errs, ValidationError{Field: field("name"), Message: "attribute name is required"})
		}
		if op.Value == nil {
			errs = append(errs, ValidationError{Field: field("value"), Message: "value is required; use undefine-attribute to clear"})
		}
	}
	return errs
}

// ToObject converts the operation into its canonical object form. This is
// the form journaled by the store and shown in traces.
func (op Operation) ToObject() Object {
	obj := Object{
		"operation": String(op.Name),
	}
	if op.Name != OpComposite {
		obj["address"] = String(op.Address.String())
	}
	if op.Version != "" {
		obj["version"] = String(op.Version)
	}
	if op.Attribute != "" {
		obj["name"] = String(op.Attribute)
	}
	if op.Value != nil {
		obj["value"] = Clone(op.Value)
	}
	if len(op.Params) > 0 {
		obj["params"] = op.Params.Clone()
	}
	if op.Recursive {
		obj["recursive"] = Bool(true)
	}
	if len(op.Steps) > 0 {
		steps := make(List, len(op.Steps))
		for i, step := range op.Steps {
			steps[i] = step.ToObject()
		}
		obj["steps"] = steps
	}
	return obj
}

// OperationFromObject is the inverse of ToObject.
func OperationFromObject(obj Object) (Operation, error) {
	var op Operation

	name, ok := obj["operation"].(String)
	if !ok {
		return op, fmt.Errorf("operation: missing or not a string")
	}
	op.Name = OperationName(name)

	if raw, ok := obj["address"]; ok {
		s, ok := raw.(String)
		if !ok {
			return op, fmt.Errorf("address: not a string")
		}
		addr, err := ParseAddress(string(s))
		if err != nil {
			return op, err
		}
		op.Address = addr
	}
	if v, ok := obj["version"].(String); ok {
		op.Version = string(v)
	}
	if v, ok := obj["name"].(String); ok {
		op.Attribute = string(v)
	}
	if v, ok := obj["value"]; ok {
		op.Value = v
	}
	if raw, ok := obj["params"]; ok {
		params, ok := raw.(Object)
		if !ok {
			return op, fmt.Errorf("params: not an object")
		}
		op.Params = params
	}
	if v, ok := obj["recursive"].(Bool); ok {
		op.Recursive = bool(v)
	}
	if raw, ok := obj["steps"]; ok {
		steps, ok := raw.(List)
		if !ok {
			return op, fmt.Errorf("steps: not a list")
		}
		for i, s := range steps {
			stepObj, ok := s.(Object)
			if !ok {
				return op, fmt.Errorf("steps[%d]: not an object", i)
			}
			step, err := OperationFromObject(stepObj)
			if err != nil {
				return op, fmt.Errorf("steps[%d]: %w", i, err)
			}
			op.Steps = append(op.Steps, step)
		}
	}
	return op, nil
}

func (op Operation) String() string {
	switch {
	case op.Name == OpComposite:
		return fmt.Sprintf("composite(%d steps)", len(op.Steps))
	case op.Attribute != "":
		return fmt.Sprintf("%s:%s(%s)", op.Address, op.Name, op.Attribute)
	default:
		return fmt.Sprintf("%s:%s", op.Address, op.Name)
	}
}

// Result is the outcome of a successful management operation.
type Result struct {
	// Value is the read result: a document for read-resource, an attribute
	// value for read-attribute. Nil for writes.
	Value Value

	// Applied lists the current-schema operations the request turned into,
	// in apply order. Reads apply nothing.
	Applied []Operation
}
