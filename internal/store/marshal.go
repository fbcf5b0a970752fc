package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/resmodel/internal/ir"
)

// marshalModel converts a resource model to canonical JSON TEXT for storage.
func marshalModel(model ir.Object) (string, error) {
	if model == nil {
		model = ir.Object{}
	}
	data, err := ir.MarshalCanonical(model)
	if err != nil {
		return "", fmt.Errorf("marshal model: %w", err)
	}
	return string(data), nil
}

// unmarshalModel parses canonical JSON TEXT to a model.
// Uses ir.Object.UnmarshalJSON which keeps large integers exact.
func unmarshalModel(data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return ir.Object{}, nil
	}
	var obj ir.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal model: %w", err)
	}
	return obj, nil
}

// marshalOperation converts an operation to its canonical JSON object form.
func marshalOperation(op ir.Operation) (string, error) {
	data, err := ir.MarshalCanonical(op.ToObject())
	if err != nil {
		return "", fmt.Errorf("marshal operation: %w", err)
	}
	return string(data), nil
}

func unmarshalOperation(data string) (ir.Operation, error) {
	var obj ir.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return ir.Operation{}, fmt.Errorf("unmarshal operation: %w", err)
	}
	op, err := ir.OperationFromObject(obj)
	if err != nil {
		return ir.Operation{}, fmt.Errorf("unmarshal operation: %w", err)
	}
	return op, nil
}

// marshalOperations converts an ordered operation list to a canonical JSON
// array.
func marshalOperations(ops []ir.Operation) (string, error) {
	list := make(ir.List, len(ops))
	for i, op := range ops {
		list[i] = op.ToObject()
	}
	data, err := ir.MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("marshal operations: %w", err)
	}
	return string(data), nil
}

func unmarshalOperations(data string) ([]ir.Operation, error) {
	var list ir.List
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return nil, fmt.Errorf("unmarshal operations: %w", err)
	}
	ops := make([]ir.Operation, 0, len(list))
	for i, v := range list {
		obj, ok := v.(ir.Object)
		if !ok {
			return nil, fmt.Errorf("unmarshal operations: [%d] is not an object", i)
		}
		op, err := ir.OperationFromObject(obj)
		if err != nil {
			return nil, fmt.Errorf("unmarshal operations: [%d]: %w", i, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}
