package transform

import (
	"github.com/roach88/resmodel/internal/ir"
)

// EntryDocument returns the document of the entry child key of mc inside
// model, the current model of the node holding the map attribute.
func EntryDocument(model ir.Object, mc ir.MapChildren, key string) (ir.Object, bool) {
	entries, ok := model[mc.Attribute].(ir.Object)
	if !ok {
		return nil, false
	}
	val, ok := entries[key]
	if !ok {
		return nil, false
	}
	return ir.Object{mc.EntryAttribute(): ir.Clone(val)}, true
}

// RewriteEntry translates op, sent by the plan's client to the entry child
// key of mc, into a write of the map attribute on plan.Address. plan is
// the plan of the node holding the map.
//
//   - add creates the entry from the entry attribute's parameter
//   - remove deletes the entry
//   - write-attribute of the entry attribute replaces the entry's value
//
// The map is written whole. Removing its last entry undefines it.
func (r *Resolver) RewriteEntry(op ir.Operation, plan *Plan, mc ir.MapChildren, key string, view View) ([]ir.Operation, error) {
	entryPath := plan.EffectivePath.Append(ir.PE(mc.Path.Key, key))
	fail := func(kind ir.ErrorKind, format string, args ...any) error {
		return ir.Errorf(kind, format, args...).At(entryPath).AtVersion(plan.Version.String())
	}

	model, ok := view.Model(plan.Address)
	if !ok {
		return nil, ir.Errorf(ir.KindNotFound, "resource does not exist").
			At(plan.EffectivePath).AtVersion(plan.Version.String())
	}
	entries, _ := model[mc.Attribute].(ir.Object)
	entries = entries.Clone()
	if entries == nil {
		entries = ir.Object{}
	}
	_, exists := entries[key]
	name := mc.EntryAttribute()

	switch op.Name {
	case ir.OpAdd:
		if exists {
			return nil, fail(ir.KindDuplicatePath, "resource already exists")
		}
		for _, param := range op.Params.SortedKeys() {
			if param != name {
				return nil, fail(ir.KindValidationFailure, "unknown attribute %q", param)
			}
		}
		val, ok := op.Params[name]
		if !ok {
			return nil, fail(ir.KindValidationFailure, "required attribute %q is missing", name)
		}
		entries[key] = ir.Clone(val)

	case ir.OpRemove:
		if !exists {
			return nil, fail(ir.KindNotFound, "resource does not exist")
		}
		delete(entries, key)

	case ir.OpWriteAttribute, ir.OpUndefineAttribute:
		if !exists {
			return nil, fail(ir.KindNotFound, "resource does not exist")
		}
		if op.Attribute != name {
			return nil, fail(ir.KindValidationFailure, "unknown attribute %q", op.Attribute)
		}
		if op.Name == ir.OpUndefineAttribute {
			return nil, fail(ir.KindValidationFailure, "attribute %q is required", name)
		}
		entries[key] = ir.Clone(op.Value)

	default:
		return nil, fail(ir.KindValidationFailure, "%s is not supported on a map entry", op.Name)
	}

	if len(entries) == 0 {
		return []ir.Operation{{Name: ir.OpUndefineAttribute, Address: plan.Address, Attribute: mc.Attribute}}, nil
	}
	return []ir.Operation{{Name: ir.OpWriteAttribute, Address: plan.Address, Attribute: mc.Attribute, Value: entries}}, nil
}
