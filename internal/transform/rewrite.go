package transform

import (
	"github.com/roach88/resmodel/internal/ir"
)

// View is the read access Rewrite needs to the current tree.
type View interface {
	// Model returns a copy of the attributes of the resource at addr.
	Model(addr ir.Address) (ir.Object, bool)
}

// Rewrite translates op, sent by the plan's client and already addressed at
// the canonical address plan.Address, into current-schema operations in
// apply order. The returned operations carry no version.
//
//   - write-attribute of a child-backed attribute adds the child with the
//     value's fields, or writes and undefines the child's fields when it
//     exists
//   - undefine-attribute of a child-backed attribute removes the child
//   - write/undefine of a renamed attribute targets the replacement, with
//     the value converted up
//   - add splits deprecated parameters off into the node's own parameters
//     and one add per child-backed parameter
//
// An operation override for (operation, attribute) replaces the default.
// A deprecated attribute with neither is an UnsupportedRewrite.
func (r *Resolver) Rewrite(op ir.Operation, plan *Plan, view View) ([]ir.Operation, error) {
	cur := op
	cur.Version = ""
	cur.Address = plan.Address
	if plan.Identity {
		return []ir.Operation{cur}, nil
	}

	switch op.Name {
	case ir.OpWriteAttribute, ir.OpUndefineAttribute, ir.OpReadAttribute:
		return r.rewriteAttribute(cur, plan, view)
	case ir.OpAdd:
		return r.rewriteAdd(cur, plan, view)
	default:
		return []ir.Operation{cur}, nil
	}
}

func (r *Resolver) rewriteAttribute(op ir.Operation, plan *Plan, view View) ([]ir.Operation, error) {
	name := op.Attribute
	if ops, ok, err := r.override(op, plan, view); ok {
		return ops, err
	}
	if plan.IsOmitted(name) {
		return nil, notAtVersion(plan, name)
	}

	rw, mapped := plan.AttributeMap[name]
	if !mapped {
		if attr, ok := plan.Definition.Attribute(name); ok && attr.IsDeprecated() {
			return nil, unsupported(plan, op.Name, name)
		}
		return []ir.Operation{op}, nil
	}
	if op.Name == ir.OpReadAttribute {
		// Answered from the projection
		return []ir.Operation{op}, nil
	}

	if rw.Kind() == ir.RewriteChild {
		pe, err := rw.ChildPath()
		if err != nil {
			return nil, err
		}
		childAddr := plan.Address.Append(pe)
		existing, exists := view.Model(childAddr)

		if op.Name == ir.OpUndefineAttribute {
			if !exists {
				return nil, nil
			}
			return []ir.Operation{{Name: ir.OpRemove, Address: childAddr}}, nil
		}

		fields, ok := op.Value.(ir.Object)
		if !ok {
			return nil, ir.Errorf(ir.KindValidationFailure, "expected map, got %s", ir.TypeOf(op.Value)).
				At(plan.EffectivePath).Attr(name).AtVersion(plan.Version.String())
		}
		if !exists {
			return []ir.Operation{{Name: ir.OpAdd, Address: childAddr, Params: fields.Clone()}}, nil
		}
		return diffFields(childAddr, existing, fields), nil
	}

	conv, _ := r.catalog.Converter(rw.Converter)
	if op.Name == ir.OpUndefineAttribute {
		return []ir.Operation{{Name: ir.OpUndefineAttribute, Address: op.Address, Attribute: rw.Target}}, nil
	}
	val, err := conv.Up(op.Value)
	if err != nil {
		return nil, ir.Errorf(ir.KindValidationFailure, "converting to current form").
			At(plan.EffectivePath).Attr(name).AtVersion(plan.Version.String()).Wrap(err)
	}
	return []ir.Operation{{Name: ir.OpWriteAttribute, Address: op.Address, Attribute: rw.Target, Value: val}}, nil
}

func (r *Resolver) rewriteAdd(op ir.Operation, plan *Plan, view View) ([]ir.Operation, error) {
	params := ir.Object{}
	var extra []ir.Operation

	for _, name := range op.Params.SortedKeys() {
		val := op.Params[name]
		sub := ir.Operation{Name: ir.OpAdd, Address: op.Address, Attribute: name, Value: val}
		if ops, ok, err := r.override(sub, plan, view); ok {
			if err != nil {
				return nil, err
			}
			extra = append(extra, ops...)
			continue
		}
		if plan.IsOmitted(name) {
			return nil, notAtVersion(plan, name)
		}

		rw, mapped := plan.AttributeMap[name]
		if !mapped {
			if attr, ok := plan.Definition.Attribute(name); ok && attr.IsDeprecated() {
				return nil, unsupported(plan, op.Name, name)
			}
			params[name] = val
			continue
		}

		if rw.Kind() == ir.RewriteChild {
			pe, err := rw.ChildPath()
			if err != nil {
				return nil, err
			}
			fields, ok := val.(ir.Object)
			if !ok {
				return nil, ir.Errorf(ir.KindValidationFailure, "expected map, got %s", ir.TypeOf(val)).
					At(plan.EffectivePath).Attr(name).AtVersion(plan.Version.String())
			}
			extra = append(extra, ir.Operation{Name: ir.OpAdd, Address: op.Address.Append(pe), Params: fields.Clone()})
			continue
		}

		if _, both := op.Params[rw.Target]; both {
			return nil, ir.Errorf(ir.KindConfigurationConflict, "both %q and its replacement %q are given", name, rw.Target).
				At(plan.EffectivePath).Attr(name).AtVersion(plan.Version.String())
		}
		conv, _ := r.catalog.Converter(rw.Converter)
		up, err := conv.Up(val)
		if err != nil {
			return nil, ir.Errorf(ir.KindValidationFailure, "converting to current form").
				At(plan.EffectivePath).Attr(name).AtVersion(plan.Version.String()).Wrap(err)
		}
		params[rw.Target] = up
	}

	add := op
	add.Attribute = ""
	add.Value = nil
	add.Params = params
	return append([]ir.Operation{add}, extra...), nil
}

// override runs the rewriter registered for op's (operation, attribute).
// ok reports whether one exists.
func (r *Resolver) override(op ir.Operation, plan *Plan, view View) (ops []ir.Operation, ok bool, err error) {
	name, found := plan.OperationOverrides[OverrideKey{Operation: op.Name, Attribute: op.Attribute}]
	if !found {
		return nil, false, nil
	}
	rw, found := r.catalog.Rewriter(name)
	if !found {
		return nil, true, ir.Errorf(ir.KindConfigurationConflict, "unknown rewriter %q", name).
			At(plan.Address).Attr(op.Attribute).AtVersion(plan.Version.String())
	}
	ops, err = rw(op, plan, view)
	return ops, true, err
}

// diffFields turns the replacement of a child's model by fields into
// per-field writes and undefines, in sorted attribute order.
func diffFields(addr ir.Address, existing, fields ir.Object) []ir.Operation {
	var ops []ir.Operation
	for _, name := range fields.SortedKeys() {
		if old, ok := existing[name]; ok && ir.Equal(old, fields[name]) {
			continue
		}
		ops = append(ops, ir.Operation{Name: ir.OpWriteAttribute, Address: addr, Attribute: name, Value: ir.Clone(fields[name])})
	}
	for _, name := range existing.SortedKeys() {
		if _, keep := fields[name]; !keep {
			ops = append(ops, ir.Operation{Name: ir.OpUndefineAttribute, Address: addr, Attribute: name})
		}
	}
	return ops
}

func unsupported(plan *Plan, op ir.OperationName, name string) error {
	return ir.Errorf(ir.KindUnsupportedRewrite, "no rewrite of %s for deprecated attribute at this version", op).
		At(plan.EffectivePath).Attr(name).AtVersion(plan.Version.String())
}

func notAtVersion(plan *Plan, name string) error {
	return ir.Errorf(ir.KindValidationFailure, "attribute does not exist at this version").
		At(plan.EffectivePath).Attr(name).AtVersion(plan.Version.String())
}
