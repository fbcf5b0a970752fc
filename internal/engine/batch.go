package engine

import (
	"context"
	"slices"

	"github.com/roach88/resmodel/internal/ir"
	"github.com/roach88/resmodel/internal/tree"
)

// batch collects what one write operation did to the staged tree.
type batch struct {
	applied []ir.Operation // current-schema operations, in apply order
	changed []ir.Address   // added or written; validated and rebuilt
	parents []ir.Address   // parents of removed resources
	removed []ir.Address   // descendants first
	built   []built

	// Composite bookkeeping: addresses a step named directly, and children
	// reached through a deprecated attribute.
	direct []ir.Address
	folded []ir.Address

	seq int64
	id  string
}

// claim records the addresses a step touches. A child reached through a
// deprecated attribute in one step and operated on directly in another
// is a ConfigurationConflict: the two writes would race for the same data.
func (b *batch) claim(addr ir.Address, ops []ir.Operation) error {
	var folded []ir.Address
	for _, op := range ops {
		if !op.Address.Equal(addr) {
			folded = append(folded, op.Address)
		}
	}

	for _, f := range b.folded {
		if addr.HasPrefix(f) {
			return foldConflict(f, addr)
		}
	}
	for _, f := range folded {
		for _, d := range b.direct {
			if d.HasPrefix(f) {
				return foldConflict(f, d)
			}
		}
	}

	b.direct = append(b.direct, addr)
	b.folded = append(b.folded, folded...)
	return nil
}

func foldConflict(folded, direct ir.Address) error {
	return ir.Errorf(ir.KindConfigurationConflict,
		"%s is written through a deprecated attribute and operated on directly in the same composite", folded).At(direct)
}

func (b *batch) change(addr ir.Address) {
	if !slices.ContainsFunc(b.changed, addr.Equal) {
		b.changed = append(b.changed, addr)
	}
}

// apply performs one current-schema operation on the staged tree.
func (c *Controller) apply(tx *tree.Txn, b *batch, op ir.Operation) error {
	switch op.Name {
	case ir.OpAdd:
		def, err := c.reg.Lookup(op.Address)
		if err != nil {
			return err
		}
		for _, name := range op.Params.SortedKeys() {
			if err := checkWritable(op.Address, def, name); err != nil {
				return err
			}
		}
		if err := tx.Add(op.Address, op.Params); err != nil {
			return err
		}
		b.change(op.Address)

	case ir.OpRemove:
		removed, err := tx.Remove(op.Address)
		if err != nil {
			return err
		}
		b.removed = append(b.removed, removed...)
		b.parents = append(b.parents, op.Address.Parent())

	case ir.OpWriteAttribute, ir.OpUndefineAttribute:
		def, ok := tx.Definition(op.Address)
		if !ok {
			return ir.Errorf(ir.KindNotFound, "resource does not exist").At(op.Address)
		}
		if err := checkWritable(op.Address, def, op.Attribute); err != nil {
			return err
		}
		var err error
		if op.Name == ir.OpWriteAttribute {
			err = tx.WriteAttribute(op.Address, op.Attribute, op.Value)
		} else {
			err = tx.UndefineAttribute(op.Address, op.Attribute)
		}
		if err != nil {
			return err
		}
		b.change(op.Address)

	default:
		return ir.Errorf(ir.KindValidationFailure, "%s cannot be applied to the tree", op.Name).At(op.Address)
	}

	b.applied = append(b.applied, op)
	return nil
}

// checkWritable rejects attributes the current model does not store.
func checkWritable(addr ir.Address, def *ir.ResourceDefinition, name string) error {
	attr, ok := def.Attribute(name)
	if !ok {
		return ir.Errorf(ir.KindValidationFailure, "unknown attribute").At(addr).Attr(name)
	}
	if attr.IsDeprecated() {
		return ir.Errorf(ir.KindValidationFailure, "deprecated attribute; use %s", attr.DeprecatedBy).At(addr).Attr(name)
	}
	return nil
}

// finish completes a batch: missing required children are created with
// their default models, changed models are validated and builders run for
// them.
func (c *Controller) finish(ctx context.Context, tx *tree.Txn, b *batch, version string) error {
	if err := c.addRequiredChildren(tx, b); err != nil {
		return withVersion(err, version)
	}

	for _, addr := range b.changed {
		def, ok := tx.Definition(addr)
		if !ok {
			continue // removed later in the batch
		}
		model, _ := tx.Model(addr)
		if err := c.validate.Validate(addr, def, model); err != nil {
			return withVersion(err, version)
		}
	}

	return c.build(ctx, tx, b)
}

func (c *Controller) addRequiredChildren(tx *tree.Txn, b *batch) error {
	queue := slices.Concat(b.changed, b.parents)
	for len(queue) > 0 {
		addr := queue[0]
		queue = queue[1:]

		def, ok := tx.Definition(addr)
		if !ok {
			continue
		}
		for _, req := range def.RequiredChildren {
			child := addr.Append(req)
			if tx.Exists(child) {
				continue
			}
			if err := c.apply(tx, b, ir.Operation{Name: ir.OpAdd, Address: child}); err != nil {
				return err
			}
			queue = append(queue, child)
		}
	}
	return nil
}

// build runs the bound builder of every changed resource that still
// exists, parents first.
func (c *Controller) build(ctx context.Context, tx *tree.Txn, b *batch) error {
	for _, addr := range b.changed {
		def, ok := tx.Definition(addr)
		if !ok || def.Builder == "" {
			continue
		}
		builder, ok := c.builders[def.Builder]
		if !ok {
			continue
		}
		model, _ := tx.Model(addr)
		handle, err := builder(ctx, addr, model)
		if err != nil {
			return NewBuilderError(def.Builder, addr, err)
		}
		if handle != nil {
			b.built = append(b.built, built{addr: addr, handle: handle})
		}
	}
	return nil
}
