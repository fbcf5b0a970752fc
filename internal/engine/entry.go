package engine

import (
	"github.com/Masterminds/semver/v3"

	"github.com/roach88/resmodel/internal/ir"
	"github.com/roach88/resmodel/internal/registry"
	"github.com/roach88/resmodel/internal/transform"
	"github.com/roach88/resmodel/internal/tree"
)

// entry serves an operation on an entry child of a map attribute. Reads
// answer from the parent's model; writes become a write of the map on the
// parent.
func (c *Controller) entry(tx *tree.Txn, b *batch, op ir.Operation, resolved *registry.Resolved, version *semver.Version) (ir.Value, error) {
	parent := resolved.Address.Parent()
	key := resolved.Address.Last().Value
	mc := *resolved.Entry

	if op.Name.IsRead() {
		model, ok := tx.Model(parent)
		if !ok {
			return nil, ir.Errorf(ir.KindNotFound, "resource does not exist").At(op.Address).AtVersion(op.Version)
		}
		doc, ok := transform.EntryDocument(model, mc, key)
		if !ok {
			return nil, ir.Errorf(ir.KindNotFound, "resource does not exist").At(op.Address).AtVersion(op.Version)
		}
		if op.Name == ir.OpReadResource {
			return doc, nil
		}
		v, ok := doc[op.Attribute]
		if !ok {
			return nil, ir.Errorf(ir.KindValidationFailure, "unknown attribute").
				At(op.Address).Attr(op.Attribute).AtVersion(op.Version)
		}
		return v, nil
	}

	plan, err := c.resolver.Resolve(parent, version)
	if err != nil {
		return nil, err
	}
	ops, err := c.resolver.RewriteEntry(op, plan, mc, key, tx)
	if err != nil {
		return nil, err
	}
	if err := b.claim(parent, ops); err != nil {
		return nil, withVersion(err, op.Version)
	}
	for _, cur := range ops {
		if err := c.apply(tx, b, cur); err != nil {
			return nil, withVersion(err, op.Version)
		}
	}
	return nil, nil
}
