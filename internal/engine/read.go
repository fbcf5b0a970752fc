package engine

import (
	"github.com/Masterminds/semver/v3"

	"github.com/roach88/resmodel/internal/ir"
	"github.com/roach88/resmodel/internal/registry"
	"github.com/roach88/resmodel/internal/tree"
)

// read answers read-resource and read-attribute at the client's version.
func (c *Controller) read(tx *tree.Txn, op ir.Operation, resolved *registry.Resolved, version *semver.Version) (ir.Value, error) {
	addr := resolved.Address
	doc, err := tx.Document(addr)
	if err != nil {
		return nil, withVersion(err, op.Version)
	}

	legacy := !c.policy.IsCurrent(version)
	if legacy && op.Name == ir.OpReadAttribute {
		// Rejects omitted attributes and unmapped deprecated ones.
		plan, err := c.resolver.Resolve(addr, version)
		if err != nil {
			return nil, err
		}
		if _, err := c.resolver.Rewrite(op, plan, tx); err != nil {
			return nil, err
		}
	}
	if legacy {
		if doc, err = c.resolver.Project(addr, doc, version); err != nil {
			return nil, err
		}
	}

	def := resolved.Definition
	if op.Name == ir.OpReadResource {
		if !op.Recursive {
			truncateChildren(def, doc)
		}
		return doc, nil
	}

	attr, ok := def.Attribute(op.Attribute)
	if !ok {
		return nil, ir.Errorf(ir.KindValidationFailure, "unknown attribute").
			At(addr).Attr(op.Attribute).AtVersion(op.Version)
	}
	if !legacy && attr.IsDeprecated() {
		return nil, ir.Errorf(ir.KindValidationFailure, "deprecated attribute; read %s", attr.DeprecatedBy).
			At(addr).Attr(op.Attribute)
	}
	if v, ok := doc[op.Attribute]; ok {
		return v, nil
	}
	return ir.Clone(attr.Default), nil
}

// truncateChildren replaces every child document with an empty one, so a
// non-recursive read lists the children without their content. Every key
// that is not an attribute of def is a child group.
func truncateChildren(def *ir.ResourceDefinition, doc ir.Object) {
	for key, val := range doc {
		if _, isAttr := def.Attributes[key]; isAttr {
			continue
		}
		group, ok := val.(ir.Object)
		if !ok {
			continue
		}
		for value := range group {
			group[value] = ir.Object{}
		}
	}
}
