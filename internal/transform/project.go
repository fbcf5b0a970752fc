package transform

import (
	"slices"

	"github.com/Masterminds/semver/v3"

	"github.com/roach88/resmodel/internal/ir"
)

// Project renders doc, the current document of the node at the canonical
// address addr, as a client at version sees it. Documents are nested:
// attributes are fields and children live under their path key, then
// value.
//
// For every child-backed deprecated attribute in the plan the child's
// projected model becomes the attribute's value and the child disappears.
// Renamed attributes are converted back under their legacy name. Attributes
// the version does not know are dropped. Map attributes shown as entry
// children become a child group with one document per key. Child keys are
// replaced by their effective (legacy) elements. doc is not modified.
func (r *Resolver) Project(addr ir.Address, doc ir.Object, version *semver.Version) (ir.Object, error) {
	plan, err := r.Resolve(addr, version)
	if err != nil {
		return nil, err
	}
	return r.project(plan, doc)
}

func (r *Resolver) project(plan *Plan, doc ir.Object) (ir.Object, error) {
	if plan.Identity {
		return doc.Clone(), nil
	}
	def := plan.Definition

	out := ir.Object{}
	for key, val := range doc {
		if isChildKey(def, key) || plan.IsOmitted(key) {
			continue
		}
		out[key] = ir.Clone(val)
	}

	folded := make(map[ir.PathElement]bool)
	for _, name := range sortedKeys(plan.AttributeMap) {
		rw := plan.AttributeMap[name]
		switch rw.Kind() {
		case ir.RewriteChild:
			pe, err := rw.ChildPath()
			if err != nil {
				return nil, err
			}
			folded[pe] = true
			childDoc, ok := ChildDocument(doc, pe)
			if !ok {
				continue
			}
			childPlan, err := r.Resolve(plan.Address.Append(pe), plan.Version)
			if err != nil {
				return nil, err
			}
			projected, err := r.project(childPlan, childDoc)
			if err != nil {
				return nil, err
			}
			out[name] = Attributes(childPlan.Definition, projected)

		case ir.RewriteRename:
			val, ok := out[rw.Target]
			if !ok {
				continue
			}
			conv, _ := r.catalog.Converter(rw.Converter)
			legacy, err := conv.Down(val)
			if err != nil {
				return nil, ir.Errorf(ir.KindValidationFailure, "converting to legacy form").
					At(plan.Address).Attr(name).AtVersion(plan.Version.String()).Wrap(err)
			}
			delete(out, rw.Target)
			out[name] = legacy
		}
	}

	for _, mc := range plan.MapChildren {
		entries, ok := doc[mc.Attribute].(ir.Object)
		if !ok || len(entries) == 0 {
			continue
		}
		group := ir.Object{}
		for key := range entries {
			group[key], _ = EntryDocument(doc, mc, key)
		}
		out[mc.Path.Key] = group
	}

	for _, key := range doc.SortedKeys() {
		if !isChildKey(def, key) {
			continue
		}
		instances, ok := doc[key].(ir.Object)
		if !ok {
			continue
		}
		for _, value := range instances.SortedKeys() {
			pe := ir.PE(key, value)
			if folded[pe] {
				continue
			}
			childDoc, _ := instances[value].(ir.Object)
			childPlan, err := r.Resolve(plan.Address.Append(pe), plan.Version)
			if err != nil {
				return nil, err
			}
			projected, err := r.project(childPlan, childDoc)
			if err != nil {
				return nil, err
			}
			eff := childPlan.EffectivePath.Last()
			group, _ := out[eff.Key].(ir.Object)
			if group == nil {
				group = ir.Object{}
				out[eff.Key] = group
			}
			group[eff.Value] = projected
		}
	}

	return out, nil
}

// ChildDocument returns the document of the child at pe inside doc.
func ChildDocument(doc ir.Object, pe ir.PathElement) (ir.Object, bool) {
	instances, ok := doc[pe.Key].(ir.Object)
	if !ok {
		return nil, false
	}
	child, ok := instances[pe.Value].(ir.Object)
	return child, ok
}

// Attributes returns the attribute fields of a node document, without its
// children.
func Attributes(def *ir.ResourceDefinition, doc ir.Object) ir.Object {
	out := ir.Object{}
	for key, val := range doc {
		if !isChildKey(def, key) {
			out[key] = val
		}
	}
	return out
}

func isChildKey(def *ir.ResourceDefinition, key string) bool {
	for _, c := range def.Children {
		if c.Path.Key == key {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
