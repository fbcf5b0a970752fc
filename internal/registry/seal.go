package registry

import (
	"slices"

	"github.com/roach88/resmodel/internal/ir"
)

// checkDefinition verifies the references a definition makes to its own
// attributes and children.
func checkDefinition(addr ir.Address, def *ir.ResourceDefinition) error {
	for _, name := range def.AttributeNames() {
		attr := def.Attributes[name]
		if !attr.IsDeprecated() {
			continue
		}
		rw := ir.AttributeRewrite{Deprecated: name, Target: attr.DeprecatedBy, Converter: converterFor(def, name)}
		if err := CheckRewrite(def, rw); err != nil {
			return err.At(addr)
		}
	}

	for _, req := range def.RequiredChildren {
		if req.IsWildcard() || def.ChildFor(req) == nil {
			return ir.Errorf(ir.KindConfigurationConflict, "required child %s is not a declared concrete child", req).At(addr)
		}
	}

	for _, rule := range def.Transformations {
		if rule.PathRedirect != nil && !slices.Contains(def.LegacyPaths, *rule.PathRedirect) {
			return ir.Errorf(ir.KindConfigurationConflict,
				"rule below %s redirects to %s, which is not a legacy path", rule.AppliesBelow, rule.PathRedirect).At(addr)
		}
		for _, rw := range rule.AttributeRewrites {
			if err := CheckRewrite(def, rw); err != nil {
				return err.At(addr)
			}
		}
		for _, ov := range rule.OperationOverrides {
			if _, ok := def.Attribute(ov.Attribute); !ok {
				return ir.Errorf(ir.KindConfigurationConflict,
					"override of %s names an undeclared attribute", ov.Operation).At(addr).Attr(ov.Attribute)
			}
		}
		for _, mc := range rule.MapChildren {
			if err := checkMapChildren(def, mc); err != nil {
				return err.At(addr)
			}
		}
	}
	return nil
}

// checkMapChildren verifies that mc names a current map attribute of def
// and a wildcard path whose key no child or attribute uses.
func checkMapChildren(def *ir.ResourceDefinition, mc ir.MapChildren) *ir.Error {
	attr, ok := def.Attribute(mc.Attribute)
	if !ok || attr.Type != ir.TypeMap || attr.IsDeprecated() {
		return ir.Errorf(ir.KindConfigurationConflict, "map children need a current map attribute").Attr(mc.Attribute)
	}
	if !mc.Path.IsWildcard() {
		return ir.Errorf(ir.KindConfigurationConflict, "map children path %s is not a wildcard", mc.Path).Attr(mc.Attribute)
	}
	if _, clash := def.Attributes[mc.Path.Key]; clash {
		return ir.Errorf(ir.KindConfigurationConflict, "map children key %q collides with an attribute", mc.Path.Key).Attr(mc.Attribute)
	}
	for _, child := range def.Children {
		if child.Path.Key == mc.Path.Key || slices.ContainsFunc(child.LegacyPaths, func(l ir.PathElement) bool { return l.Key == mc.Path.Key }) {
			return ir.Errorf(ir.KindConfigurationConflict, "map children key %q is used by child %s", mc.Path.Key, child.Path).Attr(mc.Attribute)
		}
	}
	return nil
}

// converterFor returns the converter any rule names for the deprecated
// attribute, or "".
func converterFor(def *ir.ResourceDefinition, name string) string {
	for _, rule := range def.Transformations {
		for _, rw := range rule.AttributeRewrites {
			if rw.Deprecated == name && rw.Converter != "" {
				return rw.Converter
			}
		}
	}
	return ""
}

// CheckRewrite verifies that rw's target exists on def and can hold the
// deprecated attribute's value. Renames without a converter need compatible
// types; a child fold needs a map-typed attribute.
func CheckRewrite(def *ir.ResourceDefinition, rw ir.AttributeRewrite) *ir.Error {
	deprecated, ok := def.Attribute(rw.Deprecated)
	if !ok {
		return ir.Errorf(ir.KindConfigurationConflict, "rewrite names an undeclared attribute").Attr(rw.Deprecated)
	}

	if rw.Kind() == ir.RewriteChild {
		pe, err := rw.ChildPath()
		if err != nil {
			return ir.Errorf(ir.KindConfigurationConflict, "invalid child target").Attr(rw.Deprecated).Wrap(err)
		}
		if pe.IsWildcard() || def.ChildFor(pe) == nil {
			return ir.Errorf(ir.KindConfigurationConflict, "child target %s is not a declared concrete child", pe).Attr(rw.Deprecated)
		}
		if deprecated.Type != ir.TypeMap {
			return ir.Errorf(ir.KindConfigurationConflict, "folds child %s but has type %s, not map", pe, deprecated.Type).Attr(rw.Deprecated)
		}
		return nil
	}

	target, ok := def.Attribute(rw.Target)
	if !ok {
		return ir.Errorf(ir.KindConfigurationConflict, "target attribute %q is not declared", rw.Target).Attr(rw.Deprecated)
	}
	if target.IsDeprecated() {
		return ir.Errorf(ir.KindConfigurationConflict, "target attribute %q is itself deprecated", rw.Target).Attr(rw.Deprecated)
	}
	if rw.Converter == "" && !sameWireType(deprecated.Type, target.Type) {
		return ir.Errorf(ir.KindConfigurationConflict,
			"%s cannot be stored as %s %q without a converter", deprecated.Type, target.Type, rw.Target).Attr(rw.Deprecated)
	}
	return nil
}

func sameWireType(a, b ir.AttributeType) bool {
	wire := func(t ir.AttributeType) ir.AttributeType {
		if t == ir.TypeReference {
			return ir.TypeString
		}
		return t
	}
	return wire(a) == wire(b)
}
