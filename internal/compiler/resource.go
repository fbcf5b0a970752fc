package compiler

import (
	"cmp"
	"fmt"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/resmodel/internal/ir"
)

// Model is the compiled content of a definitions directory.
type Model struct {
	// Versions is the version policy declared next to the definitions, if
	// any. Configuration may override it.
	Versions *VersionSpec `json:"versions,omitempty"`

	AttributeSets []ir.AttributeSet `json:"attribute_sets,omitempty"`

	// Resources are the top-level definitions, registered under the root.
	Resources []*ir.ResourceDefinition `json:"resources"`
}

// VersionSpec is the raw version policy: current version plus named
// thresholds.
type VersionSpec struct {
	Current    string            `json:"current"`
	Thresholds map[string]string `json:"thresholds,omitempty"`
}

// Policy parses the version block into an ir.VersionPolicy.
func (s *VersionSpec) Policy() (ir.VersionPolicy, error) {
	return ir.NewVersionPolicy(s.Current, s.Thresholds)
}

// CompileModel parses the root CUE value of a definitions directory.
//
// Recognised top-level fields: versions, attribute_sets, resource.
// Attribute sets are compiled first so resources can compose them through
// bases.
func CompileModel(v cue.Value) (*Model, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	m := &Model{}

	if versionsVal := v.LookupPath(cue.ParsePath("versions")); versionsVal.Exists() {
		spec, err := compileVersions(versionsVal)
		if err != nil {
			return nil, err
		}
		m.Versions = spec
	}

	raw := make(map[string]ir.AttributeSet)
	var order []string
	if setsVal := v.LookupPath(cue.ParsePath("attribute_sets")); setsVal.Exists() {
		iter, err := setsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			set, err := CompileAttributeSet(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			raw[set.Name] = *set
			order = append(order, set.Name)
		}
	}

	sets, err := flattenAttributeSets(raw)
	if err != nil {
		return nil, err
	}
	for _, name := range order {
		m.AttributeSets = append(m.AttributeSets, sets[name])
	}

	resVal := v.LookupPath(cue.ParsePath("resource"))
	if !resVal.Exists() {
		return nil, &CompileError{
			Field:   "resource",
			Message: "at least one resource is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := resVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		def, err := CompileResource(iter.Label(), iter.Value(), sets)
		if err != nil {
			return nil, err
		}
		m.Resources = append(m.Resources, def)
	}

	return m, nil
}

func compileVersions(v cue.Value) (*VersionSpec, error) {
	spec := &VersionSpec{Thresholds: make(map[string]string)}

	cur, err := lookupString(v, "current", true)
	if err != nil {
		return nil, err
	}
	spec.Current = cur

	if tv := v.LookupPath(cue.ParsePath("thresholds")); tv.Exists() {
		iter, err := tv.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			spec.Thresholds[iter.Label()] = s
		}
	}
	return spec, nil
}

// CompileAttributeSet parses a named, shared attribute group:
//
//	"jdbc-store": {
//		bases: ["store"]
//		attributes: { "data-source": { type: "string", required: true } }
//	}
//
// Bases are recorded but not merged; CompileModel flattens sets once every
// set is known.
func CompileAttributeSet(name string, v cue.Value) (*ir.AttributeSet, error) {
	set := &ir.AttributeSet{Name: name, Attributes: make(map[string]ir.AttributeSchema)}

	bases, err := lookupStringList(v, "bases")
	if err != nil {
		return nil, err
	}
	set.Bases = bases

	if attrVal := v.LookupPath(cue.ParsePath("attributes")); attrVal.Exists() {
		attrs, err := compileAttributes(attrVal)
		if err != nil {
			return nil, err
		}
		set.Attributes = attrs
	}
	return set, nil
}

// flattenAttributeSets merges every set's bases into it. Base cycles are
// reported as errors since a set cannot contain itself.
func flattenAttributeSets(raw map[string]ir.AttributeSet) (map[string]ir.AttributeSet, error) {
	for name, set := range raw {
		for _, base := range set.Bases {
			if _, ok := raw[base]; !ok {
				return nil, &CompileError{
					Field:   "bases",
					Message: fmt.Sprintf("attribute set %q: unknown base %q", name, base),
				}
			}
		}
	}

	if cycles := AnalyzeBaseCycles(raw); len(cycles) > 0 {
		return nil, &CompileError{Field: "bases", Message: cycles[0].Message}
	}

	flat := make(map[string]ir.AttributeSet, len(raw))
	var visit func(name string) ir.AttributeSet
	visit = func(name string) ir.AttributeSet {
		if done, ok := flat[name]; ok {
			return done
		}
		set := raw[name]
		merged := make(map[string]ir.AttributeSchema)
		for _, base := range set.Bases {
			for attrName, attr := range visit(base).Attributes {
				merged[attrName] = attr
			}
		}
		for attrName, attr := range set.Attributes {
			merged[attrName] = attr
		}
		out := ir.AttributeSet{Name: name, Bases: set.Bases, Attributes: merged}
		flat[name] = out
		return out
	}
	for name := range raw {
		visit(name)
	}
	return flat, nil
}

// CompileResource parses a resource definition and its children. label is
// the path element ("store=jdbc"). Bases are resolved against sets and
// merged in before the node's own attributes, which win on name clashes.
func CompileResource(label string, v cue.Value, sets map[string]ir.AttributeSet) (*ir.ResourceDefinition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	path, err := ir.ParsePathElement(label)
	if err != nil {
		return nil, &CompileError{Field: "path", Message: err.Error(), Pos: v.Pos()}
	}

	def := &ir.ResourceDefinition{
		Path:       path,
		Attributes: make(map[string]ir.AttributeSchema),
	}

	if def.Description, err = lookupString(v, "description", false); err != nil {
		return nil, err
	}
	if def.Builder, err = lookupString(v, "builder", false); err != nil {
		return nil, err
	}
	if def.LegacyPaths, err = lookupPathList(v, "legacy_paths"); err != nil {
		return nil, err
	}
	if def.RequiredChildren, err = lookupPathList(v, "required_children"); err != nil {
		return nil, err
	}

	// Bases first, own attributes second: composition instead of extends
	if def.Bases, err = lookupStringList(v, "bases"); err != nil {
		return nil, err
	}
	for _, base := range def.Bases {
		set, ok := sets[base]
		if !ok {
			return nil, &CompileError{
				Field:   "bases",
				Message: fmt.Sprintf("unknown attribute set %q", base),
				Pos:     v.LookupPath(cue.ParsePath("bases")).Pos(),
			}
		}
		for name, attr := range set.Attributes {
			def.Attributes[name] = attr
		}
	}

	if attrVal := v.LookupPath(cue.ParsePath("attributes")); attrVal.Exists() {
		own, err := compileAttributes(attrVal)
		if err != nil {
			return nil, err
		}
		for name, attr := range own {
			def.Attributes[name] = attr
		}
	}

	if childVal := v.LookupPath(cue.ParsePath("children")); childVal.Exists() {
		iter, err := childVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			child, err := CompileResource(iter.Label(), iter.Value(), sets)
			if err != nil {
				return nil, err
			}
			def.Children = append(def.Children, child)
		}
		slices.SortFunc(def.Children, func(a, b *ir.ResourceDefinition) int {
			return cmp.Compare(a.Path.String(), b.Path.String())
		})
	}

	if trVal := v.LookupPath(cue.ParsePath("transformations")); trVal.Exists() {
		rules, err := compileTransformations(trVal)
		if err != nil {
			return nil, err
		}
		def.Transformations = rules
	}

	return def, nil
}

// compileAttributes parses a struct of attribute name -> attribute body.
func compileAttributes(v cue.Value) (map[string]ir.AttributeSchema, error) {
	attrs := make(map[string]ir.AttributeSchema)

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		attr, err := compileAttribute(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		attrs[attr.Name] = attr
	}
	return attrs, nil
}

func compileAttribute(name string, v cue.Value) (ir.AttributeSchema, error) {
	attr := ir.AttributeSchema{Name: name}

	typ, err := lookupString(v, "type", true)
	if err != nil {
		return attr, err
	}
	attr.Type = ir.AttributeType(typ)

	elem, err := lookupString(v, "element_type", false)
	if err != nil {
		return attr, err
	}
	attr.ElementType = ir.AttributeType(elem)

	if attr.Description, err = lookupString(v, "description", false); err != nil {
		return attr, err
	}
	if attr.Since, err = lookupString(v, "since", false); err != nil {
		return attr, err
	}
	if attr.DeprecatedBy, err = lookupString(v, "deprecated_by", false); err != nil {
		return attr, err
	}

	if reqVal := v.LookupPath(cue.ParsePath("required")); reqVal.Exists() {
		req, err := reqVal.Bool()
		if err != nil {
			return attr, formatCUEError(err)
		}
		attr.Required = req
	}

	if defVal := v.LookupPath(cue.ParsePath("default")); defVal.Exists() {
		val, err := decodeValue(defVal)
		if err != nil {
			return attr, err
		}
		attr.Default = val
	}

	if allowedVal := v.LookupPath(cue.ParsePath("allowed")); allowedVal.Exists() {
		val, err := decodeValue(allowedVal)
		if err != nil {
			return attr, err
		}
		list, ok := val.(ir.List)
		if !ok {
			return attr, &CompileError{Field: "allowed", Message: "must be a list", Pos: allowedVal.Pos()}
		}
		attr.Allowed = list
	}

	return attr, nil
}

func compileTransformations(v cue.Value) ([]ir.TransformationRule, error) {
	var rules []ir.TransformationRule

	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		rv := iter.Value()
		rule := ir.TransformationRule{}

		if rule.AppliesBelow, err = lookupString(rv, "applies_below", true); err != nil {
			return nil, err
		}

		redirect, err := lookupString(rv, "path_redirect", false)
		if err != nil {
			return nil, err
		}
		if redirect != "" {
			pe, err := ir.ParsePathElement(redirect)
			if err != nil {
				return nil, &CompileError{Field: "path_redirect", Message: err.Error(), Pos: rv.Pos()}
			}
			rule.PathRedirect = &pe
		}

		if rwVal := rv.LookupPath(cue.ParsePath("attribute_rewrites")); rwVal.Exists() {
			rwIter, err := rwVal.List()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for rwIter.Next() {
				var rw ir.AttributeRewrite
				if rw.Deprecated, err = lookupString(rwIter.Value(), "deprecated", true); err != nil {
					return nil, err
				}
				if rw.Target, err = lookupString(rwIter.Value(), "target", true); err != nil {
					return nil, err
				}
				if rw.Converter, err = lookupString(rwIter.Value(), "converter", false); err != nil {
					return nil, err
				}
				rule.AttributeRewrites = append(rule.AttributeRewrites, rw)
			}
		}

		if ovVal := rv.LookupPath(cue.ParsePath("operation_overrides")); ovVal.Exists() {
			ovIter, err := ovVal.List()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for ovIter.Next() {
				var ov ir.OperationOverride
				op, err := lookupString(ovIter.Value(), "operation", true)
				if err != nil {
					return nil, err
				}
				ov.Operation = ir.OperationName(op)
				if ov.Attribute, err = lookupString(ovIter.Value(), "attribute", true); err != nil {
					return nil, err
				}
				if ov.Rewriter, err = lookupString(ovIter.Value(), "rewriter", true); err != nil {
					return nil, err
				}
				rule.OperationOverrides = append(rule.OperationOverrides, ov)
			}
		}

		if mcVal := rv.LookupPath(cue.ParsePath("map_children")); mcVal.Exists() {
			mcIter, err := mcVal.List()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for mcIter.Next() {
				var mc ir.MapChildren
				if mc.Attribute, err = lookupString(mcIter.Value(), "attribute", true); err != nil {
					return nil, err
				}
				path, err := lookupString(mcIter.Value(), "path", true)
				if err != nil {
					return nil, err
				}
				if mc.Path, err = ir.ParsePathElement(path); err != nil {
					return nil, &CompileError{Field: "map_children", Message: err.Error(), Pos: mcIter.Value().Pos()}
				}
				if mc.Value, err = lookupString(mcIter.Value(), "value", false); err != nil {
					return nil, err
				}
				rule.MapChildren = append(rule.MapChildren, mc)
			}
		}

		rules = append(rules, rule)
	}
	return rules, nil
}

// decodeValue converts a concrete CUE value into an ir.Value.
// Floats and null are rejected.
func decodeValue(v cue.Value) (ir.Value, error) {
	if v.IncompleteKind() == cue.FloatKind {
		return nil, &CompileError{
			Field:   "type",
			Message: "float values are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	}
	var raw any
	if err := v.Decode(&raw); err != nil {
		return nil, formatCUEError(err)
	}
	val, err := ir.FromAny(raw)
	if err != nil {
		return nil, &CompileError{Field: "value", Message: err.Error(), Pos: v.Pos()}
	}
	return val, nil
}

// lookupString reads an optional or required string field.
func lookupString(v cue.Value, field string, required bool) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		if required {
			return "", &CompileError{
				Field:   field,
				Message: field + " is required",
				Pos:     v.Pos(),
			}
		}
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func lookupStringList(v cue.Value, field string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

func lookupPathList(v cue.Value, field string) ([]ir.PathElement, error) {
	raw, err := lookupStringList(v, field)
	if err != nil {
		return nil, err
	}
	var out []ir.PathElement
	for _, s := range raw {
		pe, err := ir.ParsePathElement(s)
		if err != nil {
			return nil, &CompileError{
				Field:   field,
				Message: err.Error(),
				Pos:     v.LookupPath(cue.ParsePath(field)).Pos(),
			}
		}
		out = append(out, pe)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
