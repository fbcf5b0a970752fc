package compiler

import (
	"fmt"
	"slices"

	"github.com/Masterminds/semver/v3"

	"github.com/roach88/resmodel/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// Attribute errors (E101-E109)
	ErrInvalidAttributeType = "E101" // unknown attribute type
	ErrFloatTypeForbidden   = "E102" // float types not allowed
	ErrInvalidElementType   = "E103" // element type missing, unknown or on a scalar
	ErrDefaultMismatch      = "E104" // default value does not match the type
	ErrAllowedMismatch      = "E105" // allowed value does not match the type
	ErrInvalidSince         = "E106" // since is not a semantic version
	ErrInvalidDeprecation   = "E107" // deprecated_by target missing or incompatible

	// Definition errors (E110-E119)
	ErrDuplicatePath    = "E110" // duplicate child path or legacy alias
	ErrNameCollision    = "E111" // attribute name collides with a child key
	ErrUnknownRequired  = "E112" // required child is not a declared child
	ErrWildcardRequired = "E113" // required child cannot be a wildcard

	// Transformation errors (E120-E129)
	ErrInvalidThreshold   = "E120" // applies_below is neither a version nor a named threshold
	ErrUnknownDeprecated  = "E121" // rewrite names an undeclared attribute
	ErrInvalidRewrite     = "E122" // rewrite target missing or incompatible
	ErrUnknownOperation   = "E123" // override names an unknown operation
	ErrUnknownConverter   = "E124" // converter not in the catalog
	ErrUnknownRewriter    = "E125" // rewriter not in the catalog
	ErrInvalidVersionSpec = "E126" // versions block does not parse
	ErrThresholdTooNew    = "E127" // applies_below is above the current version
	ErrInvalidMapChildren = "E128" // map_children attribute or path unusable
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Names reports which named conversion and rewrite functions exist.
// transform.Catalog implements it.
type Names interface {
	HasConverter(name string) bool
	HasRewriter(name string) bool
}

// Validate validates compiled IR against schema rules.
// Returns all errors found (does not fail-fast). names may be nil, in which
// case converter and rewriter references are not checked.
func Validate(v any, names Names) []ValidationError {
	switch m := v.(type) {
	case *Model:
		return validateModel(m, names)
	case *ir.ResourceDefinition:
		return validateDefinition(m, "resource."+m.Path.String(), ruleContext{names: names})
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

// ruleContext is what rule validation needs beyond the definition.
type ruleContext struct {
	thresholds map[string]string
	current    *semver.Version // nil when the versions block is unusable
	names      Names
}

func validateModel(m *Model, names Names) []ValidationError {
	var errs []ValidationError

	rc := ruleContext{names: names}
	if m.Versions != nil {
		policy, err := m.Versions.Policy()
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   "versions",
				Message: err.Error(),
				Code:    ErrInvalidVersionSpec,
			})
		} else {
			rc.current = policy.Current()
		}
		rc.thresholds = m.Versions.Thresholds
	}

	for _, set := range m.AttributeSets {
		for _, name := range sortedAttrNames(set.Attributes) {
			errs = append(errs, validateAttribute(set.Attributes[name], fmt.Sprintf("attribute_sets.%s.%s", set.Name, name))...)
		}
	}

	seen := make(map[ir.PathElement]bool)
	for _, def := range m.Resources {
		field := "resource." + def.Path.String()
		if seen[def.Path] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate top-level path %q", def.Path),
				Code:    ErrDuplicatePath,
			})
		}
		seen[def.Path] = true
		errs = append(errs, validateDefinition(def, field, rc)...)
	}

	return errs
}

func validateDefinition(def *ir.ResourceDefinition, field string, rc ruleContext) []ValidationError {
	var errs []ValidationError

	for _, name := range def.AttributeNames() {
		errs = append(errs, validateAttribute(def.Attributes[name], field+".attributes."+name)...)
	}

	// E110: child paths and legacy aliases are unique among siblings
	childKeys := make(map[string]bool)
	addressable := make(map[ir.PathElement]string)
	for _, child := range def.Children {
		childKeys[child.Path.Key] = true
		if prev, dup := addressable[child.Path]; dup {
			errs = append(errs, ValidationError{
				Field:   field + ".children." + child.Path.String(),
				Message: fmt.Sprintf("path %q already used by %s", child.Path, prev),
				Code:    ErrDuplicatePath,
			})
		}
		addressable[child.Path] = child.Path.String()
		for _, legacy := range child.LegacyPaths {
			if prev, dup := addressable[legacy]; dup {
				errs = append(errs, ValidationError{
					Field:   field + ".children." + child.Path.String() + ".legacy_paths",
					Message: fmt.Sprintf("legacy path %q already used by %s", legacy, prev),
					Code:    ErrDuplicatePath,
				})
			}
			addressable[legacy] = child.Path.String()
		}
	}

	// E111: no attribute name equal to a child key
	for _, name := range def.AttributeNames() {
		if childKeys[name] {
			errs = append(errs, ValidationError{
				Field:   field + ".attributes." + name,
				Message: fmt.Sprintf("attribute %q collides with child key %q", name, name),
				Code:    ErrNameCollision,
			})
		}
	}

	// E112/E113: required children
	for _, req := range def.RequiredChildren {
		if req.IsWildcard() {
			errs = append(errs, ValidationError{
				Field:   field + ".required_children",
				Message: fmt.Sprintf("required child %q cannot be a wildcard", req),
				Code:    ErrWildcardRequired,
			})
			continue
		}
		if def.ChildFor(req) == nil {
			errs = append(errs, ValidationError{
				Field:   field + ".required_children",
				Message: fmt.Sprintf("required child %q is not a declared child", req),
				Code:    ErrUnknownRequired,
			})
		}
	}

	// E107: deprecation targets
	for _, name := range def.AttributeNames() {
		attr := def.Attributes[name]
		if !attr.IsDeprecated() {
			continue
		}
		if msg := checkRewriteTarget(def, ir.AttributeRewrite{Deprecated: name, Target: attr.DeprecatedBy}, false); msg != "" {
			errs = append(errs, ValidationError{
				Field:   field + ".attributes." + name + ".deprecated_by",
				Message: msg,
				Code:    ErrInvalidDeprecation,
			})
		}
	}

	for i, rule := range def.Transformations {
		errs = append(errs, validateRule(def, rule, fmt.Sprintf("%s.transformations[%d]", field, i), rc)...)
	}

	for _, child := range def.Children {
		errs = append(errs, validateDefinition(child, field+".children."+child.Path.String(), rc)...)
	}

	return errs
}

func validateRule(def *ir.ResourceDefinition, rule ir.TransformationRule, field string, rc ruleContext) []ValidationError {
	var errs []ValidationError
	names := rc.names

	// E120: threshold is a named threshold or a version
	// E127: a literal threshold is not above the current version
	if _, named := rc.thresholds[rule.AppliesBelow]; !named {
		v, err := semver.NewVersion(rule.AppliesBelow)
		switch {
		case err != nil:
			errs = append(errs, ValidationError{
				Field:   field + ".applies_below",
				Message: fmt.Sprintf("%q is neither a named threshold nor a version", rule.AppliesBelow),
				Code:    ErrInvalidThreshold,
			})
		case rc.current != nil && v.GreaterThan(rc.current):
			errs = append(errs, ValidationError{
				Field:   field + ".applies_below",
				Message: fmt.Sprintf("%s is above the current version %s", v, rc.current),
				Code:    ErrThresholdTooNew,
			})
		}
	}

	for j, rw := range rule.AttributeRewrites {
		rwField := fmt.Sprintf("%s.attribute_rewrites[%d]", field, j)
		attr, ok := def.Attribute(rw.Deprecated)
		if !ok {
			errs = append(errs, ValidationError{
				Field:   rwField + ".deprecated",
				Message: fmt.Sprintf("attribute %q is not declared", rw.Deprecated),
				Code:    ErrUnknownDeprecated,
			})
			continue
		}
		if attr.IsDeprecated() && attr.DeprecatedBy != rw.Target {
			errs = append(errs, ValidationError{
				Field:   rwField + ".target",
				Message: fmt.Sprintf("target %q disagrees with deprecated_by %q", rw.Target, attr.DeprecatedBy),
				Code:    ErrInvalidRewrite,
			})
		}
		if msg := checkRewriteTarget(def, rw, true); msg != "" {
			errs = append(errs, ValidationError{Field: rwField + ".target", Message: msg, Code: ErrInvalidRewrite})
		}
		if rw.Converter != "" && names != nil && !names.HasConverter(rw.Converter) {
			errs = append(errs, ValidationError{
				Field:   rwField + ".converter",
				Message: fmt.Sprintf("unknown converter %q", rw.Converter),
				Code:    ErrUnknownConverter,
			})
		}
	}

	for j, ov := range rule.OperationOverrides {
		ovField := fmt.Sprintf("%s.operation_overrides[%d]", field, j)
		if !ir.ValidOperations[ov.Operation] || ov.Operation == ir.OpComposite {
			errs = append(errs, ValidationError{
				Field:   ovField + ".operation",
				Message: fmt.Sprintf("unknown operation %q", ov.Operation),
				Code:    ErrUnknownOperation,
			})
		}
		if names != nil && !names.HasRewriter(ov.Rewriter) {
			errs = append(errs, ValidationError{
				Field:   ovField + ".rewriter",
				Message: fmt.Sprintf("unknown rewriter %q", ov.Rewriter),
				Code:    ErrUnknownRewriter,
			})
		}
	}

	for j, mc := range rule.MapChildren {
		if msg := checkMapChildren(def, mc); msg != "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.map_children[%d]", field, j),
				Message: msg,
				Code:    ErrInvalidMapChildren,
			})
		}
	}

	return errs
}

// checkMapChildren returns a message when mc cannot present its attribute
// as entry children of def, "" otherwise.
func checkMapChildren(def *ir.ResourceDefinition, mc ir.MapChildren) string {
	attr, ok := def.Attribute(mc.Attribute)
	switch {
	case !ok:
		return fmt.Sprintf("attribute %q is not declared", mc.Attribute)
	case attr.Type != ir.TypeMap:
		return fmt.Sprintf("attribute %q must be of type map, not %s", mc.Attribute, attr.Type)
	case attr.IsDeprecated():
		return fmt.Sprintf("attribute %q is deprecated", mc.Attribute)
	case !mc.Path.IsWildcard():
		return fmt.Sprintf("path %q must be a wildcard", mc.Path)
	}
	if _, clash := def.Attributes[mc.Path.Key]; clash {
		return fmt.Sprintf("path key %q collides with an attribute", mc.Path.Key)
	}
	for _, child := range def.Children {
		if child.Path.Key == mc.Path.Key || slices.ContainsFunc(child.LegacyPaths, func(l ir.PathElement) bool { return l.Key == mc.Path.Key }) {
			return fmt.Sprintf("path key %q is already used by child %s", mc.Path.Key, child.Path)
		}
	}
	return ""
}

// checkRewriteTarget returns a message when rw's target does not exist or
// cannot hold the deprecated attribute's value, "" otherwise. Renames are
// only type checked when checkTypes is set, since a rule may supply the
// converter.
func checkRewriteTarget(def *ir.ResourceDefinition, rw ir.AttributeRewrite, checkTypes bool) string {
	deprecated, ok := def.Attribute(rw.Deprecated)
	if !ok {
		return fmt.Sprintf("attribute %q is not declared", rw.Deprecated)
	}

	if rw.Kind() == ir.RewriteChild {
		pe, err := rw.ChildPath()
		if err != nil {
			return err.Error()
		}
		if pe.IsWildcard() {
			return fmt.Sprintf("child target %q cannot be a wildcard", pe)
		}
		if def.ChildFor(pe) == nil {
			return fmt.Sprintf("child target %q is not a declared child", pe)
		}
		if deprecated.Type != ir.TypeMap {
			return fmt.Sprintf("attribute %q folds child %q and must be of type map, not %s", rw.Deprecated, pe, deprecated.Type)
		}
		return ""
	}

	target, ok := def.Attribute(rw.Target)
	if !ok {
		return fmt.Sprintf("target attribute %q is not declared", rw.Target)
	}
	if target.IsDeprecated() {
		return fmt.Sprintf("target attribute %q is itself deprecated", rw.Target)
	}
	if checkTypes && rw.Converter == "" && !compatibleTypes(deprecated.Type, target.Type) {
		return fmt.Sprintf("attribute %q (%s) cannot be renamed to %q (%s) without a converter",
			rw.Deprecated, deprecated.Type, rw.Target, target.Type)
	}
	return ""
}

// compatibleTypes reports whether values of type a can be stored as type b
// unchanged. References are strings on the wire.
func compatibleTypes(a, b ir.AttributeType) bool {
	norm := func(t ir.AttributeType) ir.AttributeType {
		if t == ir.TypeReference {
			return ir.TypeString
		}
		return t
	}
	return norm(a) == norm(b)
}

func validateAttribute(attr ir.AttributeSchema, field string) []ValidationError {
	var errs []ValidationError

	if isFloatType(string(attr.Type)) {
		errs = append(errs, ValidationError{
			Field:   field + ".type",
			Message: fmt.Sprintf("float type forbidden for attribute %q, use integer instead", attr.Name),
			Code:    ErrFloatTypeForbidden,
		})
		return errs
	}
	if !ir.ValidAttributeTypes[attr.Type] {
		errs = append(errs, ValidationError{
			Field:   field + ".type",
			Message: fmt.Sprintf("invalid type %q for attribute %q", attr.Type, attr.Name),
			Code:    ErrInvalidAttributeType,
		})
		return errs
	}

	collection := attr.Type == ir.TypeList || attr.Type == ir.TypeMap
	switch {
	case attr.ElementType != "" && !collection:
		errs = append(errs, ValidationError{
			Field:   field + ".element_type",
			Message: fmt.Sprintf("element_type only applies to list and map, not %s", attr.Type),
			Code:    ErrInvalidElementType,
		})
	case attr.ElementType != "" && !ir.ValidAttributeTypes[attr.ElementType]:
		errs = append(errs, ValidationError{
			Field:   field + ".element_type",
			Message: fmt.Sprintf("invalid element type %q", attr.ElementType),
			Code:    ErrInvalidElementType,
		})
	}

	if attr.Default != nil && !valueMatches(attr.Default, attr.Type, attr.ElementType) {
		errs = append(errs, ValidationError{
			Field:   field + ".default",
			Message: fmt.Sprintf("default does not match type %s", attr.Type),
			Code:    ErrDefaultMismatch,
		})
	}
	for i, allowed := range attr.Allowed {
		if !valueMatches(allowed, attr.Type, "") {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.allowed[%d]", field, i),
				Message: fmt.Sprintf("allowed value does not match type %s", attr.Type),
				Code:    ErrAllowedMismatch,
			})
		}
	}
	if attr.Default != nil && len(attr.Allowed) > 0 && !slices.ContainsFunc(attr.Allowed, func(v ir.Value) bool { return ir.Equal(v, attr.Default) }) {
		errs = append(errs, ValidationError{
			Field:   field + ".default",
			Message: "default is not one of the allowed values",
			Code:    ErrDefaultMismatch,
		})
	}

	if attr.Since != "" {
		if _, err := semver.NewVersion(attr.Since); err != nil {
			errs = append(errs, ValidationError{
				Field:   field + ".since",
				Message: fmt.Sprintf("since %q is not a semantic version", attr.Since),
				Code:    ErrInvalidSince,
			})
		}
	}

	return errs
}

// valueMatches reports whether v has the shape of an attribute of type t.
// For collections with an element type every element is checked.
func valueMatches(v ir.Value, t, elem ir.AttributeType) bool {
	switch t {
	case ir.TypeString, ir.TypeReference:
		_, ok := v.(ir.String)
		return ok
	case ir.TypeInteger:
		_, ok := v.(ir.Int)
		return ok
	case ir.TypeBoolean:
		_, ok := v.(ir.Bool)
		return ok
	case ir.TypeList:
		list, ok := v.(ir.List)
		if !ok {
			return false
		}
		if elem == "" {
			return true
		}
		for _, e := range list {
			if !valueMatches(e, elem, "") {
				return false
			}
		}
		return true
	case ir.TypeMap:
		obj, ok := v.(ir.Object)
		if !ok {
			return false
		}
		if elem == "" {
			return true
		}
		for _, e := range obj {
			if !valueMatches(e, elem, "") {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// isFloatType checks if a type string represents a float type.
func isFloatType(t string) bool {
	floatTypes := map[string]bool{
		"float":   true,
		"float32": true,
		"float64": true,
		"number":  true,
		"double":  true,
	}
	return floatTypes[t]
}

func sortedAttrNames(attrs map[string]ir.AttributeSchema) []string {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
