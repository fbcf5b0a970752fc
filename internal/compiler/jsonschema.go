package compiler

import (
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/roach88/resmodel/internal/ir"
)

// referencePattern matches an absolute resource address.
const referencePattern = `^(/[^/=*]+=[^/=]+)+$`

// SchemaOptions selects which view of a definition a schema describes.
// The zero value describes the current model.
type SchemaOptions struct {
	// Deprecated lists the deprecated attributes visible in the described
	// version. Child-backed ones take the folded child's shape.
	Deprecated map[string]bool

	// Omit lists current attributes that the described version does not
	// see, either because they are newer or because a deprecated
	// attribute stands in for them.
	Omit map[string]bool
}

// ResourceSchema renders a definition's model as a JSON Schema document.
// Properties appear in sorted attribute order, so the output is stable.
// Unknown attributes are rejected (additionalProperties: false).
func ResourceSchema(def *ir.ResourceDefinition, opts SchemaOptions) *jsonschema.Schema {
	s := objectSchema(def, opts)
	s.Version = jsonschema.Version
	s.Title = def.Path.String()
	s.Description = def.Description
	return s
}

func objectSchema(def *ir.ResourceDefinition, opts SchemaOptions) *jsonschema.Schema {
	props := orderedmap.New[string, *jsonschema.Schema]()
	var required []string

	for _, name := range def.AttributeNames() {
		attr := def.Attributes[name]
		if opts.Omit[name] {
			continue
		}
		if attr.IsDeprecated() {
			if opts.Deprecated[name] {
				props.Set(name, deprecatedSchema(def, attr))
			}
			continue
		}

		props.Set(name, AttributeSchema(attr))
		if attr.Required && attr.Default == nil {
			required = append(required, name)
		}
	}

	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: jsonschema.FalseSchema,
	}
}

// deprecatedSchema describes a legacy attribute. A child-backed attribute
// takes the shape of the child's model.
func deprecatedSchema(def *ir.ResourceDefinition, attr ir.AttributeSchema) *jsonschema.Schema {
	rw := ir.AttributeRewrite{Deprecated: attr.Name, Target: attr.DeprecatedBy}
	if rw.Kind() == ir.RewriteChild {
		if pe, err := rw.ChildPath(); err == nil {
			if child := def.ChildFor(pe); child != nil {
				s := objectSchema(child, SchemaOptions{})
				s.Required = nil
				s.Description = attr.Description
				s.Deprecated = true
				return s
			}
		}
	}
	s := AttributeSchema(attr)
	s.Deprecated = true
	return s
}

// AttributeSchema renders one attribute's value constraints.
func AttributeSchema(attr ir.AttributeSchema) *jsonschema.Schema {
	s := typeSchema(attr.Type, attr.ElementType)
	s.Description = attr.Description
	if attr.Default != nil {
		s.Default = ir.ToAny(attr.Default)
	}
	for _, v := range attr.Allowed {
		s.Enum = append(s.Enum, ir.ToAny(v))
	}
	return s
}

func typeSchema(t, elem ir.AttributeType) *jsonschema.Schema {
	switch t {
	case ir.TypeString:
		return &jsonschema.Schema{Type: "string"}
	case ir.TypeReference:
		return &jsonschema.Schema{Type: "string", Pattern: referencePattern}
	case ir.TypeInteger:
		return &jsonschema.Schema{Type: "integer"}
	case ir.TypeBoolean:
		return &jsonschema.Schema{Type: "boolean"}
	case ir.TypeList:
		s := &jsonschema.Schema{Type: "array"}
		if elem != "" {
			s.Items = typeSchema(elem, "")
		}
		return s
	case ir.TypeMap:
		s := &jsonschema.Schema{Type: "object"}
		if elem != "" {
			s.AdditionalProperties = typeSchema(elem, "")
		}
		return s
	default:
		return &jsonschema.Schema{}
	}
}
