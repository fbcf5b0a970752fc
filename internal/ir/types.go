package ir

import (
	"slices"
	"strings"
)

// AttributeType is the declared type of an attribute.
type AttributeType string

const (
	TypeString    AttributeType = "string"
	TypeBoolean   AttributeType = "boolean"
	TypeInteger   AttributeType = "integer"
	TypeList      AttributeType = "list"
	TypeMap       AttributeType = "map"
	TypeReference AttributeType = "reference" // address of another resource
)

// ValidAttributeTypes defines the allowed attribute types.
// NO "float" - floats are forbidden.
var ValidAttributeTypes = map[AttributeType]bool{
	TypeString:    true,
	TypeBoolean:   true,
	TypeInteger:   true,
	TypeList:      true,
	TypeMap:       true,
	TypeReference: true,
}

// AttributeSchema describes one configurable property of a resource.
type AttributeSchema struct {
	Name        string        `json:"name"`
	Type        AttributeType `json:"type"`
	ElementType AttributeType `json:"element_type,omitempty"` // list and map only
	Description string        `json:"description,omitempty"`
	Required    bool          `json:"required,omitempty"`
	Default     Value         `json:"default,omitempty"`
	Allowed     List          `json:"allowed,omitempty"`
	Since       string        `json:"since,omitempty"` // model version that introduced it

	// DeprecatedBy names what the attribute was folded into: another
	// attribute name, or a child path such as "table=binary". Deprecated
	// attributes are never stored in a current model.
	DeprecatedBy string `json:"deprecated_by,omitempty"`
}

// IsDeprecated reports whether the attribute only exists for older clients.
func (a AttributeSchema) IsDeprecated() bool {
	return a.DeprecatedBy != ""
}

// AttributeSet is a named, shared group of attribute schemas. Definitions
// compose sets through Bases instead of inheriting from each other.
type AttributeSet struct {
	Name       string                     `json:"name"`
	Bases      []string                   `json:"bases,omitempty"`
	Attributes map[string]AttributeSchema `json:"attributes"`
}

// ResourceDefinition describes one addressable node of the resource tree.
// A definition is immutable once its registry is sealed.
type ResourceDefinition struct {
	Path             PathElement                `json:"path"`
	LegacyPaths      []PathElement              `json:"legacy_paths,omitempty"`
	Description      string                     `json:"description,omitempty"`
	Bases            []string                   `json:"bases,omitempty"`
	Attributes       map[string]AttributeSchema `json:"attributes"`
	Children         []*ResourceDefinition      `json:"children,omitempty"`
	RequiredChildren []PathElement              `json:"required_children,omitempty"`
	Builder          string                     `json:"builder,omitempty"`
	Transformations  []TransformationRule       `json:"transformations,omitempty"`
}

// Attribute returns the named attribute schema.
func (d *ResourceDefinition) Attribute(name string) (AttributeSchema, bool) {
	a, ok := d.Attributes[name]
	return a, ok
}

// AttributeNames returns attribute names in sorted order.
func (d *ResourceDefinition) AttributeNames() []string {
	names := make([]string, 0, len(d.Attributes))
	for name := range d.Attributes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Child returns the child definition registered under exactly pe.
func (d *ResourceDefinition) Child(pe PathElement) *ResourceDefinition {
	for _, c := range d.Children {
		if c.Path == pe {
			return c
		}
	}
	return nil
}

// ChildFor returns the child definition addressing the concrete element pe.
// An exact path wins over a wildcard.
func (d *ResourceDefinition) ChildFor(pe PathElement) *ResourceDefinition {
	if c := d.Child(pe); c != nil {
		return c
	}
	for _, c := range d.Children {
		if c.Path.Matches(pe) {
			return c
		}
	}
	return nil
}

// IsRequiredChild reports whether pe must exist whenever d exists.
func (d *ResourceDefinition) IsRequiredChild(pe PathElement) bool {
	return slices.Contains(d.RequiredChildren, pe)
}

// RewriteKind distinguishes the two shapes of attribute rewrite.
type RewriteKind string

const (
	// RewriteRename maps a deprecated attribute onto a current attribute.
	RewriteRename RewriteKind = "rename"
	// RewriteChild folds a current child resource into a deprecated
	// attribute whose value is the child's model.
	RewriteChild RewriteKind = "child"
)

// AttributeRewrite maps a deprecated attribute onto its current location.
// Target is an attribute name or a child path (key=value).
type AttributeRewrite struct {
	Deprecated string `json:"deprecated"`
	Target     string `json:"target"`
	Converter  string `json:"converter,omitempty"` // named pure conversion function
}

// Kind reports whether the rewrite targets a child or an attribute.
func (r AttributeRewrite) Kind() RewriteKind {
	if strings.Contains(r.Target, "=") {
		return RewriteChild
	}
	return RewriteRename
}

// ChildPath returns the target child path of a RewriteChild rewrite.
func (r AttributeRewrite) ChildPath() (PathElement, error) {
	return ParsePathElement(r.Target)
}

// OperationOverride replaces the default rewrite of an operation on a
// deprecated attribute with a named rewriter.
type OperationOverride struct {
	Operation OperationName `json:"operation"`
	Attribute string        `json:"attribute"`
	Rewriter  string        `json:"rewriter"`
}

// DefaultEntryAttribute names the attribute of a map entry child when
// MapChildren.Value is empty.
const DefaultEntryAttribute = "value"

// MapChildren presents the entries of a current map attribute to older
// clients as child resources under Path, a wildcard element, one child per
// map key. Each entry child has a single attribute holding the entry.
type MapChildren struct {
	Attribute string      `json:"attribute"`
	Path      PathElement `json:"path"`
	Value     string      `json:"value,omitempty"`
}

// EntryAttribute returns the name of the entry child's attribute.
func (m MapChildren) EntryAttribute() string {
	if m.Value == "" {
		return DefaultEntryAttribute
	}
	return m.Value
}

// EntryDefinition returns the definition of one entry child of the map
// attribute attr. The entry takes attr's element type, string when unset.
func (m MapChildren) EntryDefinition(attr AttributeSchema) *ResourceDefinition {
	typ := attr.ElementType
	if typ == "" {
		typ = TypeString
	}
	name := m.EntryAttribute()
	return &ResourceDefinition{
		Path:        m.Path,
		Description: "entry of " + m.Attribute,
		Attributes: map[string]AttributeSchema{
			name: {Name: name, Type: typ, Required: true},
		},
	}
}

// TransformationRule is active for clients whose version is strictly below
// AppliesBelow. AppliesBelow is a semantic version or the name of a
// threshold in the VersionPolicy.
type TransformationRule struct {
	AppliesBelow       string              `json:"applies_below"`
	PathRedirect       *PathElement        `json:"path_redirect,omitempty"`
	AttributeRewrites  []AttributeRewrite  `json:"attribute_rewrites,omitempty"`
	OperationOverrides []OperationOverride `json:"operation_overrides,omitempty"`
	MapChildren        []MapChildren       `json:"map_children,omitempty"`
}
