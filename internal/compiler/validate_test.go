package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/resmodel/internal/ir"
)

type fakeNames struct {
	converters map[string]bool
	rewriters  map[string]bool
}

func (f fakeNames) HasConverter(name string) bool { return f.converters[name] }
func (f fakeNames) HasRewriter(name string) bool  { return f.rewriters[name] }

var catalogNames = fakeNames{
	converters: map[string]bool{"identity": true, "string-list": true},
	rewriters:  map[string]bool{"discard": true, "reject": true},
}

func codes(errs []ValidationError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func TestValidateValidModel(t *testing.T) {
	m, err := CompileString(jdbcStoreCUE)
	require.NoError(t, err)

	errs := Validate(m, catalogNames)
	assert.Empty(t, errs)
}

func TestValidateUnsupportedType(t *testing.T) {
	errs := Validate("nope", nil)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnsupportedIRType, errs[0].Code)
}

func TestValidateAttributeErrors(t *testing.T) {
	tests := []struct {
		name string
		attr ir.AttributeSchema
		code string
	}{
		{"float type", ir.AttributeSchema{Name: "x", Type: "float"}, ErrFloatTypeForbidden},
		{"unknown type", ir.AttributeSchema{Name: "x", Type: "blob"}, ErrInvalidAttributeType},
		{"element on scalar", ir.AttributeSchema{Name: "x", Type: ir.TypeString, ElementType: ir.TypeString}, ErrInvalidElementType},
		{"bad element", ir.AttributeSchema{Name: "x", Type: ir.TypeList, ElementType: "blob"}, ErrInvalidElementType},
		{"default mismatch", ir.AttributeSchema{Name: "x", Type: ir.TypeInteger, Default: ir.String("ten")}, ErrDefaultMismatch},
		{"element default mismatch", ir.AttributeSchema{Name: "x", Type: ir.TypeList, ElementType: ir.TypeInteger, Default: ir.List{ir.String("a")}}, ErrDefaultMismatch},
		{"allowed mismatch", ir.AttributeSchema{Name: "x", Type: ir.TypeString, Allowed: ir.List{ir.Int(1)}}, ErrAllowedMismatch},
		{"default not allowed", ir.AttributeSchema{Name: "x", Type: ir.TypeString, Default: ir.String("c"), Allowed: ir.List{ir.String("a"), ir.String("b")}}, ErrDefaultMismatch},
		{"bad since", ir.AttributeSchema{Name: "x", Type: ir.TypeString, Since: "someday"}, ErrInvalidSince},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := &ir.ResourceDefinition{
				Path:       ir.PE("cache", "local"),
				Attributes: map[string]ir.AttributeSchema{"x": tt.attr},
			}
			errs := Validate(def, nil)
			require.NotEmpty(t, errs)
			assert.Contains(t, codes(errs), tt.code)
		})
	}
}

func TestValidateDuplicateChildAlias(t *testing.T) {
	def := &ir.ResourceDefinition{
		Path: ir.PE("subsystem", "infinispan"),
		Children: []*ir.ResourceDefinition{
			{Path: ir.PE("store", "file"), LegacyPaths: []ir.PathElement{ir.PE("file-store", "FILE_STORE")}},
			{Path: ir.PE("store", "jdbc"), LegacyPaths: []ir.PathElement{ir.PE("file-store", "FILE_STORE")}},
		},
	}
	errs := Validate(def, nil)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicatePath, errs[0].Code)
	assert.Contains(t, errs[0].Message, "file-store=FILE_STORE")
}

func TestValidateNameCollision(t *testing.T) {
	def := &ir.ResourceDefinition{
		Path:       ir.PE("cache", "local"),
		Attributes: map[string]ir.AttributeSchema{"store": {Name: "store", Type: ir.TypeString}},
		Children:   []*ir.ResourceDefinition{{Path: ir.PE("store", "jdbc")}},
	}
	errs := Validate(def, nil)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrNameCollision, errs[0].Code)
}

func TestValidateRequiredChildren(t *testing.T) {
	def := &ir.ResourceDefinition{
		Path:             ir.PE("store", "jdbc"),
		Children:         []*ir.ResourceDefinition{{Path: ir.PE("table", "*")}},
		RequiredChildren: []ir.PathElement{ir.PE("table", "*"), ir.PE("write", "behind")},
	}
	errs := Validate(def, nil)
	assert.Equal(t, []string{ErrWildcardRequired, ErrUnknownRequired}, codes(errs))
}

func TestValidateDeprecation(t *testing.T) {
	t.Run("child fold must be a map", func(t *testing.T) {
		def := &ir.ResourceDefinition{
			Path: ir.PE("store", "jdbc"),
			Attributes: map[string]ir.AttributeSchema{
				"binary-table": {Name: "binary-table", Type: ir.TypeString, DeprecatedBy: "table=binary"},
			},
			Children: []*ir.ResourceDefinition{{Path: ir.PE("table", "binary")}},
		}
		errs := Validate(def, nil)
		require.Len(t, errs, 1)
		assert.Equal(t, ErrInvalidDeprecation, errs[0].Code)
		assert.Contains(t, errs[0].Message, "must be of type map")
	})

	t.Run("undeclared child", func(t *testing.T) {
		def := &ir.ResourceDefinition{
			Path: ir.PE("store", "jdbc"),
			Attributes: map[string]ir.AttributeSchema{
				"binary-table": {Name: "binary-table", Type: ir.TypeMap, DeprecatedBy: "table=binary"},
			},
		}
		errs := Validate(def, nil)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0].Message, "not a declared child")
	})

	t.Run("rename to deprecated attribute", func(t *testing.T) {
		def := &ir.ResourceDefinition{
			Path: ir.PE("store", "jdbc"),
			Attributes: map[string]ir.AttributeSchema{
				"old":   {Name: "old", Type: ir.TypeString, DeprecatedBy: "older"},
				"older": {Name: "older", Type: ir.TypeString, DeprecatedBy: "old"},
			},
		}
		errs := Validate(def, nil)
		assert.Len(t, errs, 2)
		assert.Contains(t, errs[0].Message, "itself deprecated")
	})
}

func TestValidateRules(t *testing.T) {
	base := func(rule ir.TransformationRule) *Model {
		return &Model{
			Versions: &VersionSpec{Current: "2.0.0", Thresholds: map[string]string{"tables": "2.0.0"}},
			Resources: []*ir.ResourceDefinition{{
				Path: ir.PE("store", "jdbc"),
				Attributes: map[string]ir.AttributeSchema{
					"datasource":  {Name: "datasource", Type: ir.TypeString, DeprecatedBy: "data-source"},
					"data-source": {Name: "data-source", Type: ir.TypeReference},
					"columns":     {Name: "columns", Type: ir.TypeList},
					"column-csv":  {Name: "column-csv", Type: ir.TypeString, DeprecatedBy: "columns"},
					"properties":  {Name: "properties", Type: ir.TypeMap, ElementType: ir.TypeString},
				},
				Transformations: []ir.TransformationRule{rule},
			}},
		}
	}

	tests := []struct {
		name string
		rule ir.TransformationRule
		want []string
	}{
		{
			name: "valid rename",
			rule: ir.TransformationRule{
				AppliesBelow:      "tables",
				AttributeRewrites: []ir.AttributeRewrite{{Deprecated: "datasource", Target: "data-source"}},
			},
			want: nil,
		},
		{
			name: "semver threshold",
			rule: ir.TransformationRule{AppliesBelow: "1.5.0"},
			want: nil,
		},
		{
			name: "bad threshold",
			rule: ir.TransformationRule{AppliesBelow: "tomorrow"},
			want: []string{ErrInvalidThreshold},
		},
		{
			name: "threshold above current",
			rule: ir.TransformationRule{AppliesBelow: "3.0.0"},
			want: []string{ErrThresholdTooNew},
		},
		{
			name: "threshold at current",
			rule: ir.TransformationRule{AppliesBelow: "2.0.0"},
			want: nil,
		},
		{
			name: "map children",
			rule: ir.TransformationRule{
				AppliesBelow: "tables",
				MapChildren:  []ir.MapChildren{{Attribute: "properties", Path: ir.PE("property", "*")}},
			},
			want: nil,
		},
		{
			name: "map children of a list",
			rule: ir.TransformationRule{
				AppliesBelow: "tables",
				MapChildren:  []ir.MapChildren{{Attribute: "columns", Path: ir.PE("column", "*")}},
			},
			want: []string{ErrInvalidMapChildren},
		},
		{
			name: "map children under a concrete path",
			rule: ir.TransformationRule{
				AppliesBelow: "tables",
				MapChildren:  []ir.MapChildren{{Attribute: "properties", Path: ir.PE("property", "url")}},
			},
			want: []string{ErrInvalidMapChildren},
		},
		{
			name: "map children key collides with attribute",
			rule: ir.TransformationRule{
				AppliesBelow: "tables",
				MapChildren:  []ir.MapChildren{{Attribute: "properties", Path: ir.PE("columns", "*")}},
			},
			want: []string{ErrInvalidMapChildren},
		},
		{
			name: "unknown deprecated",
			rule: ir.TransformationRule{
				AppliesBelow:      "tables",
				AttributeRewrites: []ir.AttributeRewrite{{Deprecated: "nope", Target: "data-source"}},
			},
			want: []string{ErrUnknownDeprecated},
		},
		{
			name: "target disagrees",
			rule: ir.TransformationRule{
				AppliesBelow:      "tables",
				AttributeRewrites: []ir.AttributeRewrite{{Deprecated: "datasource", Target: "columns"}},
			},
			want: []string{ErrInvalidRewrite, ErrInvalidRewrite},
		},
		{
			name: "rename without converter",
			rule: ir.TransformationRule{
				AppliesBelow:      "tables",
				AttributeRewrites: []ir.AttributeRewrite{{Deprecated: "column-csv", Target: "columns"}},
			},
			want: []string{ErrInvalidRewrite},
		},
		{
			name: "converter known",
			rule: ir.TransformationRule{
				AppliesBelow:      "tables",
				AttributeRewrites: []ir.AttributeRewrite{{Deprecated: "column-csv", Target: "columns", Converter: "string-list"}},
			},
			want: nil,
		},
		{
			name: "converter unknown",
			rule: ir.TransformationRule{
				AppliesBelow:      "tables",
				AttributeRewrites: []ir.AttributeRewrite{{Deprecated: "column-csv", Target: "columns", Converter: "yaml"}},
			},
			want: []string{ErrUnknownConverter},
		},
		{
			name: "override unknown operation and rewriter",
			rule: ir.TransformationRule{
				AppliesBelow:       "tables",
				OperationOverrides: []ir.OperationOverride{{Operation: "explode", Attribute: "datasource", Rewriter: "magic"}},
			},
			want: []string{ErrUnknownOperation, ErrUnknownRewriter},
		},
		{
			name: "override composite",
			rule: ir.TransformationRule{
				AppliesBelow:       "tables",
				OperationOverrides: []ir.OperationOverride{{Operation: ir.OpComposite, Attribute: "datasource", Rewriter: "reject"}},
			},
			want: []string{ErrUnknownOperation},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(base(tt.rule), catalogNames)
			if tt.want == nil {
				assert.Empty(t, errs)
				return
			}
			assert.Equal(t, tt.want, codes(errs))
		})
	}
}

func TestValidateVersionSpec(t *testing.T) {
	m := &Model{
		Versions:  &VersionSpec{Current: "1.0.0", Thresholds: map[string]string{"future": "3.0.0"}},
		Resources: []*ir.ResourceDefinition{{Path: ir.PE("a", "b")}},
	}
	errs := Validate(m, nil)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrInvalidVersionSpec, errs[0].Code)
}

func TestValidateDuplicateTopLevel(t *testing.T) {
	m := &Model{
		Resources: []*ir.ResourceDefinition{
			{Path: ir.PE("subsystem", "infinispan")},
			{Path: ir.PE("subsystem", "infinispan")},
		},
	}
	errs := Validate(m, nil)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicatePath, errs[0].Code)
}

func TestValidationErrorFormat(t *testing.T) {
	e := ValidationError{Field: "resource.a=b", Message: "bad", Code: ErrDuplicatePath}
	assert.Equal(t, "[E110] resource.a=b: bad", e.Error())

	e.Line = 12
	assert.Equal(t, "[E110] line 12: resource.a=b: bad", e.Error())
}
