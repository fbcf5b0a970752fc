package transform

import (
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/require"

	"github.com/roach88/resmodel/internal/ir"
	"github.com/roach88/resmodel/internal/registry"
)

var (
	testPolicy = ir.MustVersionPolicy("2.0.0", map[string]string{"tables-as-children": "2.0.0"})
	legacyV    = semver.MustParse("1.4.0")
	currentV   = semver.MustParse("2.0.0")
	storeAddr  = ir.MustAddress("/subsystem=infinispan/cache-container=web/store=jdbc")
	aliasAddr  = ir.MustAddress("/subsystem=infinispan/cache-container=web/mixed-keyed-jdbc-store=MIXED_KEYED_JDBC_STORE")
	tableAddr  = storeAddr.Append(ir.PE("table", "binary"))
)

func storeDefinition() *ir.ResourceDefinition {
	redirect := ir.PE("mixed-keyed-jdbc-store", "MIXED_KEYED_JDBC_STORE")
	return &ir.ResourceDefinition{
		Path:        ir.PE("store", "jdbc"),
		LegacyPaths: []ir.PathElement{redirect},
		Attributes: map[string]ir.AttributeSchema{
			"data-source":  {Name: "data-source", Type: ir.TypeReference, Required: true},
			"binary-table": {Name: "binary-table", Type: ir.TypeMap, DeprecatedBy: "table=binary"},
			"properties":   {Name: "properties", Type: ir.TypeList, ElementType: ir.TypeString},
			"property-csv": {Name: "property-csv", Type: ir.TypeString, DeprecatedBy: "properties"},
			"fetch-size":   {Name: "fetch-size", Type: ir.TypeInteger, Since: "1.5.0"},
			"datasource":   {Name: "datasource", Type: ir.TypeString, DeprecatedBy: "data-source"},
			"batch-size":   {Name: "batch-size", Type: ir.TypeInteger, DeprecatedBy: "fetch-size"},
			"options":      {Name: "options", Type: ir.TypeMap, ElementType: ir.TypeString},
		},
		Children: []*ir.ResourceDefinition{{
			Path: ir.PE("table", "binary"),
			Attributes: map[string]ir.AttributeSchema{
				"prefix":  {Name: "prefix", Type: ir.TypeString, Default: ir.String("ispn_bucket")},
				"columns": {Name: "columns", Type: ir.TypeList, ElementType: ir.TypeMap},
			},
		}},
		Transformations: []ir.TransformationRule{
			{
				AppliesBelow: "tables-as-children",
				PathRedirect: &redirect,
				AttributeRewrites: []ir.AttributeRewrite{
					{Deprecated: "binary-table", Target: "table=binary"},
					{Deprecated: "property-csv", Target: "properties", Converter: "string-list"},
				},
				OperationOverrides: []ir.OperationOverride{
					{Operation: ir.OpWriteAttribute, Attribute: "datasource", Rewriter: "reject"},
				},
				MapChildren: []ir.MapChildren{{Attribute: "options", Path: ir.PE("option", "*")}},
			},
			{
				// Superseded for binary-table by the rule above
				AppliesBelow:      "1.0.0",
				AttributeRewrites: []ir.AttributeRewrite{{Deprecated: "binary-table", Target: "table=binary", Converter: "identity"}},
			},
		},
	}
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Build([]*ir.ResourceDefinition{{
		Path: ir.PE("subsystem", "infinispan"),
		Children: []*ir.ResourceDefinition{{
			Path:     ir.PE("cache-container", "*"),
			Children: []*ir.ResourceDefinition{storeDefinition()},
		}},
	}})
	require.NoError(t, err)
	return reg
}

func testResolver(t *testing.T) *Resolver {
	t.Helper()
	return NewResolver(testRegistry(t), testPolicy)
}

// docView is a nested document standing in for a resource tree.
type docView struct {
	doc ir.Object
}

func (v *docView) node(addr ir.Address) (ir.Object, bool) {
	cur := v.doc
	for _, pe := range addr {
		next, ok := ChildDocument(cur, pe)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func (v *docView) Model(addr ir.Address) (ir.Object, bool) {
	doc, ok := v.node(addr)
	if !ok {
		return nil, false
	}
	out := ir.Object{}
	for k, val := range doc {
		if _, nested := val.(ir.Object); nested && k == "table" {
			continue
		}
		out[k] = ir.Clone(val)
	}
	return out, true
}

// apply executes current-schema operations against the document.
func (v *docView) apply(t *testing.T, ops []ir.Operation) {
	t.Helper()
	for _, op := range ops {
		switch op.Name {
		case ir.OpAdd:
			parent, ok := v.node(op.Address.Parent())
			require.True(t, ok, op.String())
			pe := op.Address.Last()
			group, _ := parent[pe.Key].(ir.Object)
			if group == nil {
				group = ir.Object{}
				parent[pe.Key] = group
			}
			group[pe.Value] = op.Params.Clone()
		case ir.OpRemove:
			parent, ok := v.node(op.Address.Parent())
			require.True(t, ok, op.String())
			pe := op.Address.Last()
			group := parent[pe.Key].(ir.Object)
			delete(group, pe.Value)
			if len(group) == 0 {
				delete(parent, pe.Key)
			}
		case ir.OpWriteAttribute:
			node, ok := v.node(op.Address)
			require.True(t, ok, op.String())
			node[op.Attribute] = op.Value
		case ir.OpUndefineAttribute:
			node, ok := v.node(op.Address)
			require.True(t, ok, op.String())
			delete(node, op.Attribute)
		default:
			t.Fatalf("unexpected operation %s", op)
		}
	}
}

// storeDocument returns the root document with one jdbc store holding a
// binary table.
func storeDocument() ir.Object {
	return ir.NewObject(ir.O("subsystem", ir.NewObject(ir.O("infinispan", ir.NewObject(
		ir.O("cache-container", ir.NewObject(ir.O("web", ir.NewObject(
			ir.O("store", ir.NewObject(ir.O("jdbc", ir.NewObject(
				ir.O("data-source", ir.String("/subsystem=datasources/data-source=ExampleDS")),
				ir.O("properties", ir.List{ir.String("a"), ir.String("b")}),
				ir.O("fetch-size", ir.Int(200)),
				ir.O("table", ir.NewObject(ir.O("binary", ir.NewObject(
					ir.O("prefix", ir.String("bin")),
					ir.O("columns", ir.List{ir.NewObject(ir.O("name", ir.String("id")))}),
				)))),
			)))),
		)))),
	)))))
}
