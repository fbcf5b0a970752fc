package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/resmodel/internal/compiler"
	"github.com/roach88/resmodel/internal/ir"
	"github.com/roach88/resmodel/internal/registry"
)

const infinispanCUE = `
versions: {
	current: "2.0.0"
	thresholds: "tables-as-children": "2.0.0"
}

attribute_sets: {
	store: attributes: {
		shared:      {type: "boolean", default: false}
		passivation: {type: "boolean", default: true}
	}
	"jdbc-store": {
		bases: ["store"]
		attributes: {
			"data-source": {type: "reference", required: true}
			dialect: {type: "string", allowed: ["H2", "POSTGRES", "MYSQL"]}
		}
	}
	table: attributes: {
		columns: {type: "list", element_type: "map"}
		"batch-size": {type: "integer", default: 100}
	}
}

resource: "subsystem=infinispan": children: "cache-container=*": {
	attributes: "default-cache": {type: "string"}
	children: "store=jdbc": {
		legacy_paths: ["mixed-keyed-jdbc-store=MIXED_KEYED_JDBC_STORE"]
		bases: ["jdbc-store"]
		builder: "jdbc-store"
		required_children: ["table=string"]
		attributes: {
			"binary-table": {type: "map", deprecated_by: "table=binary"}
			"string-table": {type: "map", deprecated_by: "table=string"}
			"fetch-size": {type: "integer", default: 100, since: "2.0.0"}
			properties: {type: "map", element_type: "string"}
		}
		children: {
			"table=binary": {
				bases: ["table"]
				attributes: prefix: {type: "string", default: "ispn_bucket"}
			}
			"table=string": {
				bases: ["table"]
				attributes: prefix: {type: "string", default: "ispn_entry"}
			}
		}
		transformations: [{
			applies_below: "tables-as-children"
			path_redirect: "mixed-keyed-jdbc-store=MIXED_KEYED_JDBC_STORE"
			attribute_rewrites: [
				{deprecated: "binary-table", target: "table=binary"},
				{deprecated: "string-table", target: "table=string"},
			]
			map_children: [{attribute: "properties", path: "property=*"}]
		}]
	}
}
`

const (
	legacy     = "1.4.0"
	dataSource = ir.String("/subsystem=datasources/data-source=ExampleDS")
)

var (
	subsystemAddr = ir.MustAddress("/subsystem=infinispan")
	containerAddr = ir.MustAddress("/subsystem=infinispan/cache-container=web")
	storeAddr     = ir.MustAddress("/subsystem=infinispan/cache-container=web/store=jdbc")
	aliasAddr     = ir.MustAddress("/subsystem=infinispan/cache-container=web/mixed-keyed-jdbc-store=MIXED_KEYED_JDBC_STORE")
	binaryAddr    = storeAddr.Append(ir.PE("table", "binary"))
	stringAddr    = storeAddr.Append(ir.PE("table", "string"))
)

func testModel(t *testing.T) *compiler.Model {
	t.Helper()
	m, err := compiler.CompileString(infinispanCUE)
	require.NoError(t, err)
	return m
}

func testRegistry(t *testing.T) (*registry.Registry, ir.VersionPolicy) {
	t.Helper()
	m := testModel(t)
	reg, err := registry.Build(m.Resources)
	require.NoError(t, err)
	policy, err := m.Versions.Policy()
	require.NoError(t, err)
	return reg, policy
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newController(t *testing.T, opts ...Option) *Controller {
	t.Helper()
	reg, policy := testRegistry(t)
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	c, err := New(reg, policy, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func exec(t *testing.T, c *Controller, op ir.Operation) *ir.Result {
	t.Helper()
	res, err := c.Execute(context.Background(), op)
	require.NoError(t, err, "%s", op)
	return res
}

func add(addr ir.Address, version string, params ir.Object) ir.Operation {
	return ir.Operation{Name: ir.OpAdd, Address: addr, Version: version, Params: params}
}

func write(addr ir.Address, version, name string, v ir.Value) ir.Operation {
	return ir.Operation{Name: ir.OpWriteAttribute, Address: addr, Version: version, Attribute: name, Value: v}
}

func undefine(addr ir.Address, version, name string) ir.Operation {
	return ir.Operation{Name: ir.OpUndefineAttribute, Address: addr, Version: version, Attribute: name}
}

func readAttr(addr ir.Address, version, name string) ir.Operation {
	return ir.Operation{Name: ir.OpReadAttribute, Address: addr, Version: version, Attribute: name}
}

func readResource(addr ir.Address, version string, recursive bool) ir.Operation {
	return ir.Operation{Name: ir.OpReadResource, Address: addr, Version: version, Recursive: recursive}
}

func remove(addr ir.Address) ir.Operation {
	return ir.Operation{Name: ir.OpRemove, Address: addr}
}

// withContainer adds the subsystem and the web container.
func withContainer(t *testing.T, c *Controller) {
	t.Helper()
	exec(t, c, add(subsystemAddr, "", nil))
	exec(t, c, add(containerAddr, "", nil))
}

// withLegacyStore adds the container and a store through the legacy alias.
func withLegacyStore(t *testing.T, c *Controller) {
	t.Helper()
	withContainer(t, c)
	exec(t, c, add(aliasAddr, legacy, ir.Object{"data-source": dataSource}))
}

func binaryTable() ir.Object {
	return ir.Object{
		"columns": ir.List{
			ir.Object{"name": ir.String("id"), "type": ir.String("VARCHAR")},
			ir.Object{"name": ir.String("datum"), "type": ir.String("BINARY")},
		},
	}
}
