package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/resmodel/internal/ir"
)

var optionChildren = ir.MapChildren{Attribute: "options", Path: ir.PE("option", "*")}

func entryOp(name ir.OperationName, key string) ir.Operation {
	return ir.Operation{Name: name, Address: aliasAddr.Append(ir.PE("option", key)), Version: "1.4.0"}
}

// optionsDocument returns storeDocument with two options set.
func optionsDocument() ir.Object {
	doc := storeDocument()
	view := &docView{doc: doc}
	store, _ := view.node(storeAddr)
	store["options"] = ir.NewObject(ir.O("url", ir.String("jdbc:h2:mem")), ir.O("user", ir.String("sa")))
	return doc
}

func TestEntryDocument(t *testing.T) {
	model := ir.NewObject(ir.O("options", ir.NewObject(ir.O("url", ir.String("jdbc:h2:mem")))))

	doc, ok := EntryDocument(model, optionChildren, "url")
	require.True(t, ok)
	assert.Equal(t, ir.NewObject(ir.O("value", ir.String("jdbc:h2:mem"))), doc)

	_, ok = EntryDocument(model, optionChildren, "user")
	assert.False(t, ok)
	_, ok = EntryDocument(ir.Object{}, optionChildren, "url")
	assert.False(t, ok)
}

func TestProjectMapEntriesAsChildren(t *testing.T) {
	r := testResolver(t)

	out, err := r.Project(ir.Address{}, optionsDocument(), legacyV)
	require.NoError(t, err)

	store := projectedStore(t, out)
	assert.NotContains(t, store, "options")
	assert.Equal(t, ir.NewObject(
		ir.O("url", ir.NewObject(ir.O("value", ir.String("jdbc:h2:mem")))),
		ir.O("user", ir.NewObject(ir.O("value", ir.String("sa")))),
	), store["option"])

	// Current clients see the map
	out, err = r.Project(storeAddr, ir.NewObject(ir.O("options", ir.NewObject(ir.O("url", ir.String("x"))))), currentV)
	require.NoError(t, err)
	assert.Contains(t, out, "options")
	assert.NotContains(t, out, "option")
}

func TestRewriteEntryAdd(t *testing.T) {
	r := testResolver(t)
	view := &docView{doc: storeDocument()}

	op := entryOp(ir.OpAdd, "url")
	op.Params = ir.NewObject(ir.O("value", ir.String("jdbc:h2:mem")))
	ops, err := r.RewriteEntry(op, legacyPlan(t, r), optionChildren, "url", view)
	require.NoError(t, err)

	require.Len(t, ops, 1)
	assert.Equal(t, ir.OpWriteAttribute, ops[0].Name)
	assert.Equal(t, storeAddr, ops[0].Address)
	assert.Equal(t, "options", ops[0].Attribute)
	assert.Equal(t, ir.NewObject(ir.O("url", ir.String("jdbc:h2:mem"))), ops[0].Value)

	// The projection shows the new entry
	view.apply(t, ops)
	out, err := r.Project(ir.Address{}, view.doc, legacyV)
	require.NoError(t, err)
	assert.Equal(t, ir.NewObject(ir.O("url", ir.NewObject(ir.O("value", ir.String("jdbc:h2:mem"))))),
		projectedStore(t, out)["option"])
}

func TestRewriteEntryWriteKeepsOtherEntries(t *testing.T) {
	r := testResolver(t)
	view := &docView{doc: optionsDocument()}

	op := entryOp(ir.OpWriteAttribute, "user")
	op.Attribute = "value"
	op.Value = ir.String("admin")
	ops, err := r.RewriteEntry(op, legacyPlan(t, r), optionChildren, "user", view)
	require.NoError(t, err)

	require.Len(t, ops, 1)
	assert.Equal(t, ir.NewObject(
		ir.O("url", ir.String("jdbc:h2:mem")),
		ir.O("user", ir.String("admin")),
	), ops[0].Value)
}

func TestRewriteEntryRemove(t *testing.T) {
	r := testResolver(t)
	view := &docView{doc: optionsDocument()}
	plan := legacyPlan(t, r)

	ops, err := r.RewriteEntry(entryOp(ir.OpRemove, "url"), plan, optionChildren, "url", view)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, ir.OpWriteAttribute, ops[0].Name)
	assert.Equal(t, ir.NewObject(ir.O("user", ir.String("sa"))), ops[0].Value)
	view.apply(t, ops)

	// Removing the last entry undefines the map
	ops, err = r.RewriteEntry(entryOp(ir.OpRemove, "user"), plan, optionChildren, "user", view)
	require.NoError(t, err)
	assert.Equal(t, []ir.Operation{{Name: ir.OpUndefineAttribute, Address: storeAddr, Attribute: "options"}}, ops)
}

func TestRewriteEntryErrors(t *testing.T) {
	withParams := func(op ir.Operation, params ir.Object) ir.Operation {
		op.Params = params
		return op
	}
	withAttr := func(op ir.Operation, name string) ir.Operation {
		op.Attribute = name
		op.Value = ir.String("x")
		return op
	}

	tests := []struct {
		name string
		op   ir.Operation
		key  string
		want ir.ErrorKind
	}{
		{"add existing", withParams(entryOp(ir.OpAdd, "url"), ir.NewObject(ir.O("value", ir.String("x")))), "url", ir.KindDuplicatePath},
		{"add without value", withParams(entryOp(ir.OpAdd, "pool"), ir.Object{}), "pool", ir.KindValidationFailure},
		{"add unknown parameter", withParams(entryOp(ir.OpAdd, "pool"), ir.NewObject(ir.O("size", ir.Int(3)))), "pool", ir.KindValidationFailure},
		{"remove missing", entryOp(ir.OpRemove, "pool"), "pool", ir.KindNotFound},
		{"write missing", withAttr(entryOp(ir.OpWriteAttribute, "pool"), "value"), "pool", ir.KindNotFound},
		{"write unknown attribute", withAttr(entryOp(ir.OpWriteAttribute, "url"), "name"), "url", ir.KindValidationFailure},
		{"undefine value", withAttr(entryOp(ir.OpUndefineAttribute, "url"), "value"), "url", ir.KindValidationFailure},
	}

	r := testResolver(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := &docView{doc: optionsDocument()}
			_, err := r.RewriteEntry(tt.op, legacyPlan(t, r), optionChildren, tt.key, view)
			require.Error(t, err)
			assert.Equal(t, tt.want, ir.KindOf(err))

			e, ok := ir.AsError(err)
			require.True(t, ok)
			assert.Equal(t, aliasAddr.Append(ir.PE("option", tt.key)).String(), e.Address)
			assert.Equal(t, "1.4.0", e.Version)
		})
	}
}

func TestRewriteEntryMissingParent(t *testing.T) {
	r := testResolver(t)
	op := entryOp(ir.OpAdd, "url")
	op.Params = ir.NewObject(ir.O("value", ir.String("x")))

	_, err := r.RewriteEntry(op, legacyPlan(t, r), optionChildren, "url", &docView{doc: ir.Object{}})
	assert.Equal(t, ir.KindNotFound, ir.KindOf(err))
}
