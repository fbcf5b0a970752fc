package ir

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentHashDeterminism(t *testing.T) {
	doc := Object{
		"data-source": String("ExampleDS"),
		"table":       Object{"binary": Object{"prefix": String("ispn_bucket")}},
	}

	h1, err := DocumentHash(doc)
	require.NoError(t, err)
	h2, err := DocumentHash(doc.Clone())
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
	_, err = hex.DecodeString(h1)
	assert.NoError(t, err)
}

func TestDocumentHashChangesWithContent(t *testing.T) {
	h1, err := DocumentHash(Object{"prefix": String("a")})
	require.NoError(t, err)
	h2, err := DocumentHash(Object{"prefix": String("b")})
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestDomainSeparationPreventsCrossTypeCollision(t *testing.T) {
	data := []byte(`{}`)
	assert.NotEqual(t,
		hashWithDomain(DomainDocument, data),
		hashWithDomain(DomainOperation, data),
	)
}

func TestHashWithDomainNullSeparator(t *testing.T) {
	// "ab" + "c" must not collide with "a" + "bc"
	assert.NotEqual(t,
		hashWithDomain("ab", []byte("c")),
		hashWithDomain("a", []byte("bc")),
	)
}

func TestOperationHashIgnoresConstructionOrder(t *testing.T) {
	op1 := Operation{
		Name:    OpAdd,
		Address: MustAddress("/subsystem=infinispan/store=jdbc"),
		Params:  Object{"a": Int(1), "b": Int(2)},
	}
	op2 := Operation{
		Name:    OpAdd,
		Address: MustAddress("/subsystem=infinispan/store=jdbc"),
		Params:  NewObject(O("b", Int(2)), O("a", Int(1))),
	}

	h1, err := OperationHash(op1)
	require.NoError(t, err)
	h2, err := OperationHash(op2)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestDefinitionsHashStable(t *testing.T) {
	defs := []*ResourceDefinition{{
		Path: PE("store", "jdbc"),
		Attributes: map[string]AttributeSchema{
			"data-source": {Name: "data-source", Type: TypeString, Required: true},
		},
	}}

	h1, err := DefinitionsHash(defs)
	require.NoError(t, err)
	h2, err := DefinitionsHash(defs)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	defs[0].Attributes["fetch-size"] = AttributeSchema{Name: "fetch-size", Type: TypeInteger}
	h3, err := DefinitionsHash(defs)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}
