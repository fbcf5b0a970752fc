package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionPolicyThresholds(t *testing.T) {
	p, err := NewVersionPolicy("2.0.0", map[string]string{
		"tables-as-children": "1.4.0",
		"properties-map":     "1.3.0",
	})
	require.NoError(t, err)

	v, err := p.Threshold("tables-as-children")
	require.NoError(t, err)
	assert.Equal(t, "1.4.0", v.String())

	v, err = p.Threshold("1.2.0")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", v.String())

	_, err = p.Threshold("no-such-threshold")
	assert.Error(t, err)

	assert.Equal(t, []string{"properties-map", "tables-as-children"}, p.ThresholdNames())
}

func TestVersionPolicyClientVersion(t *testing.T) {
	p := MustVersionPolicy("2.0.0", nil)

	v, err := p.ClientVersion("")
	require.NoError(t, err)
	assert.True(t, p.IsCurrent(v))

	v, err = p.ClientVersion("1.4.0")
	require.NoError(t, err)
	assert.False(t, p.IsCurrent(v))

	_, err = p.ClientVersion("3.0.0")
	assert.Error(t, err, "clients newer than the model are rejected")
}

func TestVersionPolicyRejectsThresholdAboveCurrent(t *testing.T) {
	_, err := NewVersionPolicy("1.0.0", map[string]string{"future": "1.1.0"})
	assert.Error(t, err)
}

func TestIndependentPolicies(t *testing.T) {
	a := MustVersionPolicy("1.0.0", map[string]string{"legacy": "0.9.0"})
	b := MustVersionPolicy("3.0.0", map[string]string{"legacy": "2.5.0"})

	va, err := a.Threshold("legacy")
	require.NoError(t, err)
	vb, err := b.Threshold("legacy")
	require.NoError(t, err)
	assert.NotEqual(t, va.String(), vb.String())
}
