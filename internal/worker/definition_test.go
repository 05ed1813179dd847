package worker

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinitionUnmarshalsRestriction(t *testing.T) {
	raw := `{
		"name": "docs-writer",
		"instructions": "edit documentation",
		"tools": ["read_file", "write_file"],
		"restrict": {"subtree": "/docs", "readonly": true}
	}`

	var def Definition
	require.NoError(t, json.Unmarshal([]byte(raw), &def))
	require.NoError(t, def.Validate())

	assert.Equal(t, "/docs", def.Restrict.Subtree)
	require.NotNil(t, def.Restrict.ReadOnly)
	assert.True(t, *def.Restrict.ReadOnly)
}

func TestDefinitionRestrictionDefaultsToInherit(t *testing.T) {
	raw := `{"name": "helper", "instructions": "assist"}`

	var def Definition
	require.NoError(t, json.Unmarshal([]byte(raw), &def))

	assert.Empty(t, def.Restrict.Subtree)
	assert.Nil(t, def.Restrict.ReadOnly)

	// The zero restriction must not leak back out when definitions are
	// re-serialized for display or persistence.
	out, err := json.Marshal(def)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "restrict")
}
