package tools

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeOutputNil(t *testing.T) {
	assert.Equal(t, OutputPlaceholder, NormalizeOutput(nil))

	var m map[string]interface{}
	assert.Equal(t, OutputPlaceholder, NormalizeOutput(m))
}

func TestNormalizeOutputCycle(t *testing.T) {
	cyclic := map[string]interface{}{"name": "root"}
	cyclic["self"] = cyclic

	out, ok := NormalizeOutput(cyclic).(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, "root", out["name"])
	assert.Equal(t, CycleMarker, out["self"])

	// Serialization of the normalized form must not recurse forever.
	assert.NotEmpty(t, SafeMarshal(cyclic))
}

func TestNormalizeOutputSliceCycle(t *testing.T) {
	inner := []interface{}{nil}
	inner[0] = inner

	out, ok := NormalizeOutput(inner).([]interface{})
	assert.True(t, ok)
	assert.Equal(t, CycleMarker, out[0])
}

func TestNormalizeOutputBigNumbers(t *testing.T) {
	assert.Equal(t, "9007199254740993", NormalizeOutput(int64(9007199254740993)))
	assert.Equal(t, "18446744073709551615", NormalizeOutput(uint64(math.MaxUint64)))
	assert.Equal(t, int64(42), NormalizeOutput(int64(42)))

	huge := new(big.Int).Lsh(big.NewInt(1), 100)
	assert.Equal(t, huge.String(), NormalizeOutput(huge))

	assert.Equal(t, "NaN", NormalizeOutput(math.NaN()))
	assert.Equal(t, "18014398509481984", NormalizeOutput(float64(1<<54)))
}

func TestNormalizeOutputSharedValueIsNotACycle(t *testing.T) {
	shared := map[string]interface{}{"k": "v"}
	wrapper := map[string]interface{}{"a": shared, "b": shared}

	out := NormalizeOutput(wrapper).(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"k": "v"}, out["a"])
	assert.Equal(t, map[string]interface{}{"k": "v"}, out["b"])
}

func TestSafeMarshalStruct(t *testing.T) {
	type sample struct {
		Path   string `json:"path"`
		Size   int64  `json:"size"`
		hidden string
	}

	out := SafeMarshal(sample{Path: "/a", Size: 3, hidden: "x"})
	assert.Contains(t, out, `"path":"/a"`)
	assert.NotContains(t, out, "hidden")
}
