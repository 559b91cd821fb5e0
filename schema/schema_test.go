package schema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corenexus/llmfabric/jsonvalue"
)

type weatherQuery struct {
	City  string `json:"city" jsonschema:"required,description=City name"`
	Units string `json:"units,omitempty" jsonschema:"enum=celsius,enum=fahrenheit"`
}

func TestReflect_ObjectShape(t *testing.T) {
	frag, err := Reflect[weatherQuery]()
	require.NoError(t, err)

	obj, ok := frag.AsObject()
	require.True(t, ok)

	typ, ok := obj["type"].AsString()
	require.True(t, ok)
	require.Equal(t, "object", typ)

	props, ok := obj["properties"].AsObject()
	require.True(t, ok)
	require.Contains(t, props, "city")

	required, ok := obj["required"].AsArray()
	require.True(t, ok)
	names := make([]string, len(required))
	for i, r := range required {
		s, _ := r.AsString()
		names[i] = s
	}
	require.Contains(t, names, "city")

	additional, ok := obj["additionalProperties"].AsBool()
	require.True(t, ok)
	require.False(t, additional)
}

type customSchema struct{}

func (customSchema) JSONSchema() jsonvalue.Value {
	return jsonvalue.Object(map[string]jsonvalue.Value{
		"type": jsonvalue.String("string"),
		"enum": jsonvalue.Array([]jsonvalue.Value{jsonvalue.String("a"), jsonvalue.String("b")}),
	})
}

func TestReflect_PrefersSchemaInterface(t *testing.T) {
	frag, err := Reflect[customSchema]()
	require.NoError(t, err)
	obj, _ := frag.AsObject()
	typ, _ := obj["type"].AsString()
	require.Equal(t, "string", typ)
}

func TestCompile_ValidatesPayload(t *testing.T) {
	frag, err := Reflect[weatherQuery]()
	require.NoError(t, err)
	require.NoError(t, Validate(frag, []byte(`{"city":"Paris"}`)))
	require.Error(t, Validate(frag, []byte(`{"units":"celsius"}`)))
}
