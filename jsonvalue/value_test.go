package jsonvalue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromBytes_FastPath(t *testing.T) {
	raw := []byte(`{"q":"hi","n":5,"b":true,"arr":[1,2.5,null]}`)
	v, err := FromBytes(raw)
	require.NoError(t, err)
	require.Equal(t, KindObject, v.Kind())

	q, ok := v.Get("q")
	require.True(t, ok)
	s, ok := q.AsString()
	require.True(t, ok)
	require.Equal(t, "hi", s)

	n, ok := v.Get("n")
	require.True(t, ok)
	i, ok := n.AsInt()
	require.True(t, ok)
	require.Equal(t, int64(5), i)

	b, ok := v.Get("b")
	require.True(t, ok)
	bv, ok := b.AsBool()
	require.True(t, ok)
	require.True(t, bv)

	arrVal, ok := v.Get("arr")
	require.True(t, ok)
	arr, ok := arrVal.AsArray()
	require.True(t, ok)
	require.Len(t, arr, 3)

	first, ok := arr[0].AsInt()
	require.True(t, ok)
	require.Equal(t, int64(1), first)

	second, ok := arr[1].AsFloat()
	require.True(t, ok)
	require.Equal(t, 2.5, second)

	require.True(t, arr[2].IsNull())
}

func TestFromBytes_IntBoundary(t *testing.T) {
	v, err := FromBytes([]byte(`9223372036854775807`))
	require.NoError(t, err)
	i, ok := v.AsInt()
	require.True(t, ok)
	require.Equal(t, int64(9223372036854775807), i)

	v, err = FromBytes([]byte(`-9223372036854775808`))
	require.NoError(t, err)
	i, ok = v.AsInt()
	require.True(t, ok)
	require.Equal(t, int64(-9223372036854775808), i)
}

func TestEqual_EmptyArrayVsEmptyObject(t *testing.T) {
	require.False(t, Array(nil).Equal(Object(nil)))
}

func TestEqual_IntFloatDistinct(t *testing.T) {
	require.False(t, Int(2).Equal(Float(2)))
}

func TestEqual_ObjectOrderIndependent(t *testing.T) {
	a := Object(map[string]Value{"x": Int(1), "y": Int(2)})
	b := Object(map[string]Value{"y": Int(2), "x": Int(1)})
	require.True(t, a.Equal(b))
}

func TestRoundTrip_DecodeEncode(t *testing.T) {
	cases := []Value{
		Null(),
		Bool(true),
		Int(42),
		Float(3.5),
		String("hello"),
		Array([]Value{Int(1), String("x"), Null()}),
		Object(map[string]Value{"a": Int(1), "b": Array([]Value{Bool(false)})}),
	}
	for _, v := range cases {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		var out Value
		require.NoError(t, json.Unmarshal(data, &out))
		require.True(t, v.Equal(out), "round trip mismatch for %s", v.GoString())
	}
}

func TestUnmarshalJSON_CascadeOrder(t *testing.T) {
	var v Value
	require.NoError(t, json.Unmarshal([]byte("true"), &v))
	_, ok := v.AsBool()
	require.True(t, ok, "bool must not be coerced into int")

	require.NoError(t, json.Unmarshal([]byte("1"), &v))
	_, ok = v.AsInt()
	require.True(t, ok, "whole numbers must decode as int, not float")

	require.NoError(t, json.Unmarshal([]byte("1.5"), &v))
	_, ok = v.AsFloat()
	require.True(t, ok)
}

func TestIndex_OutOfBoundsAndNegative(t *testing.T) {
	v := Array([]Value{Int(1), Int(2)})
	_, ok := v.Index(-1)
	require.False(t, ok)
	_, ok = v.Index(2)
	require.False(t, ok)
	got, ok := v.Index(1)
	require.True(t, ok)
	i, _ := got.AsInt()
	require.Equal(t, int64(2), i)
}
