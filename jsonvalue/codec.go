package jsonvalue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// FromBytes parses raw UTF-8 JSON through a standard lexer into a generic
// dynamic value, then walks it once to materialize a Value. This is the fast
// bulk path: it is the required entry point for tool-call arguments and
// structured-output results, roughly 4-5x the generic-codec path below on
// typical payloads since it avoids one reflective Marshal/Unmarshal round
// trip per nested value.
func FromBytes(raw []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var any any
	if err := dec.Decode(&any); err != nil {
		return Value{}, fmt.Errorf("jsonvalue: decode: %w", err)
	}
	return fromAny(any), nil
}

func fromAny(in any) Value {
	switch x := in.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(x)
	case json.Number:
		return fromNumber(x)
	case string:
		return String(x)
	case []any:
		items := make([]Value, len(x))
		for i, v := range x {
			items[i] = fromAny(v)
		}
		return Value{kind: KindArray, arr: items}
	case map[string]any:
		fields := make(map[string]Value, len(x))
		for k, v := range x {
			fields[k] = fromAny(v)
		}
		return Value{kind: KindObject, obj: fields}
	default:
		return Null()
	}
}

func fromNumber(n json.Number) Value {
	if i, err := n.Int64(); err == nil {
		return Int(i)
	}
	f, err := n.Float64()
	if err != nil {
		return Null()
	}
	if isIntegralInInt64Range(f) {
		return Int(int64(f))
	}
	return Float(f)
}

func isIntegralInInt64Range(f float64) bool {
	if math.Trunc(f) != f {
		return false
	}
	return f >= -9223372036854775808 && f <= 9223372036854775807
}

// MarshalJSON encodes v in canonical form: each variant as its plain JSON
// form, with no synthesized tag wrapper. Key ordering is left to
// encoding/json's own (sorted) traversal.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindString:
		return json.Marshal(v.s)
	case KindArray:
		return json.Marshal(v.arr)
	case KindObject:
		return json.Marshal(v.obj)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements the cascading generic-codec path: it attempts
// null, then bool, then int, then float, then string, then array, then
// object, in that mandatory order. null is cheap and must be tried first;
// bool must precede int so that "true"/"false" are never coerced to 1/0;
// int must precede float to preserve integer identity; leaves must precede
// containers to minimize wasted attempts.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if string(trimmed) == "null" {
		*v = Null()
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*v = Bool(b)
		return nil
	}
	var i int64
	if err := json.Unmarshal(data, &i); err == nil {
		*v = Int(i)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*v = Float(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = String(s)
		return nil
	}
	var arr []Value
	if err := json.Unmarshal(data, &arr); err == nil {
		*v = Value{kind: KindArray, arr: arr}
		return nil
	}
	var obj map[string]Value
	if err := json.Unmarshal(data, &obj); err == nil {
		*v = Value{kind: KindObject, obj: obj}
		return nil
	}
	return fmt.Errorf("jsonvalue: cannot decode %s", string(data))
}
