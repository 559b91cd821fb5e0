// Package schema implements the JSON-Schema contract: a type participating
// in structured output exposes an immutable JSON-Schema fragment, with
// nested types embedded verbatim (no $ref indirection) and property-level
// decorations flattened into description/enum.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"

	invopop "github.com/invopop/jsonschema"
	jsv6 "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/corenexus/llmfabric/jsonvalue"
)

// Schema is implemented by application types that know how to describe
// their own shape without reflection.
type Schema interface {
	JSONSchema() jsonvalue.Value
}

// Reflect derives a JSON-Schema fragment for T via struct-tag reflection,
// using the same invopop/jsonschema reflector the rest of the ecosystem
// reaches for when a type does not implement Schema itself. DoNotReference
// is forced on so nested struct references are expanded inline rather than
// emitted as $ref, matching the no-indirection rule of the contract.
func Reflect[T any]() (jsonvalue.Value, error) {
	var zero T
	if s, ok := any(zero).(Schema); ok {
		return s.JSONSchema(), nil
	}
	r := &invopop.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
		RequiredFromJSONSchemaTags: false,
	}
	raw := r.Reflect(zero)
	data, err := json.Marshal(raw)
	if err != nil {
		return jsonvalue.Value{}, fmt.Errorf("schema: reflect %s: %w", reflect.TypeOf(zero), err)
	}
	v, err := jsonvalue.FromBytes(data)
	if err != nil {
		return jsonvalue.Value{}, fmt.Errorf("schema: decode reflected schema: %w", err)
	}
	return normalizeObjectFragment(v), nil
}

// normalizeObjectFragment enforces additionalProperties:false on every
// nested object fragment produced by the reflector, since invopop only sets
// it at the root when AllowAdditionalProperties is false.
func normalizeObjectFragment(v jsonvalue.Value) jsonvalue.Value {
	obj, ok := v.AsObject()
	if !ok {
		return v
	}
	if t, ok := obj["type"]; ok {
		if s, _ := t.AsString(); s == "object" {
			if _, has := obj["additionalProperties"]; !has {
				obj["additionalProperties"] = jsonvalue.Bool(false)
			}
		}
	}
	if props, ok := obj["properties"]; ok {
		if pm, ok := props.AsObject(); ok {
			norm := make(map[string]jsonvalue.Value, len(pm))
			for k, p := range pm {
				norm[k] = normalizeObjectFragment(p)
			}
			obj["properties"] = jsonvalue.Object(norm)
		}
	}
	if items, ok := obj["items"]; ok {
		obj["items"] = normalizeObjectFragment(items)
	}
	return jsonvalue.Object(obj)
}

// Compile wraps santhosh-tekuri/jsonschema/v6 to check that an emitted
// fragment is well formed against the compiler's own stricter notion of
// JSON Schema; Validate uses it to check a payload against a fragment.
// The structured package does not call either.
func Compile(fragment jsonvalue.Value) (*jsv6.Schema, error) {
	data, err := json.Marshal(fragment)
	if err != nil {
		return nil, fmt.Errorf("schema: marshal fragment: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("schema: unmarshal fragment: %w", err)
	}
	c := jsv6.NewCompiler()
	const resourceName = "llmfabric://fragment.json"
	if err := c.AddResource(resourceName, doc); err != nil {
		return nil, fmt.Errorf("schema: add resource: %w", err)
	}
	compiled, err := c.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("schema: compile: %w", err)
	}
	return compiled, nil
}

// Validate decodes raw JSON bytes and checks them against fragment using
// the compiled jsonschema/v6 validator.
func Validate(fragment jsonvalue.Value, raw []byte) error {
	compiled, err := Compile(fragment)
	if err != nil {
		return err
	}
	var doc any
	dec := json.NewDecoder(jsonReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("schema: decode payload: %w", err)
	}
	return compiled.Validate(doc)
}

func jsonReader(raw []byte) io.Reader {
	return bytes.NewReader(raw)
}
