package bedrock

import (
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"

	"github.com/corenexus/llmfabric/jsonvalue"
)

// toDocument converts a JSONValue into Bedrock's vendor document type. The
// conversion is lossless for every JSONValue variant: null, bool, int,
// float, string, array, and object all have a direct document counterpart.
func toDocument(v jsonvalue.Value) document.Interface {
	return document.NewLazyDocument(toPlain(v))
}

func toPlain(v jsonvalue.Value) any {
	switch v.Kind() {
	case jsonvalue.KindNull:
		return nil
	case jsonvalue.KindBool:
		b, _ := v.AsBool()
		return b
	case jsonvalue.KindInt:
		i, _ := v.AsInt()
		return i
	case jsonvalue.KindFloat:
		f, _ := v.AsFloat()
		return f
	case jsonvalue.KindString:
		s, _ := v.AsString()
		return s
	case jsonvalue.KindArray:
		items, _ := v.AsArray()
		out := make([]any, len(items))
		for i, it := range items {
			out[i] = toPlain(it)
		}
		return out
	case jsonvalue.KindObject:
		fields, _ := v.AsObject()
		out := make(map[string]any, len(fields))
		for k, fv := range fields {
			out[k] = toPlain(fv)
		}
		return out
	default:
		return nil
	}
}

// fromDocument converts a Bedrock vendor document back into a JSONValue.
// Unmarshaling failures and unsupported document variants decode to null,
// per the adapter's documented lossy-on-the-way-back contract.
func fromDocument(doc document.Interface) jsonvalue.Value {
	if doc == nil {
		return jsonvalue.Null()
	}
	data, err := doc.MarshalSmithyDocument()
	if err != nil || len(data) == 0 {
		return jsonvalue.Null()
	}
	v, err := jsonvalue.FromBytes(data)
	if err != nil {
		return jsonvalue.Null()
	}
	return v
}
