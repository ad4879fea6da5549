package output

import (
	"encoding/base64"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// NormalizeJSONValue rewrites CBOR-decoded values so encoding/json accepts
// them: map keys become strings, byte strings become base64 and tags become
// {"tag": n, "value": ...}.
func NormalizeJSONValue(value any) any {
	switch v := value.(type) {
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[fmt.Sprint(key)] = NormalizeJSONValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = NormalizeJSONValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = NormalizeJSONValue(item)
		}
		return out
	case []byte:
		return base64.StdEncoding.EncodeToString(v)
	case cbor.Tag:
		return map[string]any{
			"tag":   v.Number,
			"value": NormalizeJSONValue(v.Content),
		}
	default:
		return v
	}
}
