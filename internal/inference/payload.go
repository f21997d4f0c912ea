package inference

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
)

// ScoreRequest is the wire format accepted by endpoint invocations.
// Data holds one or more instances, each shaped like the model's
// declared input shape, e.g. {"data": [[[...28 rows of 28 floats...]]]}.
type ScoreRequest struct {
	Data json.RawMessage `json:"data"`
}

// ScoreResponse is the wire format returned by backing scorers
type ScoreResponse struct {
	Predictions json.RawMessage `json:"predictions"`
}

// MaxInstances bounds how many instances a single invocation may carry
const MaxInstances = 256

// ParseRequest decodes and structurally validates an invocation body
// against the model's input shape. It returns the instances flattened
// to row-major float64 slices.
func ParseRequest(body []byte, shape []int) ([][]float64, error) {
	var req ScoreRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, apperrors.BadRequest("request body must be a JSON object with a \"data\" field")
	}
	if len(req.Data) == 0 {
		return nil, apperrors.BadRequest("\"data\" field is required")
	}

	var instances []interface{}
	if err := json.Unmarshal(req.Data, &instances); err != nil {
		return nil, apperrors.BadRequest("\"data\" must be an array of instances")
	}
	if len(instances) == 0 {
		return nil, apperrors.BadRequest("\"data\" must contain at least one instance")
	}
	if len(instances) > MaxInstances {
		return nil, apperrors.BadRequest(fmt.Sprintf("\"data\" may contain at most %d instances", MaxInstances))
	}

	flat := make([][]float64, 0, len(instances))
	for i, inst := range instances {
		values, err := FlattenInstance(inst, shape)
		if err != nil {
			return nil, apperrors.BadRequest(fmt.Sprintf("instance %d: %v", i, err))
		}
		flat = append(flat, values)
	}

	return flat, nil
}

// FlattenInstance checks one instance against the declared shape and
// returns its values in row-major order. A nil or empty shape accepts
// either a single number or a flat numeric array.
func FlattenInstance(instance interface{}, shape []int) ([]float64, error) {
	if len(shape) == 0 {
		return flattenFree(instance)
	}

	out := make([]float64, 0, ElementCount(shape))
	if err := flattenShaped(instance, shape, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ElementCount returns the number of scalar elements a shape describes
func ElementCount(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func flattenShaped(v interface{}, shape []int, out *[]float64) error {
	if len(shape) == 0 {
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("expected number, got %s", jsonTypeName(v))
		}
		*out = append(*out, f)
		return nil
	}

	arr, ok := v.([]interface{})
	if !ok {
		return fmt.Errorf("expected array of length %d, got %s", shape[0], jsonTypeName(v))
	}
	if len(arr) != shape[0] {
		return fmt.Errorf("expected array of length %d, got length %d", shape[0], len(arr))
	}

	for _, elem := range arr {
		if err := flattenShaped(elem, shape[1:], out); err != nil {
			return err
		}
	}
	return nil
}

func flattenFree(v interface{}) ([]float64, error) {
	switch t := v.(type) {
	case float64:
		return []float64{t}, nil
	case []interface{}:
		out := make([]float64, 0, len(t))
		for _, elem := range t {
			f, ok := elem.(float64)
			if !ok {
				return nil, fmt.Errorf("expected number, got %s", jsonTypeName(elem))
			}
			out = append(out, f)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected number or numeric array, got %s", jsonTypeName(v))
	}
}

func jsonTypeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	}
	return "unknown"
}

// SamplePayload builds a zero-valued invocation body for the given
// input shape with the requested number of instances. Clients use it to
// see what an endpoint expects before sending real data.
func SamplePayload(shape []int, instances int) ([]byte, error) {
	if instances < 1 {
		instances = 1
	}
	if instances > MaxInstances {
		return nil, apperrors.BadRequest(fmt.Sprintf("at most %d instances", MaxInstances))
	}

	data := make([]interface{}, instances)
	for i := range data {
		data[i] = zeroTensor(shape)
	}

	return json.Marshal(map[string]interface{}{"data": data})
}

func zeroTensor(shape []int) interface{} {
	if len(shape) == 0 {
		return 0.0
	}
	out := make([]interface{}, shape[0])
	for i := range out {
		out[i] = zeroTensor(shape[1:])
	}
	return out
}
