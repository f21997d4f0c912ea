package inference

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	t.Run("flat instance matching shape", func(t *testing.T) {
		body := []byte(`{"data": [[1, 2, 3, 4]]}`)

		flat, err := ParseRequest(body, []int{4})
		require.NoError(t, err)
		require.Len(t, flat, 1)
		assert.Equal(t, []float64{1, 2, 3, 4}, flat[0])
	})

	t.Run("nested image-like instance", func(t *testing.T) {
		body := []byte(`{"data": [[[[1, 2], [3, 4]]]]}`)

		flat, err := ParseRequest(body, []int{1, 2, 2})
		require.NoError(t, err)
		require.Len(t, flat, 1)
		assert.Equal(t, []float64{1, 2, 3, 4}, flat[0])
	})

	t.Run("multiple instances", func(t *testing.T) {
		body := []byte(`{"data": [[1, 2], [3, 4], [5, 6]]}`)

		flat, err := ParseRequest(body, []int{2})
		require.NoError(t, err)
		require.Len(t, flat, 3)
		assert.Equal(t, []float64{5, 6}, flat[2])
	})

	t.Run("784-element mnist style payload", func(t *testing.T) {
		pixels := make([]float64, 784)
		for i := range pixels {
			pixels[i] = float64(i) / 784.0
		}
		body, err := json.Marshal(map[string]interface{}{"data": [][]float64{pixels}})
		require.NoError(t, err)

		flat, err := ParseRequest(body, []int{784})
		require.NoError(t, err)
		require.Len(t, flat, 1)
		assert.Len(t, flat[0], 784)
		assert.InDelta(t, 0.5, flat[0][392], 0.01)
	})

	t.Run("wrong inner length rejected", func(t *testing.T) {
		body := []byte(`{"data": [[1, 2, 3]]}`)

		_, err := ParseRequest(body, []int{4})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "instance 0")
		assert.Contains(t, err.Error(), "length 3")
	})

	t.Run("non numeric element rejected", func(t *testing.T) {
		body := []byte(`{"data": [[1, "two"]]}`)

		_, err := ParseRequest(body, []int{2})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "string")
	})

	t.Run("missing data field", func(t *testing.T) {
		_, err := ParseRequest([]byte(`{"inputs": [[1]]}`), []int{1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "required")
	})

	t.Run("data not an array", func(t *testing.T) {
		_, err := ParseRequest([]byte(`{"data": {"a": 1}}`), []int{1})
		require.Error(t, err)
	})

	t.Run("empty data array", func(t *testing.T) {
		_, err := ParseRequest([]byte(`{"data": []}`), []int{1})
		require.Error(t, err)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := ParseRequest([]byte(`not json`), []int{1})
		require.Error(t, err)
	})

	t.Run("too many instances", func(t *testing.T) {
		instances := make([]string, MaxInstances+1)
		for i := range instances {
			instances[i] = "[1]"
		}
		body := []byte(fmt.Sprintf(`{"data": [%s]}`, strings.Join(instances, ",")))

		_, err := ParseRequest(body, []int{1})
		require.Error(t, err)
	})
}

func TestFlattenInstance(t *testing.T) {
	t.Run("nil shape accepts scalar", func(t *testing.T) {
		flat, err := FlattenInstance(3.5, nil)
		require.NoError(t, err)
		assert.Equal(t, []float64{3.5}, flat)
	})

	t.Run("nil shape accepts flat array", func(t *testing.T) {
		flat, err := FlattenInstance([]interface{}{1.0, 2.0}, nil)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2}, flat)
	})

	t.Run("nil shape rejects nested array", func(t *testing.T) {
		_, err := FlattenInstance([]interface{}{[]interface{}{1.0}}, nil)
		require.Error(t, err)
	})

	t.Run("scalar where array expected", func(t *testing.T) {
		_, err := FlattenInstance(1.0, []int{2})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected array")
	})

	t.Run("row major order", func(t *testing.T) {
		instance := []interface{}{
			[]interface{}{1.0, 2.0, 3.0},
			[]interface{}{4.0, 5.0, 6.0},
		}

		flat, err := FlattenInstance(instance, []int{2, 3})
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, flat)
	})
}

func TestElementCount(t *testing.T) {
	assert.Equal(t, 1, ElementCount(nil))
	assert.Equal(t, 784, ElementCount([]int{784}))
	assert.Equal(t, 784, ElementCount([]int{1, 28, 28}))
}

func TestSamplePayload(t *testing.T) {
	t.Run("round trips through validation", func(t *testing.T) {
		shape := []int{1, 28, 28}

		body, err := SamplePayload(shape, 1)
		require.NoError(t, err)

		flat, err := ParseRequest(body, shape)
		require.NoError(t, err)
		require.Len(t, flat, 1)
		assert.Len(t, flat[0], 784)
	})

	t.Run("instance count", func(t *testing.T) {
		body, err := SamplePayload([]int{2}, 3)
		require.NoError(t, err)

		flat, err := ParseRequest(body, []int{2})
		require.NoError(t, err)
		assert.Len(t, flat, 3)
	})

	t.Run("zero instances coerced to one", func(t *testing.T) {
		body, err := SamplePayload([]int{2}, 0)
		require.NoError(t, err)

		flat, err := ParseRequest(body, []int{2})
		require.NoError(t, err)
		assert.Len(t, flat, 1)
	})

	t.Run("too many instances rejected", func(t *testing.T) {
		_, err := SamplePayload([]int{1}, MaxInstances+1)
		require.Error(t, err)
	})
}
