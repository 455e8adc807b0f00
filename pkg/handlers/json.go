package handlers

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/sandrolain/gorigami/pkg/types"
)

// JSON parses the data as JSON. Objects become map[string]interface{},
// arrays []interface{}, numbers float64, and null types.Null.
func JSON(_ context.Context, _ string, data []byte) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return withNull(v), nil
}

func withNull(v interface{}) interface{} {
	switch t := v.(type) {
	case nil:
		return types.NullValue
	case map[string]interface{}:
		for k, item := range t {
			t[k] = withNull(item)
		}
	case []interface{}:
		for i, item := range t {
			t[i] = withNull(item)
		}
	}
	return v
}
