package executors

import (
	"context"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/kbukum/flowgate/orchestrator"
)

// readProperty outputs the value at a dotted property path of a JSON
// object. Strings are returned bare, anything else as JSON.
func readProperty(_ context.Context, n *orchestrator.NodeEnv) error {
	obj, err := decodeObject(n.Input("JSON"))
	if err != nil {
		return err
	}
	path := n.Input("Property name")

	var cur any = obj
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return fmt.Errorf("property %q: %q is not an object", path, key)
		}
		if cur, ok = m[key]; !ok {
			return fmt.Errorf("property %q not found", path)
		}
	}

	if s, ok := cur.(string); ok {
		n.SetOutput("Property value", s)
		return nil
	}
	raw, err := json.Marshal(cur)
	if err != nil {
		return fmt.Errorf("encode property %q: %w", path, err)
	}
	n.SetOutput("Property value", string(raw))
	return nil
}

// addProperty sets a dotted property path on a JSON object, creating
// intermediate objects. A value that parses as JSON is stored as such.
func addProperty(_ context.Context, n *orchestrator.NodeEnv) error {
	obj, err := decodeObject(n.Input("JSON"))
	if err != nil {
		return err
	}
	path := n.Input("Property name")
	keys := strings.Split(path, ".")

	cur := obj
	for _, key := range keys[:len(keys)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			if _, exists := cur[key]; exists {
				return fmt.Errorf("property %q: %q is not an object", path, key)
			}
			next = make(map[string]any)
			cur[key] = next
		}
		cur = next
	}

	var value any = n.Input("Property value")
	var parsed any
	if err := json.Unmarshal([]byte(n.Input("Property value")), &parsed); err == nil {
		value = parsed
	}
	cur[keys[len(keys)-1]] = value

	raw, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	n.SetOutput("Updated JSON", string(raw))
	return nil
}

func decodeObject(s string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, fmt.Errorf("input is not a JSON object: %w", err)
	}
	if obj == nil {
		obj = make(map[string]any)
	}
	return obj, nil
}
