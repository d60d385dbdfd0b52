package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/simkernel/internal/value"
	"github.com/roach88/simkernel/internal/world"
)

// marshalData converts an event payload to canonical JSON TEXT for storage.
// Canonical form keeps stored logs comparable across runs.
func marshalData(v value.Value) (string, error) {
	data, err := value.Canonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal data: %w", err)
	}
	return string(data), nil
}

// unmarshalData parses stored JSON TEXT back into a Value.
func unmarshalData(data string) (value.Value, error) {
	if data == "" {
		return value.Null{}, nil
	}
	v, err := value.Parse([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal data: %w", err)
	}
	return v, nil
}

// marshalTrace converts a trace to a JSON array of {component, kind}.
// A nil trace is stored as [].
func marshalTrace(t world.Trace) (string, error) {
	if t == nil {
		t = world.Trace{}
	}
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal trace: %w", err)
	}
	return string(data), nil
}

func unmarshalTrace(data string) (world.Trace, error) {
	t := world.Trace{}
	if data == "" {
		return t, nil
	}
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("unmarshal trace: %w", err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
