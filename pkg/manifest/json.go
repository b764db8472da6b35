package manifest

import (
	"encoding/json"
	"fmt"
)

func marshalQuotedString(s string) ([]byte, error) {
	return json.Marshal(s)
}

func unmarshalQuotedString(data []byte) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", fmt.Errorf("expected JSON string: %w", err)
	}
	return s, nil
}
