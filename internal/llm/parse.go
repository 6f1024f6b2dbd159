package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"hermes/internal/intent"
)

func parseIntent(content string) (intent.Intent, error) {
	raw, err := decodeObject(content)
	if err != nil {
		return "", err
	}
	label, _ := raw["intent"].(string)
	in, ok := intent.Parse(label)
	if !ok {
		return "", fmt.Errorf("%w: unknown intent %q", ErrInvalidOutput, label)
	}
	return in, nil
}

// decodeObject pulls the first JSON object out of a completion, tolerating
// prose or code fences around it.
func decodeObject(content string) (map[string]any, error) {
	obj := extractJSONObject(content)
	if obj == "" {
		return nil, fmt.Errorf("%w: no json object found", ErrInvalidOutput)
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	return raw, nil
}

func extractJSONObject(input string) string {
	start := strings.Index(input, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(input); i++ {
		ch := input[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			if ch == '\\' {
				escaped = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return input[start : i+1]
			}
		}
	}
	return ""
}
