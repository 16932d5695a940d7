package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// thinkTagPattern matches a leading <think>...</think> block.
var thinkTagPattern = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)

// codeFencePattern matches a markdown code fence opener or closer.
var codeFencePattern = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*$")

// StripCodeFences removes markdown code fences and leading think blocks.
func StripCodeFences(response string) string {
	s := thinkTagPattern.ReplaceAllString(response, "")
	s = codeFencePattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// ExtractJSON returns the first valid JSON object or array in response.
func ExtractJSON(response string) (string, error) {
	cleaned := StripCodeFences(response)
	if json.Valid([]byte(cleaned)) {
		return cleaned, nil
	}

	obj := strings.IndexByte(cleaned, '{')
	arr := strings.IndexByte(cleaned, '[')
	candidates := [][2]byte{{'{', '}'}, {'[', ']'}}
	if arr >= 0 && (obj < 0 || arr < obj) {
		candidates[0], candidates[1] = candidates[1], candidates[0]
	}
	for _, c := range candidates {
		if s, ok := balanced(cleaned, c[0], c[1]); ok && json.Valid([]byte(s)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("no valid JSON found in response")
}

// balanced returns the first bracketed span starting at open, honouring
// string literals and escapes.
func balanced(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseJSONResponse extracts JSON from response and unmarshals it into T.
func ParseJSONResponse[T any](response string) (T, error) {
	var result T
	s, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(s), &result); err != nil {
		return result, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return result, nil
}
