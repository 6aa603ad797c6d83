package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	trailingCommaObj = regexp.MustCompile(`,\s*}`)
	trailingCommaArr = regexp.MustCompile(`,\s*]`)

	// Matches a single object with at most one level of nesting. Last-resort
	// recovery when the surrounding text broke the outer braces.
	shallowObject = regexp.MustCompile(`\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)
)

// ExtractObject coerces noisy model output into a JSON object. The recovery
// layers run in order: strip one fenced code block, slice from the first '{'
// to the last '}', strict parse, retry with trailing commas removed, and
// finally retry on a shallow balanced-object substring. Returns
// ErrMalformedResponse carrying a 200-character snippet when everything fails.
func ExtractObject(text string) (map[string]any, error) {
	cleaned := stripCodeFence(strings.TrimSpace(text))
	cleaned = sliceBraces(cleaned)

	var obj map[string]any
	if err := json.Unmarshal([]byte(cleaned), &obj); err == nil {
		return obj, nil
	}

	// Trailing commas are the most common local-model defect.
	repaired := trailingCommaObj.ReplaceAllString(cleaned, "}")
	repaired = trailingCommaArr.ReplaceAllString(repaired, "]")
	if err := json.Unmarshal([]byte(repaired), &obj); err == nil {
		return obj, nil
	}

	for _, match := range shallowObject.FindAllString(repaired, -1) {
		if err := json.Unmarshal([]byte(match), &obj); err == nil {
			return obj, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, snippet(cleaned, 200))
}

// stripCodeFence removes one leading/trailing markdown code fence
// (```json ... ``` or bare ```).
func stripCodeFence(s string) string {
	if start := strings.Index(s, "```json"); start != -1 {
		start += len("```json")
		if end := strings.Index(s[start:], "```"); end != -1 {
			return strings.TrimSpace(s[start : start+end])
		}
	}
	if strings.HasPrefix(s, "```") {
		s = s[3:]
		if end := strings.LastIndex(s, "```"); end != -1 {
			s = s[:end]
		}
		return strings.TrimSpace(s)
	}
	return s
}

// sliceBraces discards leading/trailing prose around the outermost object.
func sliceBraces(s string) string {
	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first >= 0 && last > first {
		return strings.TrimSpace(s[first : last+1])
	}
	return strings.TrimSpace(s)
}

func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
