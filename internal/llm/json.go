package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripFences removes a markdown code-fence wrapper from model output.
//
// Models asked for strict JSON frequently wrap it in ```json ... ``` or
// bare ``` ... ``` blocks; the contents are returned trimmed. Output
// without fences is returned unchanged apart from whitespace trimming.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// ParseJSON decodes model output into v after stripping markdown fences.
//
// A non-nil error is a parse failure, never a service failure; callers are
// expected to recover with their documented fallback values.
func ParseJSON(output string, v any) error {
	cleaned := StripFences(output)
	if cleaned == "" {
		return fmt.Errorf("parse model output: empty response")
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("parse model output: %w", err)
	}
	return nil
}

// Clamp01 clamps model-reported scores into [0,1].
//
// Confidence and quality values parsed from model output are untrusted text
// and must pass through this before being stored on any decision or
// evaluation.
func Clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
