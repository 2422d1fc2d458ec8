package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ExtractJSON pulls the JSON payload out of a model response. Models wrap
// output in code fences or prose despite instructions, and occasionally emit
// structurally broken JSON; the jsonrepair pass recovers those.
func ExtractJSON(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)

	if fenced := insideFence(candidate); fenced != "" {
		candidate = fenced
	} else if bounded := boundedJSON(candidate); bounded != "" {
		candidate = bounded
	}
	if candidate == "" {
		return "", fmt.Errorf("no json found in response")
	}
	if json.Valid([]byte(candidate)) {
		return candidate, nil
	}
	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return "", fmt.Errorf("repairing json: %w", err)
	}
	if !json.Valid([]byte(repaired)) {
		return "", fmt.Errorf("response is not valid json after repair")
	}
	return repaired, nil
}

// insideFence returns the contents of the first ``` code fence, or "".
func insideFence(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return ""
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Skip a language tag like "json" on the fence line.
		tag := strings.TrimSpace(rest[:nl])
		if tag == "" || !strings.ContainsAny(tag, "{}[]") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

// boundedJSON returns the substring from the first { or [ to the matching
// last } or ], or "".
func boundedJSON(s string) string {
	objStart := strings.IndexByte(s, '{')
	arrStart := strings.IndexByte(s, '[')
	start := objStart
	closer := byte('}')
	if start < 0 || (arrStart >= 0 && arrStart < start) {
		start = arrStart
		closer = ']'
	}
	if start < 0 {
		return ""
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		// Truncated output; hand the open prefix to the repairer.
		return strings.TrimSpace(s[start:])
	}
	return strings.TrimSpace(s[start : end+1])
}
