package capability

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON locates and unmarshals the first JSON value in an LLM
// response. Models frequently wrap JSON in markdown fences or prose, so
// the scan is tolerant: fences are stripped, then the outermost bracket
// pair is taken.
func ExtractJSON(response string, target interface{}) error {
	cleaned := stripFences(response)

	jsonStart := strings.Index(cleaned, "{")
	arrStart := strings.Index(cleaned, "[")
	if jsonStart == -1 || (arrStart != -1 && arrStart < jsonStart) {
		jsonStart = arrStart
	}
	jsonEnd := strings.LastIndex(cleaned, "}")
	arrEnd := strings.LastIndex(cleaned, "]")
	if jsonEnd == -1 || arrEnd > jsonEnd {
		jsonEnd = arrEnd
	}

	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		return fmt.Errorf("no valid JSON found in response: %s", truncate(response, 200))
	}

	jsonStr := cleaned[jsonStart : jsonEnd+1]
	if err := json.Unmarshal([]byte(jsonStr), target); err != nil {
		return fmt.Errorf("parse JSON: %w (response: %s)", err, truncate(jsonStr, 200))
	}

	return nil
}

// stripFences removes leading/trailing markdown code fences.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
