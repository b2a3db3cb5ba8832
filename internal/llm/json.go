package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON strips markdown code fences and surrounding prose from an LLM
// response, returning the JSON text or an error if none is present.
func ExtractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty response")
	}

	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		endIdx := len(lines) - 1
		for i := len(lines) - 1; i > 0; i-- {
			if strings.TrimSpace(lines[i]) == "```" {
				endIdx = i
				break
			}
		}
		text = strings.TrimSpace(strings.Join(lines[1:endIdx], "\n"))
	}

	// Models sometimes preface the JSON with a sentence. Cut to the first
	// brace or bracket.
	if !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "[") {
		obj := strings.IndexAny(text, "{[")
		if obj < 0 {
			return "", fmt.Errorf("no JSON object in response")
		}
		text = text[obj:]
	}

	if !json.Valid([]byte(text)) {
		return "", fmt.Errorf("invalid JSON in response")
	}
	return text, nil
}

// ParseJSONResponse parses a JSON object response, returning nil when it
// cannot be parsed.
func ParseJSONResponse(text string) map[string]any {
	cleaned, err := ExtractJSON(text)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil
	}
	return result
}
