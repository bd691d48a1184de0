package model

import (
	"encoding/json"
	"strings"
)

// StructuredAnswer is the JSON shape the system instructions demand from the
// generator: the reasoning in thinking, the answer itself in final_answer.
type StructuredAnswer struct {
	Thinking    string `json:"thinking"`
	FinalAnswer string `json:"final_answer"`
}

// ParseStructuredAnswer extracts the structured answer from raw generator
// output. Models wrap their JSON in markdown fences or stray prose often
// enough that parsing has to be forgiving, so it looks at the outermost
// {...} span. When no usable JSON comes back, the raw text is kept as the
// final answer and the request still succeeds.
func ParseStructuredAnswer(raw string) StructuredAnswer {
	text := strings.TrimSpace(raw)
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			var out StructuredAnswer
			if err := json.Unmarshal([]byte(text[start:end+1]), &out); err == nil && out.FinalAnswer != "" {
				return out
			}
		}
	}
	return StructuredAnswer{FinalAnswer: text}
}
