// Package llmjson recovers JSON objects from free-text model output.
//
// Model responses are not trusted to be valid JSON. Every function here is
// total: malformed input degrades to a fallback value and a warning log,
// never to an error or panic.
package llmjson

import (
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

type Outcome int

const (
	Unparsed Outcome = iota
	Parsed
)

func (o Outcome) String() string {
	if o == Parsed {
		return "parsed"
	}
	return "unparsed"
}

// Result is either Parsed{Value, Cleaned} or Unparsed{Raw}. For Unparsed
// results Cleaned is the full original text.
type Result struct {
	Outcome Outcome
	Value   map[string]any
	Cleaned string
	Raw     string
}

func (r Result) Parsed() bool {
	return r.Outcome == Parsed
}

// Decode re-encodes the parsed object into v. It reports false for
// unparsed results or shape mismatches.
func (r Result) Decode(v any) bool {
	if !r.Parsed() {
		return false
	}
	raw, err := json.Marshal(r.Value)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

var (
	jsonFencePattern    = regexp.MustCompile("(?s)```[^\\n`]*json[^\\n`]*\\r?\\n(.*?)\\r?\\n?```")
	fenceTokenPattern   = regexp.MustCompile("```json\\n?|\\n?```")
	mermaidFencePattern = regexp.MustCompile("(?s)```mermaid[^\\n]*\\r?\\n(.*?)```")
)

// ExtractJSON splits a response into free text and an embedded JSON object.
// A fenced json block wins; otherwise the text between the last '{' and the
// last '}' is tried.
func ExtractJSON(raw string) Result {
	unparsed := Result{Outcome: Unparsed, Cleaned: raw, Raw: raw}

	if loc := jsonFencePattern.FindStringSubmatchIndex(raw); loc != nil {
		body := raw[loc[2]:loc[3]]
		value, ok := parseObject(body)
		if !ok {
			warn("fenced json block is not a valid object", raw)
			return unparsed
		}
		cleaned := strings.TrimSpace(raw[:loc[0]] + raw[loc[1]:])
		return Result{Outcome: Parsed, Value: value, Cleaned: cleaned, Raw: raw}
	}

	open := strings.LastIndex(raw, "{")
	closing := strings.LastIndex(raw, "}")
	if open == -1 || closing == -1 {
		return unparsed
	}
	if closing < open {
		warn("unbalanced braces in model output", raw)
		return unparsed
	}
	value, ok := parseObject(raw[open : closing+1])
	if !ok {
		warn("trailing json object is not valid", raw)
		return unparsed
	}
	return Result{Outcome: Parsed, Value: value, Cleaned: strings.TrimSpace(raw[:open]), Raw: raw}
}

// StripFences removes ```json and ``` tokens literally.
func StripFences(raw string) string {
	return strings.TrimSpace(fenceTokenPattern.ReplaceAllString(raw, ""))
}

// DecodeObject parses a response that is expected to be only JSON. Fences are
// stripped first; when the remainder still does not parse, the trailing
// object heuristic of ExtractJSON is tried.
func DecodeObject(raw string) (map[string]any, bool) {
	if value, ok := parseObject(StripFences(raw)); ok {
		return value, true
	}
	res := ExtractJSON(raw)
	if res.Parsed() {
		return res.Value, true
	}
	warn("response is not a json object", raw)
	return nil, false
}

// ErrorObject is the sentinel stored when structured output was unparsable.
func ErrorObject(message, raw string) map[string]any {
	return map[string]any{
		"error": message,
		"raw":   raw,
	}
}

// ExtractMermaid returns Mermaid code from a "mermaid" JSON field, falling
// back to a ```mermaid fence, then to a bare mindmap body.
func ExtractMermaid(raw string) string {
	if value, ok := parseObject(StripFences(raw)); ok {
		if code, _ := value["mermaid"].(string); strings.TrimSpace(code) != "" {
			return strings.TrimSpace(code)
		}
	} else if res := ExtractJSON(raw); res.Parsed() {
		if code, _ := res.Value["mermaid"].(string); strings.TrimSpace(code) != "" {
			return strings.TrimSpace(code)
		}
	}

	if m := mermaidFencePattern.FindStringSubmatch(raw); m != nil {
		if code := strings.TrimSpace(m[1]); code != "" {
			return code
		}
	}

	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "mindmap") {
		return trimmed
	}
	return ""
}

func parseObject(text string) (map[string]any, bool) {
	var value map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &value); err != nil {
		return nil, false
	}
	if value == nil {
		return nil, false
	}
	return value, true
}

func warn(msg, raw string) {
	zap.L().Warn(msg, zap.Int("raw_len", len(raw)))
}
