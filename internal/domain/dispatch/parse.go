package dispatch

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Parse normalizes the external command's output into a Result. The command
// has not kept one stable output schema across versions, so parsing is an
// ordered chain of fallible parsers; the first that matches wins, and
// unparseable output degrades to a successful plain-text reply rather than
// an error. Duration is filled in by the caller.
func Parse(raw []byte) Result {
	cleaned := stripFraming(raw)

	if doc := isolateJSON(cleaned); doc != nil {
		if r, ok := parsePayloads(doc); ok {
			return r
		}
		if r, ok := parseFlat(doc); ok {
			return r
		}
		if r, ok := parseError(doc); ok {
			return r
		}
	}

	return Result{Success: true, Reply: strings.TrimSpace(string(cleaned))}
}

// stripFraming removes transport-framing control bytes that container exec
// streams may interleave with the payload, keeping ordinary whitespace.
func stripFraming(raw []byte) []byte {
	out := make([]byte, 0, len(raw))
	for _, b := range raw {
		if b >= 0x20 || b == '\n' || b == '\r' || b == '\t' {
			out = append(out, b)
		}
	}
	return out
}

// isolateJSON returns the outermost {...} span of the output, or nil if the
// span is absent or not valid JSON.
func isolateJSON(data []byte) []byte {
	start := bytes.IndexByte(data, '{')
	end := bytes.LastIndexByte(data, '}')
	if start < 0 || end <= start {
		return nil
	}
	span := data[start : end+1]
	if !json.Valid(span) {
		return nil
	}
	return span
}

// payloadsDoc is the structured-output schema of recent command versions:
// a payloads array of text chunks plus a nested meta object with usage.
type payloadsDoc struct {
	Payloads []struct {
		Text string `json:"text"`
	} `json:"payloads"`
	Meta struct {
		Model string `json:"model"`
		Usage struct {
			TotalTokens  int64 `json:"total_tokens"`
			InputTokens  int64 `json:"input_tokens"`
			OutputTokens int64 `json:"output_tokens"`
		} `json:"usage"`
	} `json:"meta"`
}

func parsePayloads(doc []byte) (Result, bool) {
	var d payloadsDoc
	if err := json.Unmarshal(doc, &d); err != nil || len(d.Payloads) == 0 {
		return Result{}, false
	}

	parts := make([]string, 0, len(d.Payloads))
	for _, p := range d.Payloads {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}

	tokens := d.Meta.Usage.TotalTokens
	if tokens == 0 {
		tokens = d.Meta.Usage.InputTokens + d.Meta.Usage.OutputTokens
	}

	return Result{
		Success:    true,
		Reply:      strings.Join(parts, "\n"),
		Model:      d.Meta.Model,
		TokensUsed: tokens,
	}, true
}

// textFields are the alternate reply field names older command versions emit.
var textFields = []string{"text", "reply", "response", "content", "message"}

func parseFlat(doc []byte) (Result, bool) {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return Result{}, false
	}

	var reply string
	for _, f := range textFields {
		if s, ok := m[f].(string); ok && s != "" {
			reply = s
			break
		}
	}
	if reply == "" {
		return Result{}, false
	}

	tokens := readInt(m["tokens_used"])
	if tokens == 0 {
		tokens = readInt(m["total_tokens"])
	}
	if tokens == 0 {
		if usage, ok := m["usage"].(map[string]any); ok {
			tokens = readInt(usage["total_tokens"])
			if tokens == 0 {
				tokens = readInt(usage["input_tokens"]) + readInt(usage["output_tokens"])
			}
		}
	}

	model, _ := m["model"].(string)

	return Result{Success: true, Reply: reply, Model: model, TokensUsed: tokens}, true
}

func parseError(doc []byte) (Result, bool) {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return Result{}, false
	}
	if s, ok := m["error"].(string); ok && s != "" {
		return Failure(s), true
	}
	return Result{}, false
}

// readInt reads a JSON number or numeric string as int64.
func readInt(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case string:
		var f float64
		if err := json.Unmarshal([]byte(n), &f); err == nil {
			return int64(f)
		}
	}
	return 0
}
