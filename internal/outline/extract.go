package outline

import (
	"encoding/json"
	"fmt"
)

// ExtractionError is returned when an outline response holds no parseable JSON.
type ExtractionError struct {
	// ResponsePath is where the raw response was saved.
	ResponsePath string
	// Err is set when JSON was found but is not an outline.
	Err error
}

func (e *ExtractionError) Error() string {
	msg := "outline response contains no parseable JSON"
	if e.Err != nil {
		msg = fmt.Sprintf("outline response JSON is not an outline: %v", e.Err)
	}
	if e.ResponsePath != "" {
		msg += fmt.Sprintf(" (raw response: %s)", e.ResponsePath)
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Spans returns every balanced top-level {...} or [...] span of text that
// decodes as JSON, in order of appearance.
//
// Brackets inside JSON string literals are ignored. A closer that does not
// match the innermost opener abandons the span and scanning resumes just
// after its opening bracket; so does a span left open at the end of text.
func Spans(text string) []json.RawMessage {
	var spans []json.RawMessage

	i := 0
	for i < len(text) {
		c := text[i]
		if c != '{' && c != '[' {
			i++
			continue
		}

		end, ok := matchSpan(text, i)
		if !ok {
			i++
			continue
		}
		if candidate := text[i : end+1]; json.Valid([]byte(candidate)) {
			spans = append(spans, json.RawMessage(candidate))
		}
		i = end + 1
	}
	return spans
}

// matchSpan returns the index of the bracket closing the one at start.
func matchSpan(text string, start int) (int, bool) {
	var (
		stack    []byte
		inString bool
		escaped  bool
	)
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if stack[len(stack)-1] != c {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// Extract picks the outline JSON out of a free-form response. Among the
// parseable spans, the first object with a "sections" key wins; when no
// span has one the first parseable span is used. skipped reports how many
// parseable spans preceded the chosen one.
func Extract(text string) (raw json.RawMessage, skipped int, err error) {
	spans := Spans(text)
	if len(spans) == 0 {
		return nil, 0, &ExtractionError{}
	}

	for i, span := range spans {
		if span[0] != '{' {
			continue
		}
		var fields map[string]json.RawMessage
		if json.Unmarshal(span, &fields) != nil {
			continue
		}
		if _, ok := fields["sections"]; ok {
			return span, i, nil
		}
	}
	return spans[0], 0, nil
}
