// Package extract recovers JSON payloads from raw language-model output.
//
// Model responses wrap JSON in Markdown fences, prepend prose, or emit
// near-JSON with trailing commas and unquoted keys. Extract tries candidate
// spans in preference order and applies light textual repair before giving
// up. It never panics and never surfaces parser internals to callers.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// Error reports a failed extraction and carries the raw model output so
// callers can log or persist it for diagnosis.
type Error struct {
	Raw string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract: %v (raw length %d)", e.Err, len(e.Raw))
}

func (e *Error) Unwrap() error { return e.Err }

// Extract recovers a JSON object or array from raw model output.
//
// Candidate spans are tried in preference order: the first fenced code
// block, the span from the first '{' to the last '}', then the whole
// trimmed text. Each candidate is parsed as-is first, then once more after
// repair (affix stripping, adjacent-string separation, trailing-comma
// removal, bare-key quoting). The first candidate that parses wins.
func Extract(raw string) (json.RawMessage, error) {
	for _, cand := range candidates(raw) {
		if v, ok := tryParse(cand); ok {
			return v, nil
		}
		if v, ok := tryParse(Repair(cand)); ok {
			return v, nil
		}
	}
	return nil, &Error{Raw: raw, Err: errors.New("no parseable JSON found")}
}

// DecodeInto extracts JSON from raw and unmarshals it into v. A payload
// that parses but does not fit v's structure is reported as an extraction
// failure, so callers can branch on *Error and fall back to defaults.
func DecodeInto(raw string, v any) error {
	payload, err := Extract(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return &Error{Raw: raw, Err: fmt.Errorf("decode into %T: %w", v, err)}
	}
	return nil
}

func candidates(raw string) []string {
	var out []string
	if m := fenceRe.FindStringSubmatch(raw); m != nil {
		out = append(out, m[1])
	}
	if start := strings.IndexByte(raw, '{'); start >= 0 {
		if end := strings.LastIndexByte(raw, '}'); end > start {
			out = append(out, raw[start:end+1])
		}
	}
	out = append(out, strings.TrimSpace(raw))
	return out
}

func tryParse(s string) (json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	// Only structured payloads count: a bare word from the full-text
	// fallback must not be accepted as a JSON string.
	if s[0] != '{' && s[0] != '[' {
		return nil, false
	}
	if !json.Valid([]byte(s)) {
		return nil, false
	}
	return json.RawMessage(s), true
}

// Repair applies the textual fixes for the malformations models actually
// produce. All passes are string-aware: nothing inside a quoted string is
// touched.
func Repair(s string) string {
	s = stripAffixes(s)
	s = separateAdjacentStrings(s)
	s = removeTrailingCommas(s)
	s = quoteBareKeys(s)
	return s
}

// stripAffixes drops junk before the first and after the last structural
// bracket, such as a stray "json" tag or trailing prose.
func stripAffixes(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return strings.TrimSpace(s)
	}
	end := strings.LastIndexAny(s, "}]")
	if end < start {
		return strings.TrimSpace(s)
	}
	return s[start : end+1]
}

// separateAdjacentStrings inserts ", " between two string tokens that abut
// with nothing but spaces between them, e.g. `"a" "b"` or `"value""key":`.
// Dropped separators are the most common near-JSON defect in model output.
func separateAdjacentStrings(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		b.WriteByte(c)
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				// Peek past horizontal whitespace for another string start.
				j := i + 1
				for j < len(s) && (s[j] == ' ' || s[j] == '\t') {
					j++
				}
				if j < len(s) && s[j] == '"' {
					b.WriteString(", ")
					i = j - 1
				}
			}
			continue
		}
		if c == '"' {
			inString = true
			escaped = false
		}
	}
	return b.String()
}

// removeTrailingCommas drops a comma that directly precedes a closing
// bracket, ignoring whitespace.
func removeTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
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
			b.WriteByte(c)
		case ',':
			j := i + 1
			for j < len(s) && unicode.IsSpace(rune(s[j])) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue // drop the comma, keep the whitespace
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// quoteBareKeys wraps unquoted identifiers that are followed by a colon,
// turning {key: 1} into {"key": 1}. Values are untouched because only
// colon-suffixed identifiers qualify.
func quoteBareKeys(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
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
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if isIdentStart(c) {
			j := i + 1
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			k := j
			for k < len(s) && (s[k] == ' ' || s[k] == '\t') {
				k++
			}
			if k < len(s) && s[k] == ':' {
				b.WriteByte('"')
				b.WriteString(s[i:j])
				b.WriteByte('"')
				i = j - 1
				continue
			}
			b.WriteString(s[i:j])
			i = j - 1
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '-'
}
