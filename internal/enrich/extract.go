package enrich

import (
	"encoding/json"
	"io"
	"regexp"
	"strings"
)

// extractor pulls a JSON object out of a model reply.
type extractor func(text string) (map[string]any, bool)

// extractors are tried in order; the first success wins.
var extractors = []extractor{
	wholeText,
	fencedBlock,
	braceSpan,
}

var fenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?[ \t]*\r?\n(.*?)```")

func extractJSON(text string) (map[string]any, bool) {
	for _, extract := range extractors {
		if obj, ok := extract(text); ok {
			return obj, true
		}
	}
	return nil, false
}

func wholeText(text string) (map[string]any, bool) {
	return decodeObject(strings.TrimSpace(text))
}

func fencedBlock(text string) (map[string]any, bool) {
	for _, m := range fenceRe.FindAllStringSubmatch(text, -1) {
		if obj, ok := decodeObject(strings.TrimSpace(m[1])); ok {
			return obj, true
		}
	}
	return nil, false
}

// braceSpan decodes the first balanced {...} span. Braces inside JSON
// strings are ignored.
func braceSpan(text string) (map[string]any, bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchBrace(text, start); end > start {
			if obj, ok := decodeObject(text[start : end+1]); ok {
				return obj, true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, false
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
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
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func decodeObject(s string) (map[string]any, bool) {
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	// Numbers stay json.Number so out-of-range scores survive decoding.
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	return obj, true
}
