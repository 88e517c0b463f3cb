package llm

import (
	"regexp"
	"strings"
)

// JSON extraction from LLM responses. Models wrap JSON in markdown fences,
// prepend prose, add JavaScript comments and trailing commas. These helpers
// recover a decodable payload or return "" so callers can fall back.

var (
	// fencedBlockPattern matches content inside ```json ... ``` fences.
	fencedBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")
	// trailingCommaPattern matches trailing commas before ] or }.
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON extracts the first balanced JSON object from content.
// Returns "" if no object is found. Never panics on arbitrary input.
func ExtractJSON(content string) string {
	return extractBalanced(content, '{', '}')
}

// ExtractJSONArray extracts the first balanced JSON array from content.
func ExtractJSONArray(content string) string {
	return extractBalanced(content, '[', ']')
}

// extractBalanced finds the first balanced open..close span, preferring
// fenced code blocks, and cleans common LLM artifacts from it.
func extractBalanced(content string, open, close byte) string {
	if m := fencedBlockPattern.FindStringSubmatch(content); len(m) > 1 {
		if span := scanBalanced(m[1], open, close); span != "" {
			return cleanJSON(span)
		}
	}
	if span := scanBalanced(content, open, close); span != "" {
		return cleanJSON(span)
	}
	return ""
}

// scanBalanced walks s from the first open delimiter, tracking string and
// escape state, and returns the span up to the matching close delimiter.
// Returns "" when the delimiters never balance.
func scanBalanced(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
			// Delimiters inside strings don't count.
		case ch == open:
			depth++
		case ch == close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// cleanJSON strips JavaScript-style line comments and trailing commas.
func cleanJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		cleaned = append(cleaned, stripLineComment(line))
	}
	result := strings.Join(cleaned, "\n")

	return trailingCommaPattern.ReplaceAllString(result, "$1")
}

// stripLineComment removes a // comment from a line, respecting string
// values so URLs like "http://example.com" survive.
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}

	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
