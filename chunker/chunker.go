// Package chunker splits long text into bounded pieces on word boundaries.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const DefaultChunkSize = 1000

var tokenPattern = regexp.MustCompile(`\S+|\n`)

// Split breaks text into chunks of at most maxLen runes. Words are kept
// whole and joined by single spaces; newlines are kept. A word longer than
// maxLen is cut into maxLen-rune pieces.
func Split(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultChunkSize
	}

	chunks := []string{}
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if chunk := strings.TrimSpace(current.String()); chunk != "" {
			chunks = append(chunks, chunk)
		}
		current.Reset()
		currentLen = 0
	}

	for _, token := range tokens(text, maxLen) {
		tokenLen := utf8.RuneCountInString(token)

		if currentLen+tokenLen+1 > maxLen {
			flush()
			if token != "\n" {
				current.WriteString(token)
				currentLen = tokenLen
			}
			continue
		}

		if currentLen > 0 && token != "\n" && !strings.HasSuffix(current.String(), "\n") {
			current.WriteByte(' ')
			currentLen++
		}
		current.WriteString(token)
		currentLen += tokenLen
	}
	flush()

	return chunks
}

// tokens returns words and newlines in order, with words longer than maxLen
// already cut to size.
func tokens(text string, maxLen int) []string {
	matches := tokenPattern.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if utf8.RuneCountInString(m) <= maxLen {
			out = append(out, m)
			continue
		}
		runes := []rune(m)
		for start := 0; start < len(runes); start += maxLen {
			end := start + maxLen
			if end > len(runes) {
				end = len(runes)
			}
			out = append(out, string(runes[start:end]))
		}
	}
	return out
}
