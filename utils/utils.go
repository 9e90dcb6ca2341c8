package utils

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Denni-Wild/Subs-bot-sub000/models"
)

// DefaultDisplayLimit is the longest text a chat message can carry.
const DefaultDisplayLimit = 4000

// FormatSubtitles renders one line per cue, prefixed with [MM:SS] when
// withTime is set. Minutes are not wrapped into hours.
func FormatSubtitles(lines []models.TranscriptLine, withTime bool) string {
	var builder strings.Builder
	for i, line := range lines {
		if i > 0 {
			builder.WriteByte('\n')
		}
		if withTime {
			builder.WriteString(FormatTimestamp(line.Start))
			builder.WriteByte(' ')
		}
		builder.WriteString(line.Text)
	}
	return builder.String()
}

// FormatTimestamp returns [MM:SS] for d, truncated to whole seconds.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("[%02d:%02d]", secs/60, secs%60)
}

// ExceedsDisplayLimit reports whether text is too long to return inline.
func ExceedsDisplayLimit(text string, limit int) bool {
	if limit <= 0 {
		limit = DefaultDisplayLimit
	}
	return utf8.RuneCountInString(text) > limit
}

// FormatText puts every sentence on its own line.
func FormatText(text string) string {
	text = strings.TrimSpace(text)
	var builder strings.Builder
	for _, char := range text {
		builder.WriteRune(char)
		if char == '.' || char == '!' || char == '?' {
			builder.WriteRune('\n')
		}
	}
	return builder.String()
}
