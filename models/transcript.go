package models

import "time"

// Track is one selectable caption track of a video.
type Track struct {
	LanguageCode string `json:"language_code"`
	LanguageName string `json:"language_name"`
	// Handle is the provider-specific locator used to fetch the track content.
	Handle    string `json:"-"`
	Generated bool   `json:"generated"`
}

// TranscriptLine is a single caption cue.
type TranscriptLine struct {
	Start    time.Duration `json:"start"`
	Duration time.Duration `json:"duration"`
	Text     string        `json:"text"`
}

// Transcript holds the ordered lines of one fetched track.
type Transcript struct {
	VideoID      string           `json:"video_id"`
	LanguageCode string           `json:"language_code"`
	LanguageName string           `json:"language_name,omitempty"`
	Fallback     bool             `json:"fallback"`
	Strategy     string           `json:"strategy"`
	Lines        []TranscriptLine `json:"lines"`
}

// Text joins the transcript lines with single spaces.
func (t *Transcript) Text() string {
	if t == nil || len(t.Lines) == 0 {
		return ""
	}
	size := 0
	for _, line := range t.Lines {
		size += len(line.Text) + 1
	}
	buf := make([]byte, 0, size)
	for i, line := range t.Lines {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, line.Text...)
	}
	return string(buf)
}

func (t *Transcript) IsEmpty() bool {
	return t == nil || len(t.Lines) == 0
}
