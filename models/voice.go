package models

import "time"

// VoiceTranscript is the result of a speech-to-text transcription.
type VoiceTranscript struct {
	TranscriptionID string        `json:"transcription_id"`
	Text            string        `json:"text"`
	Language        string        `json:"language"`
	Confidence      float64       `json:"confidence"`
	Tokens          int           `json:"tokens"`
	AudioDuration   time.Duration `json:"audio_duration"`
}
