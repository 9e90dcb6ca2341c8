package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Denni-Wild/Subs-bot-sub000/errors"
	"github.com/Denni-Wild/Subs-bot-sub000/middleware"
	"github.com/Denni-Wild/Subs-bot-sub000/models"
	"github.com/Denni-Wild/Subs-bot-sub000/services/mindmap"
	"github.com/Denni-Wild/Subs-bot-sub000/services/summary"
	"github.com/Denni-Wild/Subs-bot-sub000/services/voice"
	"github.com/Denni-Wild/Subs-bot-sub000/storage"
	"github.com/Denni-Wild/Subs-bot-sub000/utils"
)

// TranscriptService lists and fetches video transcripts.
type TranscriptService interface {
	ListTracks(ctx context.Context, videoID string) ([]models.Track, error)
	Fetch(ctx context.Context, videoID string, preferred []string) (*models.Transcript, bool, error)
}

// Summarizer runs the summarization pipeline.
type Summarizer interface {
	Summarize(ctx context.Context, text string, opts summary.Options) (*models.SummaryResult, error)
}

// AttachmentStore turns long results into downloadable files.
type AttachmentStore interface {
	SaveText(ctx context.Context, name, text string) (*storage.Attachment, error)
	SaveDocument(ctx context.Context, name, ext, contentType, text string) (*storage.Attachment, error)
}

// MindMapper builds mind maps of text.
type MindMapper interface {
	Generate(ctx context.Context, text string, format mindmap.Format) (*mindmap.Result, error)
}

// VoiceQueue accepts audio files for transcription.
type VoiceQueue interface {
	Submit(ctx context.Context, id, path string) (<-chan voice.Result, error)
	Cancel(id string) bool
}

// Response represents a standardized API response
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Kind      errors.Kind `json:"kind,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// TextPayload carries a result that is either inline or an attachment.
type TextPayload struct {
	Text       string              `json:"text,omitempty"`
	Attachment bool                `json:"attachment"`
	File       *storage.Attachment `json:"file,omitempty"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, code int, payload interface{}) {
	response := Response{
		Success:   code >= 200 && code < 300,
		Data:      payload,
		RequestID: middleware.GetRequestID(r.Context()),
		Timestamp: time.Now().UTC(),
	}
	writeResponse(w, r, code, response)
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	respondErrorData(w, r, err, nil)
}

// respondErrorData writes an error response that still carries payload,
// such as the statistics of a failed run.
func respondErrorData(w http.ResponseWriter, r *http.Request, err error, payload interface{}) {
	code := errors.CodeOf(err)
	kind := errors.KindOf(err)

	entry := middleware.GetLogger(r.Context()).WithFields(logrus.Fields{
		"error":  err,
		"status": code,
		"kind":   kind,
	})
	if code >= http.StatusInternalServerError {
		entry.Error("Request error")
	} else {
		entry.Info("Request rejected")
	}

	writeResponse(w, r, code, Response{
		Success:   false,
		Data:      payload,
		Error:     errors.MessageOf(err),
		Kind:      kind,
		RequestID: middleware.GetRequestID(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

func writeResponse(w http.ResponseWriter, r *http.Request, code int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		middleware.GetLogger(r.Context()).WithError(err).Error("Failed to encode response")
	}
}

func readJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.InvalidInput("readJSON", err, "Invalid JSON format")
	}
	return nil
}

// deliver returns text inline when it fits a chat message and as an
// attachment otherwise. Without an attachment store, or when the upload
// fails, the full text is returned inline.
func (s *Server) deliver(r *http.Request, name, text string) TextPayload {
	if s.attachments == nil || !utils.ExceedsDisplayLimit(text, s.config.Transcript.DisplayLimit) {
		return TextPayload{Text: text}
	}

	file, err := s.attachments.SaveText(r.Context(), name, text)
	if err != nil {
		middleware.GetLogger(r.Context()).WithError(err).Warn("Failed to upload attachment, returning text inline")
		return TextPayload{Text: text}
	}
	return TextPayload{Attachment: true, File: file}
}

// deliverDocument uploads a rendered document whenever a store is
// configured, whatever its size.
func (s *Server) deliverDocument(r *http.Request, name, ext, contentType, text string) TextPayload {
	if text == "" {
		return TextPayload{}
	}
	if s.attachments == nil {
		return TextPayload{Text: text}
	}

	file, err := s.attachments.SaveDocument(r.Context(), name, ext, contentType, text)
	if err != nil {
		middleware.GetLogger(r.Context()).WithError(err).Warn("Failed to upload document, returning it inline")
		return TextPayload{Text: text}
	}
	return TextPayload{Attachment: true, File: file}
}
