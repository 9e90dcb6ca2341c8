package api

import (
	"net/http"
	"strings"

	"github.com/Denni-Wild/Subs-bot-sub000/errors"
	"github.com/Denni-Wild/Subs-bot-sub000/middleware"
	"github.com/Denni-Wild/Subs-bot-sub000/models"
	"github.com/Denni-Wild/Subs-bot-sub000/services/summary"
	"github.com/Denni-Wild/Subs-bot-sub000/validation"
)

const maxSummaryRequestSize = 2 << 20

type summaryRequest struct {
	Video     string `json:"video,omitempty"`
	Text      string `json:"text,omitempty"`
	Language  string `json:"language,omitempty"`
	Translate bool   `json:"translate,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
}

type summaryResponse struct {
	RunID    string              `json:"run_id,omitempty"`
	State    models.SummaryState `json:"state"`
	Summary  TextPayload         `json:"summary"`
	Stats    models.SummaryStats `json:"stats"`
	VideoID  string              `json:"video_id,omitempty"`
	Language string              `json:"transcript_language,omitempty"`
}

// handleSummary handles POST /api/v1/summary. The request names either a
// video, whose transcript is summarized, or the text itself.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	const op = "Server.handleSummary"

	if s.summarizer == nil {
		respondError(w, r, errors.Configuration(op, nil, "Summaries are not available"))
		return
	}
	if err := s.validator.ValidateRequest(r, validation.RequestValidationOpts{
		MaxContentLength: maxSummaryRequestSize,
		AllowedMethods:   []string{http.MethodPost},
		RequireJSON:      true,
	}); err != nil {
		respondError(w, r, err)
		return
	}

	var req summaryRequest
	if err := readJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	var response summaryResponse
	in, err := s.resolveInput(r, op, req.Video, req.Text, req.Language)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if in.transcript != nil {
		response.VideoID = in.transcript.VideoID
		response.Language = in.transcript.LanguageCode
	}

	result, err := s.summarizer.Summarize(r.Context(), in.text, summary.Options{
		Prompt:             strings.TrimSpace(req.Prompt),
		TranslateToRussian: req.Translate,
		CallerKey:          middleware.CallerKey(r),
		Source:             in.source,
	})
	if err != nil {
		if result == nil {
			respondError(w, r, err)
			return
		}
		response.RunID = result.Stats.RunID
		response.State = result.State
		response.Stats = result.Stats
		respondErrorData(w, r, err, response)
		return
	}

	response.RunID = result.Stats.RunID
	response.State = result.State
	response.Stats = result.Stats
	response.Summary = s.deliver(r, "summary-"+result.Stats.RunID, result.Text)

	respondJSON(w, r, http.StatusOK, response)
}

// textInput is the text a request asks to process and where it came from.
type textInput struct {
	text       string
	source     string
	transcript *models.Transcript
}

// resolveInput takes either the transcript of video or text itself.
func (s *Server) resolveInput(r *http.Request, op, video, text, language string) (textInput, error) {
	switch {
	case strings.TrimSpace(video) != "" && strings.TrimSpace(text) != "":
		return textInput{}, errors.InvalidInput(op, nil, "Send either a video or a text, not both")
	case strings.TrimSpace(video) != "":
		if s.transcripts == nil {
			return textInput{}, errors.Configuration(op, nil, "Transcripts are not available")
		}
		transcript, err := s.fetchTranscript(r, op, video, language)
		if err != nil {
			return textInput{}, err
		}
		return textInput{
			text:       transcript.Text(),
			source:     "youtube:" + transcript.VideoID,
			transcript: transcript,
		}, nil
	default:
		return textInput{text: text, source: "text"}, nil
	}
}
