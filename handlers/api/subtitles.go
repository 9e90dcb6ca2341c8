package api

import (
	"net/http"
	"strings"

	"github.com/Denni-Wild/Subs-bot-sub000/errors"
	"github.com/Denni-Wild/Subs-bot-sub000/models"
	"github.com/Denni-Wild/Subs-bot-sub000/utils"
	"github.com/Denni-Wild/Subs-bot-sub000/validation"
)

type subtitlesRequest struct {
	Video    string `json:"video"`
	Language string `json:"language,omitempty"`
	WithTime bool   `json:"with_time,omitempty"`
}

type tracksResponse struct {
	VideoID string         `json:"video_id"`
	Tracks  []models.Track `json:"tracks"`
}

type subtitlesResponse struct {
	VideoID      string      `json:"video_id"`
	LanguageCode string      `json:"language_code"`
	LanguageName string      `json:"language_name,omitempty"`
	Fallback     bool        `json:"fallback"`
	Strategy     string      `json:"strategy"`
	Lines        int         `json:"lines"`
	Subtitles    TextPayload `json:"subtitles"`
}

// handleListTracks handles GET /api/v1/tracks?video=
func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	const op = "Server.handleListTracks"

	if s.transcripts == nil {
		respondError(w, r, errors.Configuration(op, nil, "Transcripts are not available"))
		return
	}

	videoID, err := s.validator.ExtractVideoID(r.URL.Query().Get("video"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	tracks, err := s.transcripts.ListTracks(r.Context(), videoID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, tracksResponse{VideoID: videoID, Tracks: tracks})
}

// handleSubtitles handles POST /api/v1/subtitles
func (s *Server) handleSubtitles(w http.ResponseWriter, r *http.Request) {
	const op = "Server.handleSubtitles"

	if s.transcripts == nil {
		respondError(w, r, errors.Configuration(op, nil, "Transcripts are not available"))
		return
	}
	if err := s.validator.ValidateRequest(r, validation.RequestValidationOpts{
		MaxContentLength: 64 * 1024,
		AllowedMethods:   []string{http.MethodPost},
		RequireJSON:      true,
	}); err != nil {
		respondError(w, r, err)
		return
	}

	var req subtitlesRequest
	if err := readJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	transcript, err := s.fetchTranscript(r, op, req.Video, req.Language)
	if err != nil {
		respondError(w, r, err)
		return
	}

	text := utils.FormatSubtitles(transcript.Lines, req.WithTime)
	respondJSON(w, r, http.StatusOK, subtitlesResponse{
		VideoID:      transcript.VideoID,
		LanguageCode: transcript.LanguageCode,
		LanguageName: transcript.LanguageName,
		Fallback:     transcript.Fallback,
		Strategy:     transcript.Strategy,
		Lines:        len(transcript.Lines),
		Subtitles:    s.deliver(r, "subtitles-"+transcript.VideoID+"-"+transcript.LanguageCode, text),
	})
}

// fetchTranscript validates the video reference and language, then runs
// transcript acquisition.
func (s *Server) fetchTranscript(r *http.Request, op, video, lang string) (*models.Transcript, error) {
	videoID, err := s.validator.ExtractVideoID(video)
	if err != nil {
		return nil, err
	}
	lang = strings.TrimSpace(lang)
	if err := s.validator.ValidateLanguage(lang); err != nil {
		return nil, err
	}
	if lang == "" {
		lang = s.config.Transcript.DefaultLanguage
	}

	var preferred []string
	if lang != "" {
		preferred = []string{lang}
	}

	transcript, ok, err := s.transcripts.Fetch(r.Context(), videoID, preferred)
	if err != nil {
		return nil, err
	}
	if !ok || transcript == nil || transcript.IsEmpty() {
		return nil, errors.OperationFailed(op, nil, "The transcript could not be retrieved")
	}
	return transcript, nil
}
