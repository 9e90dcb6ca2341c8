package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Denni-Wild/Subs-bot-sub000/errors"
	"github.com/Denni-Wild/Subs-bot-sub000/middleware"
	"github.com/Denni-Wild/Subs-bot-sub000/models"
	"github.com/Denni-Wild/Subs-bot-sub000/services/mindmap"
	"github.com/Denni-Wild/Subs-bot-sub000/validation"
)

type mindMapRequest struct {
	Video    string `json:"video,omitempty"`
	Text     string `json:"text,omitempty"`
	Language string `json:"language,omitempty"`
	// Format is markdown, mermaid, html or all (the default).
	Format string `json:"format,omitempty"`
}

type mindMapResponse struct {
	ID       string          `json:"id"`
	Map      *models.MindMap `json:"structure"`
	Markdown *TextPayload    `json:"markdown,omitempty"`
	Mermaid  *TextPayload    `json:"mermaid,omitempty"`
	HTML     *TextPayload    `json:"html,omitempty"`
	VideoID  string          `json:"video_id,omitempty"`
	Language string          `json:"transcript_language,omitempty"`
}

// handleMindMap handles POST /api/v1/mindmap
func (s *Server) handleMindMap(w http.ResponseWriter, r *http.Request) {
	const op = "Server.handleMindMap"

	if s.mindmaps == nil {
		respondError(w, r, errors.Configuration(op, nil, "Mind maps are not available"))
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

	var req mindMapRequest
	if err := readJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	format, err := mindmap.ParseFormat(req.Format)
	if err != nil {
		respondError(w, r, err)
		return
	}

	in, err := s.resolveInput(r, op, req.Video, req.Text, req.Language)
	if err != nil {
		respondError(w, r, err)
		return
	}

	result, err := s.mindmaps.Generate(r.Context(), in.text, format)
	if err != nil {
		respondError(w, r, err)
		return
	}

	response := mindMapResponse{ID: uuid.NewString(), Map: result.Map}
	if in.transcript != nil {
		response.VideoID = in.transcript.VideoID
		response.Language = in.transcript.LanguageCode
	}
	name := "mindmap-" + response.ID
	if result.Markdown != "" {
		p := s.deliver(r, name, result.Markdown)
		response.Markdown = &p
	}
	if result.Mermaid != "" {
		p := s.deliver(r, name+"-mermaid", result.Mermaid)
		response.Mermaid = &p
	}
	if result.HTML != "" {
		p := s.deliverDocument(r, name, ".html", "text/html; charset=utf-8", result.HTML)
		response.HTML = &p
	}

	middleware.GetLogger(r.Context()).WithFields(logrus.Fields{
		"source": in.source,
		"format": format,
		"topics": len(result.Map.Topics),
		"ideas":  result.Map.IdeaCount(),
	}).Info("Mind map generated")

	respondJSON(w, r, http.StatusOK, response)
}
