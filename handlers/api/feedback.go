package api

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Denni-Wild/Subs-bot-sub000/errors"
	"github.com/Denni-Wild/Subs-bot-sub000/middleware"
	"github.com/Denni-Wild/Subs-bot-sub000/models"
	"github.com/Denni-Wild/Subs-bot-sub000/validation"
)

type feedbackRequest struct {
	RunID     string `json:"run_id,omitempty"`
	Model     string `json:"model,omitempty"`
	Satisfied *bool  `json:"satisfied"`
	Reason    string `json:"reason,omitempty"`
}

type modelStatResponse struct {
	models.ModelStat
	Satisfaction float64 `json:"satisfaction"`
}

// handleFeedback handles POST /api/v1/feedback
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	const op = "Server.handleFeedback"

	if s.runs == nil {
		respondError(w, r, errors.Configuration(op, nil, "Feedback is not being recorded"))
		return
	}
	if err := s.validator.ValidateRequest(r, validation.RequestValidationOpts{
		MaxContentLength: 16 * 1024,
		AllowedMethods:   []string{http.MethodPost},
		RequireJSON:      true,
	}); err != nil {
		respondError(w, r, err)
		return
	}

	var req feedbackRequest
	if err := readJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Satisfied == nil {
		respondError(w, r, errors.InvalidInput(op, nil, "satisfied is required"))
		return
	}
	if strings.TrimSpace(req.RunID) == "" && strings.TrimSpace(req.Model) == "" {
		respondError(w, r, errors.InvalidInput(op, nil, "Either run_id or model is required"))
		return
	}

	fb := &models.Feedback{
		RunID:     strings.TrimSpace(req.RunID),
		Model:     strings.TrimSpace(req.Model),
		Satisfied: *req.Satisfied,
		Reason:    strings.TrimSpace(req.Reason),
	}
	if err := s.runs.SaveFeedback(r.Context(), fb); err != nil {
		respondError(w, r, err)
		return
	}

	middleware.GetLogger(r.Context()).WithFields(logrus.Fields{
		"feedback_id": fb.ID,
		"run_id":      fb.RunID,
		"satisfied":   fb.Satisfied,
	}).Info("Feedback recorded")

	respondJSON(w, r, http.StatusCreated, fb)
}

// handleModelStats handles GET /api/v1/stats/models
func (s *Server) handleModelStats(w http.ResponseWriter, r *http.Request) {
	const op = "Server.handleModelStats"

	if s.runs == nil {
		respondError(w, r, errors.Configuration(op, nil, "Feedback is not being recorded"))
		return
	}

	stats, err := s.runs.ModelStats(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]modelStatResponse, 0, len(stats))
	for _, st := range stats {
		out = append(out, modelStatResponse{ModelStat: st, Satisfaction: st.Satisfaction()})
	}
	respondJSON(w, r, http.StatusOK, out)
}

// handleGetRun handles GET /api/v1/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	const op = "Server.handleGetRun"

	if s.runs == nil {
		respondError(w, r, errors.Configuration(op, nil, "Feedback is not being recorded"))
		return
	}

	run, err := s.runs.FindRun(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, run)
}
