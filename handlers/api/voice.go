package api

import (
	stderrors "errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Denni-Wild/Subs-bot-sub000/errors"
	"github.com/Denni-Wild/Subs-bot-sub000/middleware"
	"github.com/Denni-Wild/Subs-bot-sub000/models"
	"github.com/Denni-Wild/Subs-bot-sub000/services/voice"
	"github.com/Denni-Wild/Subs-bot-sub000/validation"
)

const multipartMemory = 8 << 20

type voiceResponse struct {
	TranscriptionID string      `json:"transcription_id"`
	Language        string      `json:"language,omitempty"`
	Confidence      float64     `json:"confidence"`
	Tokens          int         `json:"tokens"`
	Transcript      TextPayload `json:"transcript"`
}

// handleVoice handles POST /api/v1/voice with a multipart "file" field.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	const op = "Server.handleVoice"

	if s.voice == nil {
		respondError(w, r, errors.Configuration(op, nil, "Voice transcription is not available"))
		return
	}

	maxSize := s.config.Voice.MaxUploadSize
	if err := s.validator.ValidateRequest(r, validation.RequestValidationOpts{
		MaxContentLength: maxSize,
		AllowedMethods:   []string{http.MethodPost},
		RequireMultipart: true,
	}); err != nil {
		respondError(w, r, err)
		return
	}
	if maxSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	}

	path, err := s.saveUpload(r, op)
	if err != nil {
		respondError(w, r, err)
		return
	}

	jobID := uuid.NewString()
	logger := middleware.GetLogger(r.Context()).WithField("job_id", jobID)

	results, err := s.voice.Submit(r.Context(), jobID, path)
	if err != nil {
		os.Remove(path)
		if stderrors.Is(err, voice.ErrQueueFull) || stderrors.Is(err, voice.ErrQueueClosed) {
			respondError(w, r, errors.E(op, err,
				"Too many voice messages are being processed. Please try again later.",
				http.StatusServiceUnavailable, errors.KindResourceUnavailable))
			return
		}
		respondError(w, r, errors.Internal(op, err, "Failed to queue the voice message"))
		return
	}

	var res voice.Result
	select {
	case res = <-results:
		os.Remove(path)
	case <-r.Context().Done():
		s.voice.Cancel(jobID)
		go func() {
			<-results
			os.Remove(path)
		}()
		logger.Info("Voice request ended before transcription finished")
		respondError(w, r, errors.OperationFailed(op, r.Context().Err(), "Speech recognition was cancelled"))
		return
	}
	if res.Err != nil {
		respondError(w, r, res.Err)
		return
	}

	respondJSON(w, r, http.StatusOK, newVoiceResponse(res.Transcript, s.deliver(r, "voice-"+jobID, res.Transcript.Text)))
}

// saveUpload copies the "file" part into the temp directory.
func (s *Server) saveUpload(r *http.Request, op string) (string, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return "", errors.InvalidInput(op, err, "The audio file is too large")
		}
		return "", errors.InvalidInput(op, err, "Invalid multipart form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", errors.InvalidInput(op, err, "The form has no audio file")
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	dst, err := os.CreateTemp(s.config.TempDir, "voice-*"+ext)
	if err != nil {
		return "", errors.Internal(op, err, "Failed to store the audio file")
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(dst.Name())
		return "", errors.Internal(op, err, "Failed to store the audio file")
	}
	return dst.Name(), nil
}

func newVoiceResponse(t *models.VoiceTranscript, payload TextPayload) voiceResponse {
	return voiceResponse{
		TranscriptionID: t.TranscriptionID,
		Language:        t.Language,
		Confidence:      t.Confidence,
		Tokens:          t.Tokens,
		Transcript:      payload,
	}
}
