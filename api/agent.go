package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/garnizeh/fixbuddy/internal/agent"
	"github.com/garnizeh/fixbuddy/pkg/models"
)

// maxAgentBody bounds the request body; images arrive base64-encoded inline.
const maxAgentBody = 8 << 20

// DiagnosisRunner runs the diagnosis pipeline.
type DiagnosisRunner interface {
	Run(ctx context.Context, req agent.Request) (agent.Outcome, error)
}

type AgentHandler struct {
	runner DiagnosisRunner
}

func NewAgentHandler(runner DiagnosisRunner) *AgentHandler {
	return &AgentHandler{runner: runner}
}

type agentRequest struct {
	Description   string            `json:"description"`
	ImageBase64   string            `json:"imageBase64"`
	Experience    models.Experience `json:"experience"`
	Tools         []string          `json:"tools"`
	ClarifyAnswer string            `json:"clarifyAnswer"`
}

func (h *AgentHandler) Diagnose(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAgentBody)
	var body agentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeBadRequest, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}

	userID, _ := UserIDFromContext(r.Context())
	req := agent.Request{
		UserID:        userID,
		Description:   body.Description,
		ImageBase64:   body.ImageBase64,
		Experience:    body.Experience,
		Tools:         body.Tools,
		ClarifyAnswer: body.ClarifyAnswer,
	}
	if err := agent.ValidateRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if h.runner == nil {
		writeError(w, http.StatusNotImplemented, CodeNotImplemented, "diagnosis is not configured")
		return
	}

	out, err := h.runner.Run(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, agent.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	case errors.Is(err, agent.ErrUnavailable):
		writeError(w, http.StatusNotImplemented, CodeNotImplemented, "no diagnosis backend is available")
		return
	default:
		logger.Error("diagnose", slog.Int64("user_id", userID), slog.String("request_id", RequestIDFromContext(r.Context())), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, CodeServerError, "diagnosis failed")
		return
	}

	logger.Info("diagnosis complete",
		slog.Int64("user_id", userID),
		slog.String("strategy", out.Strategy),
		slog.Bool("degraded", out.Degraded),
		slog.Bool("blocked", out.Result.Blocked),
		slog.String("diagnosis_id", out.DiagnosisID),
	)
	writeOK(w, http.StatusOK, map[string]any{"result": out.Result})
}
