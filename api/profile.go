package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/garnizeh/fixbuddy/pkg/models"
	"github.com/garnizeh/fixbuddy/pkg/repository"
)

const maxHistory = 20

// ProfileHandler serves the caller's profile and conversation history.
type ProfileHandler struct {
	profiles repository.ProfileRepo
	history  repository.HistoryRepo
}

func NewProfileHandler(pr repository.ProfileRepo, hr repository.HistoryRepo) *ProfileHandler {
	return &ProfileHandler{profiles: pr, history: hr}
}

// updateProfileRequest fields are optional; nil leaves the stored value.
type updateProfileRequest struct {
	Experience    *models.Experience `json:"experience"`
	Tools         *[]string          `json:"tools"`
	Language      *string            `json:"language"`
	RiskTolerance *string            `json:"riskTolerance"`
}

func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	p, err := h.profiles.GetProfileByUserID(r.Context(), userID)
	if err != nil {
		logger.Error("get profile", slog.Int64("user_id", userID), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, CodeServerError, "failed to load profile")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "profile not found")
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"profile": p})
}

func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}
	if req.Experience != nil && !models.ValidExperience(*req.Experience) {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "experience must be one of beginner, intermediate, expert")
		return
	}

	p, err := h.profiles.GetProfileByUserID(r.Context(), userID)
	if err != nil {
		logger.Error("get profile", slog.Int64("user_id", userID), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, CodeServerError, "failed to load profile")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "profile not found")
		return
	}

	if req.Experience != nil {
		p.Experience = *req.Experience
	}
	if req.Tools != nil {
		p.ToolsOwned = cleanList(*req.Tools)
	}
	if req.Language != nil && strings.TrimSpace(*req.Language) != "" {
		p.Language = strings.TrimSpace(*req.Language)
	}
	if req.RiskTolerance != nil && strings.TrimSpace(*req.RiskTolerance) != "" {
		p.RiskTolerance = strings.TrimSpace(*req.RiskTolerance)
	}

	if err := h.profiles.UpdateProfile(r.Context(), p); err != nil {
		logger.Error("update profile", slog.Int64("user_id", userID), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, CodeServerError, "failed to update profile")
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"profile": p})
}

// History returns the caller's recent conversation, oldest first.
func (h *ProfileHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	limit := maxHistory
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(v, maxHistory)
	}

	msgs, err := h.history.RecentMessages(r.Context(), userID, limit)
	if err != nil {
		logger.Error("history", slog.Int64("user_id", userID), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, CodeServerError, "failed to load history")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeOK(w, http.StatusOK, map[string]any{"messages": msgs})
}
