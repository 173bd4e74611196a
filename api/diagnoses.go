package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/fixbuddy/pkg/models"
	"github.com/garnizeh/fixbuddy/pkg/repository"
)

const recentDiagnoses = 10

type DiagnosesHandler struct {
	repo repository.DiagnosisRepo
}

func NewDiagnosesHandler(repo repository.DiagnosisRepo) *DiagnosesHandler {
	return &DiagnosesHandler{repo: repo}
}

// withMeta stamps the stored id and creation time onto the result.
func withMeta(d models.Diagnosis) models.DiagnosisResult {
	r := d.Result
	r.ID = d.ID
	r.CreatedAt = d.Created
	return r
}

func (h *DiagnosesHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	list, err := h.repo.ListRecentDiagnoses(r.Context(), userID, recentDiagnoses)
	if err != nil {
		logger.Error("list diagnoses", slog.Int64("user_id", userID), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, CodeServerError, "failed to list diagnoses")
		return
	}

	items := make([]models.DiagnosisResult, 0, len(list))
	for _, d := range list {
		items = append(items, withMeta(d))
	}
	writeOK(w, http.StatusOK, map[string]any{"diagnoses": items})
}

func (h *DiagnosesHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	d, err := h.repo.GetDiagnosis(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		logger.Error("get diagnosis", slog.Int64("user_id", userID), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, CodeServerError, "failed to load diagnosis")
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "diagnosis not found")
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"result": withMeta(*d)})
}

func (h *DiagnosesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	ok, err := h.repo.DeleteDiagnosis(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		logger.Error("delete diagnosis", slog.Int64("user_id", userID), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, CodeServerError, "failed to delete diagnosis")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, CodeNotFound, "diagnosis not found")
		return
	}
	writeOK(w, http.StatusOK, nil)
}
