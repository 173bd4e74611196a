package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/fixbuddy/pkg/models"
	"github.com/garnizeh/fixbuddy/pkg/repository"
)

type AuthHandler struct {
	userRepo      repository.UserRepo
	profileRepo   repository.ProfileRepo
	jwtSecret     string
	tokenDuration time.Duration
}

// NewAuthHandler creates a new AuthHandler with required dependencies.
func NewAuthHandler(ur repository.UserRepo, pr repository.ProfileRepo, jwtSecret string, tokenDuration time.Duration) *AuthHandler {
	return &AuthHandler{userRepo: ur, profileRepo: pr, jwtSecret: jwtSecret, tokenDuration: tokenDuration}
}

type signupRequest struct {
	Username      string            `json:"username"`
	Password      string            `json:"password"`
	Experience    models.Experience `json:"experience"`
	Tools         []string          `json:"tools"`
	Language      string            `json:"language"`
	RiskTolerance string            `json:"riskTolerance"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type signupResponse struct {
	ID         int64             `json:"id"`
	Username   string            `json:"username"`
	Experience models.Experience `json:"experience"`
}

type loginResponse struct {
	Token    string `json:"token"`
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" || req.Experience == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "username, password and experience are required")
		return
	}
	if !models.ValidExperience(req.Experience) {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "experience must be one of beginner, intermediate, expert")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeServerError, "error hashing password")
		return
	}

	ctx := r.Context()
	userID, err := h.userRepo.CreateUser(ctx, &models.User{Username: req.Username, PasswordHash: string(hash)})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			writeError(w, http.StatusConflict, CodeConflict, "username already taken")
			return
		}
		logger.Error("create user", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, CodeServerError, "error creating user")
		return
	}

	profile := models.Profile{
		UserID:        userID,
		Experience:    req.Experience,
		ToolsOwned:    cleanList(req.Tools),
		Language:      strings.TrimSpace(req.Language),
		RiskTolerance: strings.TrimSpace(req.RiskTolerance),
	}
	if _, err := h.profileRepo.CreateProfile(ctx, &profile); err != nil {
		logger.Error("create profile", slog.Int64("user_id", userID), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, CodeServerError, "error creating user profile")
		return
	}

	writeJSON(w, signupResponse{ID: userID, Username: req.Username, Experience: req.Experience}, http.StatusCreated)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "username and password are required")
		return
	}

	u, err := h.userRepo.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		logger.Error("lookup user", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, CodeServerError, "error looking up user")
		return
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid credentials")
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  u.ID,
		"username": u.Username,
		"exp":      time.Now().Add(h.tokenDuration).Unix(),
	})
	tokenStr, err := token.SignedString([]byte(h.jwtSecret))
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeServerError, "error signing token")
		return
	}

	writeJSON(w, loginResponse{Token: tokenStr, ID: u.ID, Username: u.Username}, http.StatusOK)
}

func cleanList(in []string) []string {
	out := []string{}
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
