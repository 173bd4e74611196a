package api_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/garnizeh/fixbuddy/api"
	"github.com/garnizeh/fixbuddy/pkg/models"
	"github.com/garnizeh/fixbuddy/pkg/repository/mock"
)

func TestProfileHandler(t *testing.T) {
	stored := func(m *mock.Mocks) {
		m.ProfRepo.Profiles[1] = &models.Profile{ID: 1, UserID: 1, Experience: models.ExperienceBeginner, ToolsOwned: []string{"Screwdriver"}, Language: "en", RiskTolerance: "low"}
	}

	tests := []struct {
		name       string
		method     string
		body       string
		prepare    func(m *mock.Mocks)
		wantStatus int
		wantCode   string
		check      func(t *testing.T, m *mock.Mocks, body []byte)
	}{
		{
			name:       "Get_Missing",
			method:     http.MethodGet,
			wantStatus: http.StatusNotFound,
			wantCode:   api.CodeNotFound,
		},
		{
			name:       "Get_Error",
			method:     http.MethodGet,
			prepare:    func(m *mock.Mocks) { m.ProfRepo.GetErr = errors.New("locked") },
			wantStatus: http.StatusInternalServerError,
			wantCode:   api.CodeServerError,
		},
		{
			name:       "Get",
			method:     http.MethodGet,
			prepare:    stored,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, _ *mock.Mocks, b []byte) {
				var resp struct {
					Profile models.Profile `json:"profile"`
				}
				if err := json.Unmarshal(b, &resp); err != nil {
					t.Fatalf("unmarshal: %v", err)
				}
				if resp.Profile.Experience != models.ExperienceBeginner || len(resp.Profile.ToolsOwned) != 1 {
					t.Fatalf("unexpected profile %s", b)
				}
			},
		},
		{
			name:       "Update_BadJSON",
			method:     http.MethodPut,
			body:       "{",
			prepare:    stored,
			wantStatus: http.StatusBadRequest,
			wantCode:   api.CodeBadRequest,
		},
		{
			name:       "Update_BadExperience",
			method:     http.MethodPut,
			body:       `{"experience":"guru"}`,
			prepare:    stored,
			wantStatus: http.StatusBadRequest,
			wantCode:   api.CodeBadRequest,
		},
		{
			name:       "Update_Missing",
			method:     http.MethodPut,
			body:       `{"experience":"expert"}`,
			wantStatus: http.StatusNotFound,
			wantCode:   api.CodeNotFound,
		},
		{
			name:       "Update_Partial",
			method:     http.MethodPut,
			body:       `{"experience":"expert","tools":["Multimeter",""]}`,
			prepare:    stored,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, m *mock.Mocks, _ []byte) {
				p := m.ProfRepo.Profiles[1]
				if p.Experience != models.ExperienceExpert {
					t.Fatalf("experience not updated: %s", p.Experience)
				}
				if len(p.ToolsOwned) != 1 || p.ToolsOwned[0] != "Multimeter" {
					t.Fatalf("tools not replaced: %v", p.ToolsOwned)
				}
				if p.Language != "en" || p.RiskTolerance != "low" {
					t.Fatalf("omitted fields must keep their stored values: %+v", p)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mock.NewMocks()
			if tt.prepare != nil {
				tt.prepare(m)
			}
			h := api.NewProfileHandler(m.ProfRepo, m.HistRepo)
			req := withUser(httptest.NewRequest(tt.method, "/api/profile", strings.NewReader(tt.body)), 1)
			w := httptest.NewRecorder()
			if tt.method == http.MethodGet {
				h.Get(w, req)
			} else {
				h.Update(w, req)
			}

			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d got %d body=%s", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantCode != "" {
				assertErrorCode(t, w.Body.Bytes(), tt.wantCode)
			}
			if tt.check != nil {
				tt.check(t, m, w.Body.Bytes())
			}
		})
	}
}

func TestProfileHandler_History(t *testing.T) {
	m := mock.NewMocks()
	for i := 0; i < 25; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		m.HistRepo.Messages[1] = append(m.HistRepo.Messages[1], models.Message{ID: int64(i + 1), UserID: 1, Role: role, Type: models.MessageTypeText, Content: "m"})
	}
	h := api.NewProfileHandler(m.ProfRepo, m.HistRepo)

	get := func(query string, userID int64) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		h.History(w, withUser(httptest.NewRequest(http.MethodGet, "/api/history"+query, nil), userID))
		return w
	}
	count := func(t *testing.T, w *httptest.ResponseRecorder) []models.Message {
		t.Helper()
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp struct {
			Messages []models.Message `json:"messages"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return resp.Messages
	}

	if msgs := count(t, get("", 1)); len(msgs) != 20 || msgs[19].ID != 25 {
		t.Fatalf("default limit: expected the 20 most recent oldest first, got %d", len(msgs))
	}
	if msgs := count(t, get("?limit=4", 1)); len(msgs) != 4 || msgs[0].ID != 22 {
		t.Fatalf("limit=4: unexpected messages %+v", msgs)
	}
	if msgs := count(t, get("?limit=500", 1)); len(msgs) != 20 {
		t.Fatalf("limit above the cap should clamp to 20, got %d", len(msgs))
	}
	if w := count(t, get("", 9)); w == nil || len(w) != 0 {
		t.Fatalf("user without history should get an empty list")
	}

	for _, q := range []string{"?limit=0", "?limit=-2", "?limit=abc"} {
		w := get(q, 1)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", q, w.Code)
		}
		assertErrorCode(t, w.Body.Bytes(), api.CodeBadRequest)
	}

	m.HistRepo.GetErr = errors.New("locked")
	if w := get("", 1); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on store error, got %d", w.Code)
	}
}
