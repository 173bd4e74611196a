package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/garnizeh/fixbuddy/pkg/models"
	"github.com/garnizeh/fixbuddy/pkg/repository"
)

// Test helpers and mocks
type Mocks struct {
	UserRepo *mockUserRepo
	ProfRepo *mockProfileRepo
	DiagRepo *mockDiagnosisRepo
	HistRepo *mockHistoryRepo
}

func NewMocks() *Mocks {
	return &Mocks{
		UserRepo: &mockUserRepo{},
		ProfRepo: &mockProfileRepo{Profiles: map[int64]*models.Profile{}},
		DiagRepo: &mockDiagnosisRepo{},
		HistRepo: &mockHistoryRepo{Messages: map[int64][]models.Message{}},
	}
}

var (
	_ repository.UserRepo      = (*mockUserRepo)(nil)
	_ repository.ProfileRepo   = (*mockProfileRepo)(nil)
	_ repository.DiagnosisRepo = (*mockDiagnosisRepo)(nil)
	_ repository.HistoryRepo   = (*mockHistoryRepo)(nil)
)

type mockUserRepo struct {
	Stored    *models.User
	CreateErr error
	GetErr    error
}

func (m *mockUserRepo) CreateUser(ctx context.Context, u *models.User) (int64, error) {
	if m.CreateErr != nil {
		return 0, m.CreateErr
	}
	if m.Stored != nil && m.Stored.Username == u.Username {
		return 0, repository.ErrConflict
	}
	m.Stored = &models.User{ID: 1, Username: u.Username, PasswordHash: u.PasswordHash}
	return 1, nil
}

func (m *mockUserRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	if m.Stored != nil && m.Stored.ID == id {
		return m.Stored, nil
	}
	return nil, nil
}

func (m *mockUserRepo) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	if m.Stored != nil && m.Stored.Username == username {
		return m.Stored, nil
	}
	return nil, nil
}

type mockProfileRepo struct {
	Profiles  map[int64]*models.Profile
	GetErr    error
	CreateErr error
}

func (m *mockProfileRepo) CreateProfile(ctx context.Context, p *models.Profile) (int64, error) {
	if m.CreateErr != nil {
		return 0, m.CreateErr
	}
	cp := *p
	cp.ID = int64(len(m.Profiles) + 1)
	m.Profiles[p.UserID] = &cp
	return cp.ID, nil
}

func (m *mockProfileRepo) GetProfileByUserID(ctx context.Context, userID int64) (*models.Profile, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	return m.Profiles[userID], nil
}

func (m *mockProfileRepo) UpdateProfile(ctx context.Context, p *models.Profile) error {
	if _, ok := m.Profiles[p.UserID]; !ok {
		return fmt.Errorf("profile for user %d not found", p.UserID)
	}
	cp := *p
	m.Profiles[p.UserID] = &cp
	return nil
}

type mockDiagnosisRepo struct {
	mu        sync.Mutex
	Stored    []models.Diagnosis
	CreateErr error
	Pruned    int64
}

func (m *mockDiagnosisRepo) CreateDiagnosis(ctx context.Context, d *models.Diagnosis) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	if d.ID == "" {
		d.ID = fmt.Sprintf("diag-%d", len(m.Stored)+1)
	}
	if d.Created == 0 {
		d.Created = int64(len(m.Stored) + 1)
	}
	m.Stored = append(m.Stored, *d)
	return d.ID, nil
}

func (m *mockDiagnosisRepo) ListRecentDiagnoses(ctx context.Context, userID int64, limit int) ([]models.Diagnosis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Diagnosis{}
	for _, d := range m.Stored {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Created > out[j].Created })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockDiagnosisRepo) GetDiagnosis(ctx context.Context, id string, userID int64) (*models.Diagnosis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.Stored {
		if d.ID == id && d.UserID == userID {
			cp := d
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockDiagnosisRepo) DeleteDiagnosis(ctx context.Context, id string, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.Stored {
		if d.ID == id && d.UserID == userID {
			m.Stored = append(m.Stored[:i], m.Stored[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *mockDiagnosisRepo) PruneDiagnoses(ctx context.Context, userID int64, keep int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Pruned++
	return 0, nil
}

type mockHistoryRepo struct {
	mu        sync.Mutex
	Messages  map[int64][]models.Message
	GetErr    error
	AppendErr error
}

func (m *mockHistoryRepo) RecentMessages(ctx context.Context, userID int64, limit int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	msgs := m.Messages[userID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]models.Message{}, msgs...), nil
}

func (m *mockHistoryRepo) AppendMessages(ctx context.Context, userID int64, msgs []models.Message, cap int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	all := append(m.Messages[userID], msgs...)
	if cap > 0 && len(all) > cap {
		all = all[len(all)-cap:]
	}
	m.Messages[userID] = all
	return nil
}
