package repository

import (
	"context"
	"errors"

	imodels "github.com/garnizeh/fixbuddy/internal/models"
	"github.com/garnizeh/fixbuddy/pkg/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.
// Lookups return (nil, nil) when the row does not exist.

type UserRepo interface {
	CreateUser(ctx context.Context, u *models.User) (int64, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

type ProfileRepo interface {
	CreateProfile(ctx context.Context, p *models.Profile) (int64, error)
	GetProfileByUserID(ctx context.Context, userID int64) (*models.Profile, error)
	UpdateProfile(ctx context.Context, p *models.Profile) error
}

type DiagnosisRepo interface {
	CreateDiagnosis(ctx context.Context, d *models.Diagnosis) (string, error)
	ListRecentDiagnoses(ctx context.Context, userID int64, limit int) ([]models.Diagnosis, error)
	GetDiagnosis(ctx context.Context, id string, userID int64) (*models.Diagnosis, error)
	DeleteDiagnosis(ctx context.Context, id string, userID int64) (bool, error)
	PruneDiagnoses(ctx context.Context, userID int64, keep int) (int64, error)
}

type HistoryRepo interface {
	// RecentMessages returns the last limit messages, oldest first.
	RecentMessages(ctx context.Context, userID int64, limit int) ([]models.Message, error)
	// AppendMessages stores msgs and keeps only the newest cap messages for the user.
	AppendMessages(ctx context.Context, userID int64, msgs []models.Message, cap int) error
}

type SchemaRepo interface {
	ListSchemas(ctx context.Context) ([]imodels.Schema, error)
	GetSchema(ctx context.Context, name, version string) (*imodels.Schema, error)
}

type TemplateRepo interface {
	GetTemplate(ctx context.Context, name, version string) (*imodels.Template, error)
}

// ErrConflict is returned when a write violates a uniqueness constraint.
var ErrConflict = errors.New("repository: conflict")
