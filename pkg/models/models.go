package models

// Domain models matching the database schema in db/migrations/0001_init.sql

// Experience is the user's self-reported DIY skill tier.
type Experience string

const (
	ExperienceBeginner     Experience = "beginner"
	ExperienceIntermediate Experience = "intermediate"
	ExperienceExpert       Experience = "expert"
)

// ValidExperience reports whether e is one of the three recognised tiers.
func ValidExperience(e Experience) bool {
	switch e {
	case ExperienceBeginner, ExperienceIntermediate, ExperienceExpert:
		return true
	}
	return false
}

type User struct {
	ID           int64  `json:"id" db:"id"`
	Username     string `json:"username" db:"username"`
	PasswordHash string `json:"-" db:"password_hash"`
	Created      int64  `json:"created" db:"created"`
	Updated      int64  `json:"updated" db:"updated"`
}

type Profile struct {
	ID            int64      `json:"id" db:"id"`
	UserID        int64      `json:"userId" db:"user_id"`
	Experience    Experience `json:"experience" db:"experience"`
	ToolsOwned    []string   `json:"toolsOwned" db:"tools_owned"`
	Language      string     `json:"language" db:"language"`
	RiskTolerance string     `json:"riskTolerance" db:"risk_tolerance"`
	Updated       int64      `json:"updated" db:"updated"`
}

// Issue is one suspected problem with its likelihood.
type Issue struct {
	Problem     string  `json:"problem"`
	Probability float64 `json:"probability"`
}

type Part struct {
	Name          string   `json:"name"`
	EstimatedCost *float64 `json:"estimatedCost"`
}

// Guidance is the DIY block of a result.
type Guidance struct {
	Safety       string   `json:"safety"`
	Tools        []string `json:"tools"`
	TimeEstimate *float64 `json:"timeEstimate"`
	Steps        []string `json:"steps"`
	Parts        []Part   `json:"parts"`
}

type Tutorial struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Source      string `json:"source"`
	Thumbnail   string `json:"thumbnail,omitempty"`
	Description string `json:"description,omitempty"`
	Published   string `json:"publishedAt,omitempty"`
}

// DiagnosisResult is the fixed output shape returned to callers and persisted.
type DiagnosisResult struct {
	ID                      string     `json:"id,omitempty"`
	ItemName                *string    `json:"itemName"`
	ItemModel               *string    `json:"itemModel"`
	RepairabilityScore      float64    `json:"repairabilityScore"`
	RepairabilityConfidence string     `json:"repairabilityConfidence"`
	Issues                  []Issue    `json:"issues"`
	Diagnosis               Guidance   `json:"diagnosis"`
	Tutorials               []Tutorial `json:"tutorials"`
	Blocked                 bool       `json:"blocked"`
	Confidence              float64    `json:"confidence"`
	CreatedAt               int64      `json:"createdAt,omitempty"`
}

// Diagnosis is a persisted result owned by a user.
type Diagnosis struct {
	ID      string          `json:"id" db:"id"`
	UserID  int64           `json:"userId" db:"user_id"`
	Result  DiagnosisResult `json:"result" db:"result_json"`
	Created int64           `json:"created" db:"created"`
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const (
	MessageTypeText      = "text"
	MessageTypeDiagnosis = "diagnosis"
)

// Message is one conversation turn.
type Message struct {
	ID          int64  `json:"id" db:"id"`
	UserID      int64  `json:"userId" db:"user_id"`
	Role        Role   `json:"role" db:"role"`
	Type        string `json:"type" db:"type"`
	Content     string `json:"content" db:"content"`
	DiagnosisID string `json:"diagnosisId,omitempty" db:"diagnosis_id"`
	Created     int64  `json:"created" db:"created"`
}
