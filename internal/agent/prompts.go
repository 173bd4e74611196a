package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/garnizeh/fixbuddy/pkg/models"
	"github.com/garnizeh/fixbuddy/pkg/ollama"
	"github.com/garnizeh/fixbuddy/pkg/repository"
)

const (
	templateDiagnose = "diagnose"
	templateGuide    = "guide"
	templateAnalyze  = "analyze"

	schemaDiagnosis = "diagnosis"
	schemaGuidance  = "guidance"
	schemaAnalysis  = "analysis"
)

const (
	systemDiagnose = "You are an expert repair diagnostician. Respond with a single JSON object only."
	systemGuide    = "You are a cautious DIY repair assistant. Respond with a single JSON object only."
	systemAnalyze  = "You are Fix-Buddy, a cautious DIY repair assistant. Respond with a single JSON object only."
)

// promptData is what the stored templates may reference.
type promptData struct {
	Description string
	Profile     string
	Experience  string
	Diagnosis   string
	Clarify     string
	History     []models.Message
}

// Prompts renders the stored prompt templates.
type Prompts struct {
	repo    repository.TemplateRepo
	version string
}

func NewPrompts(repo repository.TemplateRepo, version string) *Prompts {
	if version == "" {
		version = "v1"
	}
	return &Prompts{repo: repo, version: version}
}

func (p *Prompts) Render(ctx context.Context, name string, data promptData) (string, error) {
	tpl, err := p.repo.GetTemplate(ctx, name, p.version)
	if err != nil {
		return "", fmt.Errorf("load template %s:%s: %w", name, p.version, err)
	}
	if tpl == nil || tpl.TemplateTxt == "" {
		return "", fmt.Errorf("template %s:%s not found", name, p.version)
	}
	return ollama.RenderTemplate(name, tpl.TemplateTxt, data)
}

func profileJSON(p models.Profile) string {
	b, _ := json.Marshal(struct {
		Experience    models.Experience `json:"experience"`
		ToolsOwned    []string          `json:"tools_owned"`
		Language      string            `json:"language"`
		RiskTolerance string            `json:"risk_tolerance"`
	}{p.Experience, p.ToolsOwned, p.Language, p.RiskTolerance})
	return string(b)
}
