package agent

import (
	"strings"

	"github.com/garnizeh/fixbuddy/pkg/models"
	"github.com/garnizeh/fixbuddy/pkg/youtube"
)

const tutorialSource = "youtube"

// BuildResult maps an analysis and the enrichment videos onto the public
// result shape. Safety notes are joined with ". ".
func BuildResult(a Analysis, videos []youtube.Video) models.DiagnosisResult {
	r := models.DiagnosisResult{
		ItemName:                a.ItemName,
		ItemModel:               a.BrandModel,
		RepairabilityConfidence: a.Repairability.Confidence,
		Blocked:                 bool(a.Blocked),
	}
	if a.Repairability.Score != nil {
		r.RepairabilityScore = *a.Repairability.Score
	}
	if a.ConfidenceOverall != nil {
		r.Confidence = *a.ConfidenceOverall
	}

	for _, is := range a.Issues {
		p := 1.0
		if is.Probability != nil {
			p = *is.Probability
		}
		r.Issues = append(r.Issues, models.Issue{Problem: is.Label(), Probability: p})
	}

	safety := make([]string, 0, len(a.DIY.Safety))
	for _, s := range a.DIY.Safety {
		if s = strings.TrimRight(strings.TrimSpace(s), "."); s != "" {
			safety = append(safety, s)
		}
	}
	r.Diagnosis.Safety = strings.Join(safety, ". ")
	r.Diagnosis.TimeEstimate = a.DIY.TimeMinutes
	for _, t := range a.DIY.Tools {
		r.Diagnosis.Tools = append(r.Diagnosis.Tools, t.Name)
	}
	for _, s := range a.DIY.Steps {
		r.Diagnosis.Steps = append(r.Diagnosis.Steps, s.Instruction)
	}
	for _, p := range a.DIY.Parts {
		r.Diagnosis.Parts = append(r.Diagnosis.Parts, models.Part{Name: p.Name, EstimatedCost: p.Cost()})
	}

	for _, v := range videos {
		r.Tutorials = append(r.Tutorials, models.Tutorial{
			Title:       v.Title,
			URL:         v.URL,
			Source:      tutorialSource,
			Thumbnail:   v.ThumbnailURL,
			Description: v.Description,
			Published:   v.PublishedAt,
		})
	}

	return Normalize(r)
}

// Normalize puts a result into canonical form. Normalize(Normalize(r)) == Normalize(r).
func Normalize(r models.DiagnosisResult) models.DiagnosisResult {
	r.ItemName = trimmedOrNil(r.ItemName)
	r.ItemModel = trimmedOrNil(r.ItemModel)
	r.RepairabilityScore = clamp(r.RepairabilityScore, 0, 100)
	r.RepairabilityConfidence = strings.ToLower(strings.TrimSpace(r.RepairabilityConfidence))
	if !confidenceTiers[r.RepairabilityConfidence] {
		r.RepairabilityConfidence = "low"
	}
	r.Confidence = clamp(r.Confidence, 0, 1)

	issues := []models.Issue{}
	for _, is := range r.Issues {
		if p := strings.TrimSpace(is.Problem); p != "" {
			issues = append(issues, models.Issue{Problem: p, Probability: clamp(is.Probability, 0, 1)})
		}
	}
	r.Issues = issues

	r.Diagnosis.Safety = strings.TrimSpace(r.Diagnosis.Safety)
	if r.Diagnosis.Safety == "" {
		r.Diagnosis.Safety = safetyUnavailable + "."
	}
	r.Diagnosis.Tools = nonBlank(r.Diagnosis.Tools)
	r.Diagnosis.Steps = nonBlank(r.Diagnosis.Steps)
	if r.Diagnosis.TimeEstimate != nil && *r.Diagnosis.TimeEstimate < 0 {
		r.Diagnosis.TimeEstimate = nil
	}
	parts := []models.Part{}
	for _, p := range r.Diagnosis.Parts {
		if name := strings.TrimSpace(p.Name); name != "" {
			parts = append(parts, models.Part{Name: name, EstimatedCost: p.EstimatedCost})
		}
	}
	r.Diagnosis.Parts = parts

	tutorials := []models.Tutorial{}
	for _, t := range r.Tutorials {
		if strings.TrimSpace(t.URL) == "" {
			continue
		}
		t.Source = tutorialSource
		tutorials = append(tutorials, t)
	}
	r.Tutorials = tutorials

	if r.Blocked {
		r.Diagnosis.Tools = []string{}
		r.Diagnosis.Parts = []models.Part{}
		r.Tutorials = []models.Tutorial{}
	}

	return r
}
