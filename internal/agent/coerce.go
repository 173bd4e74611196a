package agent

import (
	"strings"
)

const safetyUnavailable = "Safety information not available"

var confidenceTiers = map[string]bool{"low": true, "medium": true, "high": true}

// Coerce replaces every missing or malformed field of a with a conservative
// default so later stages never see partial data.
func Coerce(a Analysis) Analysis {
	out := Analysis{
		ItemName:   trimmedOrNil(a.ItemName),
		BrandModel: trimmedOrNil(a.BrandModel),
		Blocked:    a.Blocked,
	}

	score := 0.0
	if a.Repairability.Score != nil {
		score = clamp(*a.Repairability.Score, 0, 100)
	}
	conf := strings.ToLower(strings.TrimSpace(a.Repairability.Confidence))
	if !confidenceTiers[conf] {
		conf = "low"
	}
	out.Repairability = Repairability{Score: &score, Confidence: conf, Reasons: nonBlank(a.Repairability.Reasons)}

	out.Issues = []Issue{}
	for _, is := range a.Issues {
		label := is.Label()
		if label == "" {
			continue
		}
		p := 1.0
		if is.Probability != nil {
			p = clamp(*is.Probability, 0, 1)
		}
		out.Issues = append(out.Issues, Issue{Name: label, Probability: &p, Description: is.Description})
	}

	out.DIY = coerceDIY(a.DIY)

	overall := 0.0
	if a.ConfidenceOverall != nil {
		overall = clamp(*a.ConfidenceOverall, 0, 1)
	}
	out.ConfidenceOverall = &overall

	return out
}

func coerceDIY(d DIY) DIY {
	out := DIY{
		Safety:        nonBlank(d.Safety),
		Tools:         []Tool{},
		SkillRequired: trimmedOrNil(d.SkillRequired),
		Preparation:   nonBlank(d.Preparation),
		Steps:         []Step{},
		Parts:         []Part{},
	}
	if len(out.Safety) == 0 {
		out.Safety = []string{safetyUnavailable}
	}
	if d.TimeMinutes != nil && *d.TimeMinutes >= 0 {
		t := *d.TimeMinutes
		out.TimeMinutes = &t
	}
	for _, t := range d.Tools {
		if name := strings.TrimSpace(t.Name); name != "" {
			out.Tools = append(out.Tools, Tool{Name: name, Required: t.Required})
		}
	}
	for _, s := range d.Steps {
		if in := strings.TrimSpace(s.Instruction); in != "" {
			out.Steps = append(out.Steps, Step{Instruction: in, Warning: strings.TrimSpace(s.Warning)})
		}
	}
	for _, p := range d.Parts {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		part := Part{Name: name, Quantity: p.Quantity}
		if c := p.Cost(); c != nil && *c >= 0 {
			v := *c
			part.EstCostUSD = &v
		}
		out.Parts = append(out.Parts, part)
	}
	return out
}

// DegradedAnalysis is returned when no strategy produced a usable analysis.
// It is blocked so the caller is sent to a professional rather than guessing.
func DegradedAnalysis() Analysis {
	zero := 0.0
	return Analysis{
		Repairability:     Repairability{Score: &zero, Confidence: "low"},
		Issues:            []Issue{},
		DIY:               DIY{Safety: []string{safetyUnavailable}, Tools: []Tool{}, Steps: []Step{}, Parts: []Part{}},
		Blocked:           true,
		ConfidenceOverall: &zero,
	}
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" || strings.EqualFold(t, "null") {
		return nil
	}
	return &t
}

func nonBlank(in []string) []string {
	out := []string{}
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v != v { // NaN
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
