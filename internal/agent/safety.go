package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/garnizeh/fixbuddy/pkg/models"
)

const (
	blockedIssue  = "Safety Hazard Detected"
	blockedStep   = "Please contact a certified professional for this repair."
	unknownItem   = "Unknown Item"
	genericHazard = "unsafe conditions"
)

// DefaultHazardKeywords trigger a hard block wherever they appear.
var DefaultHazardKeywords = []string{
	"gas leak", "natural gas", "propane", "gas line", "gas valve", "smell of gas", "gas smell",
	"smell gas", "smells gas", "smelling gas", "gas odor", "gas odour",
	"live mains", "mains voltage", "live wire", "live wiring", "live electrical", "line voltage", "high voltage",
	"wiring fault", "electrocution", "electrical panel", "breaker panel",
	"refrigerant", "freon",
	"carbon monoxide",
	"asbestos",
	"structural", "load-bearing", "load bearing",
	"pressurized", "pressure vessel",
	"hvac",
}

// SafetyGate is a keyword hard stop that overrides the model's own output.
// In strict mode the user's description is scanned along with the analysis.
type SafetyGate struct {
	keywords []string
	strict   bool
}

func NewSafetyGate(strict bool, keywords ...string) *SafetyGate {
	if len(keywords) == 0 {
		keywords = DefaultHazardKeywords
	}
	kw := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kw = append(kw, k)
		}
	}
	return &SafetyGate{keywords: kw, strict: strict}
}

// Check returns the first matched keyword and whether the result must be
// blocked. A model-set blocked flag blocks with an empty keyword.
func (g *SafetyGate) Check(description string, a Analysis) (string, bool) {
	b, _ := json.Marshal(a)
	blob := strings.ToLower(string(b))
	if g.strict {
		blob += " " + strings.ToLower(description)
	}

	for _, k := range g.keywords {
		if strings.Contains(blob, k) {
			return k, true
		}
	}
	return "", bool(a.Blocked)
}

// BlockedResult is the professional-referral result that replaces guidance.
func BlockedResult(a Analysis, keyword string) models.DiagnosisResult {
	name := unknownItem
	if a.ItemName != nil && strings.TrimSpace(*a.ItemName) != "" {
		name = strings.TrimSpace(*a.ItemName)
	}
	hazard := keyword
	if hazard == "" {
		hazard = genericHazard
	}

	return models.DiagnosisResult{
		ItemName:                &name,
		ItemModel:               trimmedOrNil(a.BrandModel),
		RepairabilityScore:      0,
		RepairabilityConfidence: "low",
		Issues:                  []models.Issue{{Problem: blockedIssue, Probability: 1}},
		Diagnosis: models.Guidance{
			Safety: fmt.Sprintf("This repair involves %s and requires professional attention.", hazard),
			Tools:  []string{},
			Steps:  []string{blockedStep},
			Parts:  []models.Part{},
		},
		Tutorials:  []models.Tutorial{},
		Blocked:    true,
		Confidence: 0,
	}
}
