package agent

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Model responses are decoded into these types once, after schema validation.
// List items accept either a bare string or an object.

type Repairability struct {
	Score      *float64 `json:"score"`
	Confidence string   `json:"confidence"`
	Reasons    []string `json:"reasons,omitempty"`
}

type Issue struct {
	Name        string   `json:"name,omitempty"`
	Problem     string   `json:"problem,omitempty"`
	Probability *float64 `json:"probability,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Label is the issue name, falling back to the problem text.
func (i Issue) Label() string {
	if s := strings.TrimSpace(i.Name); s != "" {
		return s
	}
	return strings.TrimSpace(i.Problem)
}

type Tool struct {
	Name     string `json:"name"`
	Required *bool  `json:"required,omitempty"`
}

func (t *Tool) UnmarshalJSON(b []byte) error {
	if s, ok := bareString(b); ok {
		*t = Tool{Name: s}
		return nil
	}
	type alias Tool
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*t = Tool(a)
	return nil
}

type Step struct {
	Instruction string `json:"instruction"`
	Warning     string `json:"warning,omitempty"`
}

func (s *Step) UnmarshalJSON(b []byte) error {
	if str, ok := bareString(b); ok {
		*s = Step{Instruction: str}
		return nil
	}
	var a struct {
		Instruction string `json:"instruction"`
		Step        string `json:"step"`
		Warning     string `json:"warning"`
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	s.Instruction = a.Instruction
	if s.Instruction == "" {
		s.Instruction = a.Step
	}
	s.Warning = a.Warning
	return nil
}

type Part struct {
	Name          string   `json:"name"`
	Quantity      *float64 `json:"quantity,omitempty"`
	EstCostUSD    *float64 `json:"est_cost_usd,omitempty"`
	EstimatedCost *float64 `json:"estimatedCost,omitempty"`
	AltCost       *float64 `json:"cost,omitempty"`
}

func (p *Part) UnmarshalJSON(b []byte) error {
	if s, ok := bareString(b); ok {
		*p = Part{Name: s}
		return nil
	}
	type alias Part
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*p = Part(a)
	return nil
}

// Cost returns the first cost field the model filled in.
func (p Part) Cost() *float64 {
	switch {
	case p.EstCostUSD != nil:
		return p.EstCostUSD
	case p.EstimatedCost != nil:
		return p.EstimatedCost
	default:
		return p.AltCost
	}
}

// Flag decodes booleans the way models tend to emit them: true, "true", "yes", 1.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = false
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes", "1":
			*f = true
		default:
			*f = false
		}
	case bytes.Equal(b, []byte("true")), bytes.Equal(b, []byte("false")):
		*f = Flag(b[0] == 't')
	default:
		n, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return err
		}
		*f = n != 0
	}
	return nil
}

type DIY struct {
	Safety        []string `json:"safety"`
	Tools         []Tool   `json:"tools"`
	SkillRequired *string  `json:"skill_required,omitempty"`
	TimeMinutes   *float64 `json:"time_minutes,omitempty"`
	Preparation   []string `json:"preparation,omitempty"`
	Steps         []Step   `json:"steps"`
	Parts         []Part   `json:"parts"`
}

// Diagnosis is the first stage of the two-stage strategy.
type Diagnosis struct {
	ItemName      *string       `json:"item_name"`
	BrandModel    *string       `json:"brand_model"`
	Repairability Repairability `json:"repairability"`
	Issues        []Issue       `json:"issues"`
}

// Guidance is the second stage of the two-stage strategy.
type Guidance struct {
	DIY               DIY      `json:"diy"`
	Blocked           Flag     `json:"blocked"`
	BlockReason       string   `json:"block_reason,omitempty"`
	RiskLevel         string   `json:"risk_level,omitempty"`
	ConfidenceOverall *float64 `json:"confidence_overall"`
}

// Analysis is the intermediate shape every strategy produces.
type Analysis struct {
	ItemName          *string       `json:"item_name"`
	BrandModel        *string       `json:"brand_model"`
	Repairability     Repairability `json:"repairability"`
	Issues            []Issue       `json:"issues"`
	DIY               DIY           `json:"diy"`
	Blocked           Flag          `json:"blocked"`
	ConfidenceOverall *float64      `json:"confidence_overall"`
}

// Merge combines the two stages into one analysis.
func Merge(d Diagnosis, g Guidance) Analysis {
	return Analysis{
		ItemName:          d.ItemName,
		BrandModel:        d.BrandModel,
		Repairability:     d.Repairability,
		Issues:            d.Issues,
		DIY:               g.DIY,
		Blocked:           g.Blocked,
		ConfidenceOverall: g.ConfidenceOverall,
	}
}

func bareString(b []byte) (string, bool) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return "", false
	}
	return s, true
}
