package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garnizeh/fixbuddy/pkg/models"
)

const (
	StrategyTwoStage   = "two_stage"
	StrategySingleCall = "single_call"
	StrategyLocal      = "local"
)

// Input is everything a strategy may use for one request.
type Input struct {
	Description   string
	Image         []byte
	ImageMIME     string
	Profile       models.Profile
	History       []models.Message
	ClarifyAnswer string
}

// Strategy produces an Analysis or an error. Strategies are tried in order.
type Strategy interface {
	Name() string
	Run(ctx context.Context, in Input) (Analysis, error)
}

// TwoStage asks for a diagnosis first and then for guidance on that diagnosis.
// The image is only sent with the diagnosis call.
type TwoStage struct {
	gen     Generator
	prompts *Prompts
	parser  *Parser
	timeout time.Duration
}

func NewTwoStage(gen Generator, prompts *Prompts, parser *Parser, timeout time.Duration) *TwoStage {
	return &TwoStage{gen: gen, prompts: prompts, parser: parser, timeout: timeout}
}

func (s *TwoStage) Name() string { return StrategyTwoStage }

func (s *TwoStage) Run(ctx context.Context, in Input) (Analysis, error) {
	text, err := s.prompts.Render(ctx, templateDiagnose, promptData{Description: in.Description})
	if err != nil {
		return Analysis{}, err
	}
	raw, err := call(ctx, s.gen, s.timeout, Prompt{System: systemDiagnose, Text: text, Image: in.Image, ImageMIME: in.ImageMIME})
	if err != nil {
		return Analysis{}, fmt.Errorf("diagnose: %w", err)
	}
	var d Diagnosis
	if err := s.parser.Parse(ctx, schemaDiagnosis, raw, &d); err != nil {
		return Analysis{}, fmt.Errorf("diagnose: %w", err)
	}

	diag, _ := json.Marshal(d)
	text, err = s.prompts.Render(ctx, templateGuide, promptData{
		Description: in.Description,
		Profile:     profileJSON(in.Profile),
		Experience:  string(in.Profile.Experience),
		Diagnosis:   string(diag),
		Clarify:     in.ClarifyAnswer,
		History:     in.History,
	})
	if err != nil {
		return Analysis{}, err
	}
	raw, err = call(ctx, s.gen, s.timeout, Prompt{System: systemGuide, Text: text})
	if err != nil {
		return Analysis{}, fmt.Errorf("guide: %w", err)
	}
	var g Guidance
	if err := s.parser.Parse(ctx, schemaGuidance, raw, &g); err != nil {
		return Analysis{}, fmt.Errorf("guide: %w", err)
	}

	return Merge(d, g), nil
}

// SingleCall asks for the whole analysis in one call.
type SingleCall struct {
	name    string
	gen     Generator
	prompts *Prompts
	parser  *Parser
	timeout time.Duration
}

// NewSingleCall builds a single-call strategy. name distinguishes the hosted
// model ("single_call") from the local one ("local").
func NewSingleCall(name string, gen Generator, prompts *Prompts, parser *Parser, timeout time.Duration) *SingleCall {
	if name == "" {
		name = StrategySingleCall
	}
	return &SingleCall{name: name, gen: gen, prompts: prompts, parser: parser, timeout: timeout}
}

func (s *SingleCall) Name() string { return s.name }

func (s *SingleCall) Run(ctx context.Context, in Input) (Analysis, error) {
	text, err := s.prompts.Render(ctx, templateAnalyze, promptData{
		Description: in.Description,
		Profile:     profileJSON(in.Profile),
		Experience:  string(in.Profile.Experience),
		Clarify:     in.ClarifyAnswer,
		History:     in.History,
	})
	if err != nil {
		return Analysis{}, err
	}
	raw, err := call(ctx, s.gen, s.timeout, Prompt{System: systemAnalyze, Text: text, Image: in.Image, ImageMIME: in.ImageMIME})
	if err != nil {
		return Analysis{}, fmt.Errorf("analyze: %w", err)
	}
	var a Analysis
	if err := s.parser.Parse(ctx, schemaAnalysis, raw, &a); err != nil {
		return Analysis{}, fmt.Errorf("analyze: %w", err)
	}
	return a, nil
}

func call(ctx context.Context, gen Generator, timeout time.Duration, p Prompt) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return gen.Generate(ctx, p)
}
