package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/garnizeh/fixbuddy/pkg/models"
	"github.com/garnizeh/fixbuddy/pkg/repository"
	"github.com/garnizeh/fixbuddy/pkg/youtube"
)

// ErrUnavailable means no diagnosis strategy is configured at all.
var ErrUnavailable = errors.New("diagnosis pipeline unavailable")

const StrategyDegraded = "degraded"

var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger sets the logger used by internal/agent. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// VideoSearcher finds tutorials for a query.
type VideoSearcher interface {
	Search(ctx context.Context, query string, max int, experience string) ([]youtube.Video, error)
}

// PruneScheduler evicts a user's diagnoses beyond keep, usually asynchronously.
type PruneScheduler interface {
	SchedulePrune(ctx context.Context, userID int64, keep int) error
}

// Recorder receives pipeline events for metrics.
type Recorder interface {
	StrategyRun(strategy, outcome string)
	SafetyBlock(source string)
	VideoSearchFailure()
}

type nopRecorder struct{}

func (nopRecorder) StrategyRun(string, string) {}
func (nopRecorder) SafetyBlock(string)         {}
func (nopRecorder) VideoSearchFailure()        {}

// Options wires an Orchestrator. Only Strategies is required; every other
// collaborator is optional and its absence degrades the result.
type Options struct {
	Strategies []Strategy
	Gate       *SafetyGate
	Videos     VideoSearcher
	Profiles   repository.ProfileRepo
	History    repository.HistoryRepo
	Diagnoses  repository.DiagnosisRepo
	Pruner     PruneScheduler
	Metrics    Recorder

	HistoryLimit int
	HistoryCap   int
	MaxTutorials int
	DiagnosisCap int
}

// Outcome is the result plus how it was produced.
type Outcome struct {
	Result      models.DiagnosisResult
	Strategy    string
	Degraded    bool
	DiagnosisID string
}

type Orchestrator struct {
	opts Options
}

func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Gate == nil {
		opts.Gate = NewSafetyGate(true)
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 8
	}
	if opts.HistoryCap <= 0 {
		opts.HistoryCap = 20
	}
	if opts.MaxTutorials <= 0 || opts.MaxTutorials > 3 {
		opts.MaxTutorials = 3
	}
	if opts.DiagnosisCap <= 0 {
		opts.DiagnosisCap = 10
	}
	return &Orchestrator{opts: opts}
}

// Run produces a result for req. It fails only for invalid input or when no
// strategy is configured; every downstream failure degrades the result.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Outcome, error) {
	if err := ValidateRequest(req); err != nil {
		return Outcome{}, err
	}
	if len(o.opts.Strategies) == 0 {
		return Outcome{}, ErrUnavailable
	}

	img, mime, err := decodeImage(req.ImageBase64)
	if err != nil {
		if strings.TrimSpace(req.Description) == "" {
			return Outcome{}, &ValidationError{Problems: []string{"imageBase64 is not valid base64"}}
		}
		logger.Warn("agent: dropping undecodable image", slog.Int64("user_id", req.UserID), slog.String("error", err.Error()))
		img, mime = nil, ""
	}

	profile := o.resolveProfile(ctx, req)
	in := Input{
		Description:   strings.TrimSpace(req.Description),
		Image:         img,
		ImageMIME:     mime,
		Profile:       profile,
		History:       o.recentHistory(ctx, req.UserID),
		ClarifyAnswer: strings.TrimSpace(req.ClarifyAnswer),
	}

	out := Outcome{}
	analysis, strategy, ok := o.analyze(ctx, in)
	if !ok {
		analysis, strategy = DegradedAnalysis(), StrategyDegraded
		out.Degraded = true
	}
	out.Strategy = strategy
	analysis = Coerce(analysis)

	if kw, blocked := o.opts.Gate.Check(in.Description, analysis); blocked {
		source := "keyword"
		if kw == "" {
			source = "model"
		}
		o.opts.Metrics.SafetyBlock(source)
		logger.Info("agent: result blocked by safety gate", slog.Int64("user_id", req.UserID), slog.String("source", source), slog.String("keyword", kw))
		out.Result = BlockedResult(analysis, kw)
	} else {
		out.Result = BuildResult(analysis, o.tutorials(ctx, in, analysis))
	}

	if req.UserID != 0 {
		out.DiagnosisID = o.persist(ctx, req, in, &out.Result)
	}

	return out, nil
}

func (o *Orchestrator) analyze(ctx context.Context, in Input) (Analysis, string, bool) {
	for _, s := range o.opts.Strategies {
		a, err := s.Run(ctx, in)
		if err != nil {
			o.opts.Metrics.StrategyRun(s.Name(), "error")
			logger.Warn("agent: strategy failed", slog.String("strategy", s.Name()), slog.String("error", err.Error()))
			continue
		}
		o.opts.Metrics.StrategyRun(s.Name(), "ok")
		return a, s.Name(), true
	}
	return Analysis{}, "", false
}

// resolveProfile prefers the stored profile and falls back to the request
// values plus fixed defaults.
func (o *Orchestrator) resolveProfile(ctx context.Context, req Request) models.Profile {
	fallback := models.Profile{
		UserID:        req.UserID,
		Experience:    req.Experience,
		ToolsOwned:    nonBlank(req.Tools),
		Language:      "en",
		RiskTolerance: "low",
	}
	if fallback.Experience == "" {
		fallback.Experience = models.ExperienceBeginner
	}

	if req.UserID == 0 || o.opts.Profiles == nil {
		return fallback
	}
	p, err := o.opts.Profiles.GetProfileByUserID(ctx, req.UserID)
	if err != nil {
		logger.Warn("agent: profile lookup failed, using request values", slog.Int64("user_id", req.UserID), slog.String("error", err.Error()))
		return fallback
	}
	if p == nil {
		return fallback
	}
	if !models.ValidExperience(p.Experience) {
		p.Experience = fallback.Experience
	}
	if p.ToolsOwned == nil {
		p.ToolsOwned = fallback.ToolsOwned
	}
	if p.Language == "" {
		p.Language = fallback.Language
	}
	if p.RiskTolerance == "" {
		p.RiskTolerance = fallback.RiskTolerance
	}
	return *p
}

func (o *Orchestrator) recentHistory(ctx context.Context, userID int64) []models.Message {
	if userID == 0 || o.opts.History == nil {
		return nil
	}
	msgs, err := o.opts.History.RecentMessages(ctx, userID, o.opts.HistoryLimit)
	if err != nil {
		logger.Warn("agent: history lookup failed", slog.Int64("user_id", userID), slog.String("error", err.Error()))
		return nil
	}
	return msgs
}

// tutorialQuery is item name plus first issue. Without an item name the raw
// description is used.
func tutorialQuery(in Input, a Analysis) string {
	if a.ItemName == nil || strings.TrimSpace(*a.ItemName) == "" {
		return in.Description
	}
	q := strings.TrimSpace(*a.ItemName)
	if len(a.Issues) > 0 {
		if issue := strings.TrimSpace(a.Issues[0].Label()); issue != "" {
			q += " " + issue
		}
	}
	return q
}

func (o *Orchestrator) tutorials(ctx context.Context, in Input, a Analysis) []youtube.Video {
	if o.opts.Videos == nil {
		return nil
	}
	q := tutorialQuery(in, a)
	if q == "" {
		return nil
	}

	videos, err := o.opts.Videos.Search(ctx, q, o.opts.MaxTutorials, string(in.Profile.Experience))
	if err != nil {
		o.opts.Metrics.VideoSearchFailure()
		logger.Warn("agent: video search failed", slog.String("query", q), slog.String("error", err.Error()))
		return nil
	}
	if len(videos) > o.opts.MaxTutorials {
		videos = videos[:o.opts.MaxTutorials]
	}
	return videos
}

// persist stores the result and the conversation turn. Failures are logged
// and swallowed; the caller still gets the computed result.
func (o *Orchestrator) persist(ctx context.Context, req Request, in Input, result *models.DiagnosisResult) string {
	ctx = context.WithoutCancel(ctx)

	var id string
	if o.opts.Diagnoses != nil {
		d := &models.Diagnosis{UserID: req.UserID, Result: *result}
		var err error
		id, err = o.opts.Diagnoses.CreateDiagnosis(ctx, d)
		if err != nil {
			logger.Warn("agent: persisting diagnosis failed", slog.Int64("user_id", req.UserID), slog.String("error", err.Error()))
			id = ""
		} else {
			result.ID = id
			result.CreatedAt = d.Created
			if o.opts.Pruner != nil {
				if err := o.opts.Pruner.SchedulePrune(ctx, req.UserID, o.opts.DiagnosisCap); err != nil {
					logger.Warn("agent: scheduling prune failed", slog.Int64("user_id", req.UserID), slog.String("error", err.Error()))
				}
			}
		}
	}

	if o.opts.History != nil {
		msgs := []models.Message{
			{Role: models.RoleUser, Type: models.MessageTypeText, Content: problemStatement(in)},
			{Role: models.RoleAssistant, Type: models.MessageTypeDiagnosis, Content: summary(*result), DiagnosisID: id},
		}
		if err := o.opts.History.AppendMessages(ctx, req.UserID, msgs, o.opts.HistoryCap); err != nil {
			logger.Warn("agent: appending history failed", slog.Int64("user_id", req.UserID), slog.String("error", err.Error()))
		}
	}

	return id
}

func problemStatement(in Input) string {
	desc := in.Description
	if desc == "" {
		desc = "(photo only)"
	}
	s := "Problem: " + desc
	if in.ClarifyAnswer != "" {
		s += "\nFollow-up: " + in.ClarifyAnswer
	}
	return s
}

func summary(r models.DiagnosisResult) string {
	b, _ := json.Marshal(struct {
		ItemName *string        `json:"itemName"`
		Issues   []models.Issue `json:"issues"`
		Steps    []string       `json:"steps"`
		Blocked  bool           `json:"blocked"`
	}{r.ItemName, r.Issues, r.Diagnosis.Steps, r.Blocked})
	return string(b)
}
