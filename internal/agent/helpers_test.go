package agent_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	dbfs "github.com/garnizeh/fixbuddy/db"
	"github.com/garnizeh/fixbuddy/internal/agent"
	dbpkg "github.com/garnizeh/fixbuddy/internal/db"
	sqlite "github.com/garnizeh/fixbuddy/internal/repository/sqlite"
	"github.com/garnizeh/fixbuddy/pkg/youtube"
)

const (
	chairDiagnosis = `{"item_name":"Wooden chair","brand_model":null,"repairability":{"score":85,"confidence":"high"},"issues":[{"name":"Loose leg joint","probability":0.8}]}`
	chairGuidance  = "```json\n" + `{"diy":{"safety":["Wear gloves.","Work in a ventilated area"],"tools":["Clamp",{"name":"Wood glue"}],"time_minutes":45,"steps":["Remove the leg",{"instruction":"Clean the old glue"},{"instruction":"Glue and clamp for 24 hours","warning":"Do not sit on it for a day"}],"parts":[{"name":"Wood dowel","est_cost_usd":2.5}]},"blocked":false,"risk_level":"low","confidence_overall":0.8}` + "\n```"
	chairAnalysis  = `Sure! {"item_name":"Wooden chair","repairability":{"score":80,"confidence":"medium"},"issues":[{"problem":"Loose leg joint","probability":0.7}],"diy":{"safety":["Wear gloves"],"tools":["Clamp"],"steps":["Glue the joint"],"parts":[]},"blocked":false,"confidence_overall":0.6} Hope that helps.`

	stoveDiagnosis = `{"item_name":"Gas stove","repairability":{"score":20,"confidence":"medium"},"issues":[{"name":"Gas leak at burner valve","probability":0.9}]}`
	stoveGuidance  = `{"diy":{"safety":["Ventilate the room"],"tools":["Wrench"],"steps":["Tighten the valve fitting"]},"blocked":false,"confidence_overall":0.5}`
)

type pipeline struct {
	repo    *sqlite.SQLiteRepo
	parser  *agent.Parser
	prompts *agent.Prompts
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	ctx := context.Background()
	d, err := dbpkg.New(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := dbpkg.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := sqlite.New(d, nil)
	loader, err := agent.NewLoader(ctx, repo)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	return &pipeline{
		repo:    repo,
		parser:  agent.NewParser(loader, "v1"),
		prompts: agent.NewPrompts(repo, "v1"),
	}
}

// scripted replies with the next canned response on every call and records the prompts.
type scripted struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []agent.Prompt
}

func (s *scripted) Generate(ctx context.Context, p agent.Prompt) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, p)
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", errors.New("no scripted response left")
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	return r, nil
}

func (s *scripted) calls() []agent.Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]agent.Prompt(nil), s.prompts...)
}

type fakeVideos struct {
	videos  []youtube.Video
	err     error
	queries []string
}

func (f *fakeVideos) Search(ctx context.Context, query string, max int, experience string) ([]youtube.Video, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.videos, nil
}

type fakeRecorder struct {
	mu         sync.Mutex
	runs       []string
	blocks     []string
	videoFails int
}

func (r *fakeRecorder) StrategyRun(strategy, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, strategy+":"+outcome)
}

func (r *fakeRecorder) SafetyBlock(source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks = append(r.blocks, source)
}

func (r *fakeRecorder) VideoSearchFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.videoFails++
}

type fakePruner struct {
	calls []int
}

func (p *fakePruner) SchedulePrune(ctx context.Context, userID int64, keep int) error {
	p.calls = append(p.calls, keep)
	return nil
}

func videos(n int) []youtube.Video {
	out := make([]youtube.Video, 0, n)
	for i := range n {
		out = append(out, youtube.Video{
			Title: "Fix a wobbly chair",
			URL:   "https://www.youtube.com/watch?v=" + string(rune('a'+i)),
		})
	}
	return out
}
