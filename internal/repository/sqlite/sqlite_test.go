package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	dbfs "github.com/garnizeh/fixbuddy/db"
	dbpkg "github.com/garnizeh/fixbuddy/internal/db"
	sqlite "github.com/garnizeh/fixbuddy/internal/repository/sqlite"
	"github.com/garnizeh/fixbuddy/pkg/models"
	"github.com/garnizeh/fixbuddy/pkg/repository"
)

func setupRepo(t *testing.T) *sqlite.SQLiteRepo {
	t.Helper()
	ctx := context.Background()
	d, err := dbpkg.New(ctx, ":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	if err := dbpkg.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return sqlite.New(d, nil)
}

func createUser(t *testing.T, repo *sqlite.SQLiteRepo, username string) int64 {
	t.Helper()
	id, err := repo.CreateUser(context.Background(), &models.User{Username: username, PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return id
}

func strPtr(s string) *string { return &s }

func TestUserCRUD(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	if _, err := repo.CreateUser(ctx, nil); err == nil {
		t.Fatalf("expected error when creating nil user")
	}

	got, err := repo.GetUserByID(ctx, 9999)
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil for missing id, got %#v, %v", got, err)
	}
	got, err = repo.GetUserByUsername(ctx, "nobody")
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil for missing username, got %#v, %v", got, err)
	}

	id := createUser(t, repo, "alice")
	got, err = repo.GetUserByID(ctx, id)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if got == nil || got.Username != "alice" || got.PasswordHash != "hash" {
		t.Fatalf("unexpected user: %#v", got)
	}

	got, err = repo.GetUserByUsername(ctx, "alice")
	if err != nil || got == nil || got.ID != id {
		t.Fatalf("GetUserByUsername: %#v, %v", got, err)
	}

	_, err = repo.CreateUser(ctx, &models.User{Username: "alice", PasswordHash: "x"})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate username, got %v", err)
	}
}

func TestProfileCRUD(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	uid := createUser(t, repo, "bob")

	p, err := repo.GetProfileByUserID(ctx, uid)
	if err != nil || p != nil {
		t.Fatalf("expected no profile yet, got %#v, %v", p, err)
	}

	if _, err := repo.CreateProfile(ctx, &models.Profile{UserID: uid, Experience: models.ExperienceIntermediate, ToolsOwned: []string{"screwdriver", "glue"}}); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}

	p, err = repo.GetProfileByUserID(ctx, uid)
	if err != nil {
		t.Fatalf("GetProfileByUserID: %v", err)
	}
	if p.Experience != models.ExperienceIntermediate || len(p.ToolsOwned) != 2 || p.Language != "en" || p.RiskTolerance != "low" {
		t.Fatalf("unexpected profile: %#v", p)
	}

	p.Experience = models.ExperienceExpert
	p.ToolsOwned = nil
	p.Language = "pt"
	if err := repo.UpdateProfile(ctx, p); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	p, _ = repo.GetProfileByUserID(ctx, uid)
	if p.Experience != models.ExperienceExpert || len(p.ToolsOwned) != 0 || p.Language != "pt" {
		t.Fatalf("update not applied: %#v", p)
	}

	other := createUser(t, repo, "bob2")
	if _, err := repo.CreateProfile(ctx, &models.Profile{UserID: other, Experience: "wizard"}); err == nil {
		t.Fatalf("expected experience CHECK constraint to reject unknown tier")
	}
}

func TestDiagnoses_ListNewestFirstAndScopedToOwner(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	alice := createUser(t, repo, "alice")
	bob := createUser(t, repo, "bob")

	for i := 0; i < 12; i++ {
		d := &models.Diagnosis{
			UserID:  alice,
			Created: int64(1000 + i),
			Result:  models.DiagnosisResult{ItemName: strPtr(fmt.Sprintf("item-%d", i)), Issues: []models.Issue{}},
		}
		if _, err := repo.CreateDiagnosis(ctx, d); err != nil {
			t.Fatalf("CreateDiagnosis: %v", err)
		}
	}
	if _, err := repo.CreateDiagnosis(ctx, &models.Diagnosis{UserID: bob, Created: 5000, Result: models.DiagnosisResult{ItemName: strPtr("bob-item")}}); err != nil {
		t.Fatalf("CreateDiagnosis bob: %v", err)
	}

	list, err := repo.ListRecentDiagnoses(ctx, alice, 10)
	if err != nil {
		t.Fatalf("ListRecentDiagnoses: %v", err)
	}
	if len(list) != 10 {
		t.Fatalf("expected 10 diagnoses, got %d", len(list))
	}
	if *list[0].Result.ItemName != "item-11" || *list[9].Result.ItemName != "item-2" {
		t.Fatalf("unexpected order: first=%s last=%s", *list[0].Result.ItemName, *list[9].Result.ItemName)
	}
	for _, d := range list {
		if d.UserID != alice {
			t.Fatalf("foreign diagnosis leaked into listing: %#v", d)
		}
		if d.Result.ID != d.ID || d.Result.CreatedAt != d.Created {
			t.Fatalf("result id/createdAt not populated: %#v", d.Result)
		}
	}
}

func TestDiagnoses_GetDeleteOwnership(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	alice := createUser(t, repo, "alice")
	bob := createUser(t, repo, "bob")

	id, err := repo.CreateDiagnosis(ctx, &models.Diagnosis{UserID: alice, Result: models.DiagnosisResult{Blocked: true}})
	if err != nil {
		t.Fatalf("CreateDiagnosis: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated id")
	}

	got, err := repo.GetDiagnosis(ctx, id, bob)
	if err != nil || got != nil {
		t.Fatalf("bob must not see alice's diagnosis: %#v, %v", got, err)
	}
	got, err = repo.GetDiagnosis(ctx, id, alice)
	if err != nil || got == nil || !got.Result.Blocked {
		t.Fatalf("GetDiagnosis: %#v, %v", got, err)
	}

	ok, err := repo.DeleteDiagnosis(ctx, id, bob)
	if err != nil || ok {
		t.Fatalf("bob must not delete alice's diagnosis: %v, %v", ok, err)
	}
	ok, err = repo.DeleteDiagnosis(ctx, id, alice)
	if err != nil || !ok {
		t.Fatalf("DeleteDiagnosis: %v, %v", ok, err)
	}
	ok, _ = repo.DeleteDiagnosis(ctx, id, alice)
	if ok {
		t.Fatalf("second delete should report false")
	}
}

func TestPruneDiagnoses(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	alice := createUser(t, repo, "alice")
	bob := createUser(t, repo, "bob")

	for i := 0; i < 13; i++ {
		if _, err := repo.CreateDiagnosis(ctx, &models.Diagnosis{UserID: alice, Created: int64(i + 1)}); err != nil {
			t.Fatalf("CreateDiagnosis: %v", err)
		}
	}
	if _, err := repo.CreateDiagnosis(ctx, &models.Diagnosis{UserID: bob, Created: 1}); err != nil {
		t.Fatalf("CreateDiagnosis bob: %v", err)
	}

	n, err := repo.PruneDiagnoses(ctx, alice, 10)
	if err != nil {
		t.Fatalf("PruneDiagnoses: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 pruned, got %d", n)
	}

	list, _ := repo.ListRecentDiagnoses(ctx, alice, 100)
	if len(list) != 10 || list[9].Created != 4 {
		t.Fatalf("expected the newest 10 to remain, got %d (oldest created=%d)", len(list), list[len(list)-1].Created)
	}
	bobs, _ := repo.ListRecentDiagnoses(ctx, bob, 100)
	if len(bobs) != 1 {
		t.Fatalf("prune must not touch other users, got %d", len(bobs))
	}
}

func TestHistory_AppendCapsOldestFirst(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	uid := createUser(t, repo, "carol")

	for i := 0; i < 25; i++ {
		msg := models.Message{Role: models.RoleUser, Content: fmt.Sprintf("m%d", i)}
		if err := repo.AppendMessages(ctx, uid, []models.Message{msg}, 20); err != nil {
			t.Fatalf("AppendMessages: %v", err)
		}
	}

	msgs, err := repo.RecentMessages(ctx, uid, 100)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 20 {
		t.Fatalf("expected 20 messages after cap, got %d", len(msgs))
	}
	if msgs[0].Content != "m5" || msgs[19].Content != "m24" {
		t.Fatalf("expected m5..m24, got %s..%s", msgs[0].Content, msgs[19].Content)
	}
	if msgs[0].Type != models.MessageTypeText {
		t.Fatalf("expected default type text, got %q", msgs[0].Type)
	}

	recent, _ := repo.RecentMessages(ctx, uid, 2)
	if len(recent) != 2 || recent[0].Content != "m23" || recent[1].Content != "m24" {
		t.Fatalf("unexpected recent window: %#v", recent)
	}
}

func TestHistory_DiagnosisMetadata(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	uid := createUser(t, repo, "dave")

	err := repo.AppendMessages(ctx, uid, []models.Message{
		{Role: models.RoleUser, Content: "Problem: wobbly chair"},
		{Role: models.RoleAssistant, Type: models.MessageTypeDiagnosis, Content: `{"itemName":"chair"}`, DiagnosisID: "abc"},
	}, 20)
	if err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	msgs, _ := repo.RecentMessages(ctx, uid, 8)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[1].Role != models.RoleAssistant || msgs[1].Type != models.MessageTypeDiagnosis || msgs[1].DiagnosisID != "abc" {
		t.Fatalf("assistant metadata lost: %#v", msgs[1])
	}
}

func TestSchemasAndTemplatesSeeded(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	schemas, err := repo.ListSchemas(ctx)
	if err != nil {
		t.Fatalf("ListSchemas: %v", err)
	}
	if len(schemas) != 3 {
		t.Fatalf("expected 3 seeded schemas, got %d", len(schemas))
	}

	s, err := repo.GetSchema(ctx, "guidance", "v1")
	if err != nil || s == nil || s.SchemaJSON == "" {
		t.Fatalf("GetSchema guidance: %#v, %v", s, err)
	}
	s, err = repo.GetSchema(ctx, "guidance", "v9")
	if err != nil || s != nil {
		t.Fatalf("expected nil for unknown version, got %#v, %v", s, err)
	}

	tpl, err := repo.GetTemplate(ctx, "guide", "v1")
	if err != nil || tpl == nil || tpl.TemplateTxt == "" {
		t.Fatalf("GetTemplate guide: %#v, %v", tpl, err)
	}
	tpl, err = repo.GetTemplate(ctx, "missing", "v1")
	if err != nil || tpl != nil {
		t.Fatalf("expected nil template, got %#v, %v", tpl, err)
	}
}
