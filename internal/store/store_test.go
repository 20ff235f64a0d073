package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	s, err := OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "oracle"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)

	tests := []struct {
		pragma string
		want   int
	}{
		// journal_mode stays "memory" for in-memory databases.
		{"foreign_keys", 1},
		{"synchronous", 1}, // NORMAL
	}

	for _, tt := range tests {
		var got int
		if err := s.DB().Raw("PRAGMA " + tt.pragma).Scan(&got).Error; err != nil {
			t.Errorf("PRAGMA %s: %v", tt.pragma, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %d, want %d", tt.pragma, got, tt.want)
		}
	}
}

func TestAutoMigrationCreatesTables(t *testing.T) {
	s := openTestStore(t)
	for _, table := range []string{"lesson_sessions", "activity_progress", "messages", "lessons", "llm_request_events"} {
		if !s.DB().Migrator().HasTable(table) {
			t.Errorf("table %s missing", table)
		}
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repo := s.Sessions()

	sess := &Session{UserID: "u1", LessonID: "web-security"}
	if err := repo.Create(ctx, sess); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected generated id")
	}
	if sess.StartedAt.IsZero() || sess.LastActivityAt.IsZero() {
		t.Fatal("expected timestamps to be filled")
	}

	got, err := repo.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.CurrentActivityID != nil {
		t.Fatalf("new session = %+v, want not started", got)
	}

	now := time.Now().UTC()
	if err := repo.Advance(ctx, sess.ID, "a1", now); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	got, _ = repo.Get(ctx, sess.ID)
	if got.CurrentActivityID == nil || *got.CurrentActivityID != "a1" {
		t.Fatalf("CurrentActivityID = %v, want a1", got.CurrentActivityID)
	}

	active, err := repo.FindActive(ctx, "u1", "web-security")
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	if active == nil || active.ID != sess.ID {
		t.Fatalf("FindActive = %+v, want %s", active, sess.ID)
	}

	if err := repo.Complete(ctx, sess.ID, now); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, _ = repo.Get(ctx, sess.ID)
	if got.CompletedAt == nil || got.Passed == nil || !*got.Passed {
		t.Fatalf("completed session = %+v", got)
	}

	active, _ = repo.FindActive(ctx, "u1", "web-security")
	if active != nil {
		t.Fatalf("FindActive after completion = %+v, want nil", active)
	}
}

func TestSessionGetMissing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	got, err := s.Sessions().Get(ctx, "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("Get = %+v, want nil", got)
	}

	err = s.Sessions().Touch(ctx, "nope", time.Now())
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("Touch missing = %v, want ErrRecordNotFound", err)
	}
}

func TestProgressSaveAndCompletedOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repo := s.Progress()

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a2", "a1"} {
		p := &ActivityProgress{
			SessionID:   "s1",
			ActivityID:  id,
			MomentID:    "m1",
			Status:      StatusInProgress,
			StartedAt:   base,
			CompletedAt: nil,
		}
		if err := repo.Save(ctx, p); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
		p.Attempts = 2
		p.Status = StatusCompleted
		p.PassedCriteria = true
		p.CompletedAt = ptr(base.Add(time.Duration(i) * time.Minute))
		if err := repo.Save(ctx, p); err != nil {
			t.Fatalf("update %s: %v", id, err)
		}
	}

	got, err := repo.Get(ctx, "s1", "a2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Attempts != 2 || got.Status != StatusCompleted || !got.PassedCriteria {
		t.Fatalf("a2 progress = %+v", got)
	}

	ids, err := repo.CompletedActivityIDs(ctx, "s1")
	if err != nil {
		t.Fatalf("CompletedActivityIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a2" || ids[1] != "a1" {
		t.Fatalf("completed ids = %v, want [a2 a1]", ids)
	}

	last, err := repo.LastCompleted(ctx, "s1")
	if err != nil {
		t.Fatalf("LastCompleted: %v", err)
	}
	if last == nil || last.ActivityID != "a1" {
		t.Fatalf("LastCompleted = %+v, want a1", last)
	}

	missing, err := repo.Get(ctx, "s1", "a9")
	if err != nil || missing != nil {
		t.Fatalf("Get missing = %+v, %v", missing, err)
	}
}

func TestProgressUniquePerActivity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := &ActivityProgress{SessionID: "s1", ActivityID: "a1", Status: StatusInProgress}
	if err := s.Progress().Save(ctx, first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	dup := &ActivityProgress{SessionID: "s1", ActivityID: "a1", Status: StatusInProgress}
	if err := s.Progress().Save(ctx, dup); err == nil {
		t.Fatal("expected unique constraint violation")
	}
}

func TestMessageAppendOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repo := s.Messages()

	for i := range 4 {
		user := &Message{SessionID: "s1", Role: RoleUser, Content: fmt.Sprintf("q%d", i)}
		reply := &Message{SessionID: "s1", Role: RoleAssistant, Content: fmt.Sprintf("a%d", i), ActivityID: ptr("a1")}
		if err := repo.Append(ctx, user, reply); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	all, err := repo.List(ctx, "s1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 8 {
		t.Fatalf("len = %d, want 8", len(all))
	}
	for i, m := range all {
		if m.Seq != int64(i+1) {
			t.Errorf("message %d seq = %d", i, m.Seq)
		}
	}
	if all[0].Content != "q0" || all[7].Content != "a3" {
		t.Fatalf("order = %q..%q", all[0].Content, all[7].Content)
	}

	recent, err := repo.Recent(ctx, "s1", 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	want := []string{"a2", "q3", "a3"}
	for i, m := range recent {
		if m.Content != want[i] {
			t.Errorf("recent[%d] = %q, want %q", i, m.Content, want[i])
		}
	}

	first, err := repo.FirstAssistant(ctx, "s1")
	if err != nil {
		t.Fatalf("FirstAssistant: %v", err)
	}
	if first == nil || first.Content != "a0" {
		t.Fatalf("FirstAssistant = %+v", first)
	}

	n, _ := repo.Count(ctx, "s1")
	if n != 8 {
		t.Fatalf("Count = %d, want 8", n)
	}
	other, _ := repo.Count(ctx, "s2")
	if other != 0 {
		t.Fatalf("Count(s2) = %d, want 0", other)
	}
}

func TestWithTxRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx *Store) error {
		if err := tx.Messages().Append(ctx, &Message{SessionID: "s1", Role: RoleUser, Content: "hi"}); err != nil {
			return err
		}
		if err := tx.Progress().Save(ctx, &ActivityProgress{SessionID: "s1", ActivityID: "a1", Status: StatusInProgress}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx = %v, want boom", err)
	}

	n, _ := s.Messages().Count(ctx, "s1")
	if n != 0 {
		t.Fatalf("messages after rollback = %d, want 0", n)
	}
	p, _ := s.Progress().Get(ctx, "s1", "a1")
	if p != nil {
		t.Fatalf("progress after rollback = %+v, want nil", p)
	}
}

func TestSessionResetCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess := &Session{UserID: "u1", LessonID: "l1"}
	if err := s.Sessions().Create(ctx, sess); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_ = s.Sessions().Advance(ctx, sess.ID, "a2", time.Now())
	_ = s.Sessions().Complete(ctx, sess.ID, time.Now())
	_ = s.Messages().Append(ctx, &Message{SessionID: sess.ID, Role: RoleAssistant, Content: "welcome"})
	_ = s.Progress().Save(ctx, &ActivityProgress{SessionID: sess.ID, ActivityID: "a1", Status: StatusCompleted})

	if err := s.Sessions().Reset(ctx, sess.ID); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	got, _ := s.Sessions().Get(ctx, sess.ID)
	if got.CurrentActivityID != nil || got.CompletedAt != nil || got.Passed != nil {
		t.Fatalf("session after reset = %+v", got)
	}
	if n, _ := s.Messages().Count(ctx, sess.ID); n != 0 {
		t.Fatalf("messages after reset = %d", n)
	}
	rows, _ := s.Progress().ListBySession(ctx, sess.ID)
	if len(rows) != 0 {
		t.Fatalf("progress after reset = %d rows", len(rows))
	}

	if err := s.Sessions().Reset(ctx, "missing"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("Reset missing = %v, want ErrRecordNotFound", err)
	}
}

func TestLessonSaveUpserts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repo := s.Lessons()

	l := &Lesson{ID: "web", Title: "Web v1", Published: true, Content: []byte(`{"v":1}`)}
	if err := repo.Save(ctx, l); err != nil {
		t.Fatalf("Save: %v", err)
	}
	l2 := &Lesson{ID: "web", Title: "Web v2", Published: true, Content: []byte(`{"v":2}`)}
	if err := repo.Save(ctx, l2); err != nil {
		t.Fatalf("Save again: %v", err)
	}

	got, err := repo.Get(ctx, "web")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Web v2" || string(got.Content) != `{"v":2}` {
		t.Fatalf("lesson = %+v", got)
	}

	all, _ := repo.List(ctx)
	if len(all) != 1 {
		t.Fatalf("List len = %d, want 1", len(all))
	}

	missing, err := repo.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("Get missing = %+v, %v", missing, err)
	}
}

func TestLLMEventsQueryAndUsage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repo := s.EventRepo()

	events := []LLMRequestEventData{
		{Provider: "anthropic", Model: "claude-haiku-4-5", Purpose: "verification", InputTokens: 100, OutputTokens: 20, LatencyMs: 100, Success: true},
		{Provider: "anthropic", Model: "claude-haiku-4-5", Purpose: "verification", InputTokens: 120, OutputTokens: 30, LatencyMs: 300, Success: true},
		{Provider: "anthropic", Model: "claude-sonnet-4-5", Purpose: "chat", SessionID: "s-1", InputTokens: 800, OutputTokens: 400, LatencyMs: 2000, Success: true, Streamed: true},
		{Provider: "anthropic", Model: "claude-sonnet-4-5", Purpose: "chat", LatencyMs: 50, ErrorMessage: "overloaded"},
	}
	for _, e := range events {
		if err := repo.AppendLLMRequest(ctx, e); err != nil {
			t.Fatalf("AppendLLMRequest: %v", err)
		}
	}

	all, err := repo.QueryLLMEvents(ctx, QueryOpts{})
	if err != nil {
		t.Fatalf("QueryLLMEvents: %v", err)
	}
	if len(all) != 4 || all[0].ErrorMessage != "overloaded" {
		t.Fatalf("events = %+v, want newest first", all)
	}

	verification, _ := repo.QueryLLMEvents(ctx, QueryOpts{Purpose: "verification", Limit: 1})
	if len(verification) != 1 || verification[0].InputTokens != 120 {
		t.Fatalf("filtered = %+v", verification)
	}

	bySession, _ := repo.QueryLLMEvents(ctx, QueryOpts{SessionID: "s-1"})
	if len(bySession) != 1 || bySession[0].Purpose != "chat" {
		t.Fatalf("session filter = %+v", bySession)
	}

	ev, err := repo.GetLLMEvent(ctx, all[1].ID)
	if err != nil || ev == nil || !ev.Streamed {
		t.Fatalf("GetLLMEvent = %+v, %v", ev, err)
	}
	if ev, _ := repo.GetLLMEvent(ctx, 9999); ev != nil {
		t.Fatalf("GetLLMEvent missing = %+v", ev)
	}

	byPurpose, err := repo.LLMUsageByPurpose(ctx)
	if err != nil {
		t.Fatalf("LLMUsageByPurpose: %v", err)
	}
	if len(byPurpose) != 2 {
		t.Fatalf("purposes = %+v", byPurpose)
	}
	v := byPurpose[1]
	if v.Purpose != "verification" || v.Calls != 2 || v.InputTokens != 220 || v.AvgLatencyMs != 200 {
		t.Fatalf("verification usage = %+v", v)
	}

	byModel, err := repo.LLMUsageByModel(ctx)
	if err != nil {
		t.Fatalf("LLMUsageByModel: %v", err)
	}
	if len(byModel) != 2 || byModel[1].Calls != 1 || byModel[1].OutputTokens != 400 {
		t.Fatalf("models = %+v", byModel)
	}
}
