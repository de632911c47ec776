package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/uplift-app/go-support-backend/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestEnableTracingKeepsQueriesWorking(t *testing.T) {
	db := newTestDB(t)
	if err := EnableTracing(db); err != nil {
		t.Fatalf("EnableTracing: %v", err)
	}

	// The instrumented callbacks must not disturb normal CRUD.
	ctx := context.Background()
	room, err := CreateRoom(ctx, db, "traced", false)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, err := GetRoom(ctx, db, room.ID); err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
}

func TestRoomsAndMembership(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	room, err := CreateRoom(ctx, db, "support", true)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	got, err := GetRoom(ctx, db, room.ID)
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if got.Name != "support" || !got.Private {
		t.Errorf("room = %+v", got)
	}

	if _, err := GetRoom(ctx, db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing room err = %v, want ErrNotFound", err)
	}

	if ok, _ := IsRoomMember(ctx, db, room.ID, "u1"); ok {
		t.Error("membership reported before grant")
	}
	if err := AddRoomMember(ctx, db, room.ID, "u1"); err != nil {
		t.Fatalf("AddRoomMember: %v", err)
	}
	// Granting again must be a silent no-op.
	if err := AddRoomMember(ctx, db, room.ID, "u1"); err != nil {
		t.Fatalf("repeat AddRoomMember: %v", err)
	}
	if ok, err := IsRoomMember(ctx, db, room.ID, "u1"); err != nil || !ok {
		t.Errorf("IsRoomMember = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestMessageOrderingAndPaging(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, c := range []string{"a", "b", "c", "d", "e"} {
		if _, err := CreateMessage(ctx, db, "r1", "u1", "User One", c, ""); err != nil {
			t.Fatalf("CreateMessage(%s): %v", c, err)
		}
		// Keep created_at strictly increasing at driver precision.
		time.Sleep(2 * time.Millisecond)
	}
	// A second room must not bleed into r1 results.
	if _, err := CreateMessage(ctx, db, "r2", "u1", "User One", "other", ""); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	recent, err := ListRecentMessages(ctx, db, "r1", 3)
	if err != nil {
		t.Fatalf("ListRecentMessages: %v", err)
	}
	if len(recent) != 3 || recent[0].Content != "e" || recent[2].Content != "c" {
		t.Errorf("recent = %v", contents(recent))
	}

	page, err := ListMessagesPage(ctx, db, "r1", 2, 2)
	if err != nil {
		t.Fatalf("ListMessagesPage: %v", err)
	}
	if len(page) != 2 || page[0].Content != "c" || page[1].Content != "d" {
		t.Errorf("page = %v", contents(page))
	}

	total, err := CountMessages(ctx, db, "r1")
	if err != nil || total != 5 {
		t.Errorf("CountMessages = (%d, %v), want (5, nil)", total, err)
	}
}

func TestAnonymizeRestore(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := CreateMessage(ctx, db, "r1", "u1", "User One", "mine", ""); err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
	}
	if _, err := CreateMessage(ctx, db, "r1", "u2", "User Two", "theirs", ""); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	n, err := AnonymizeUserMessages(ctx, db, "u1")
	if err != nil || n != 2 {
		t.Fatalf("Anonymize = (%d, %v), want (2, nil)", n, err)
	}

	var rows []domain.ChatMessage
	if err := db.Where("user_id = ?", "u1").Find(&rows).Error; err != nil {
		t.Fatalf("find: %v", err)
	}
	for _, m := range rows {
		if m.Username != domain.AnonymizedName {
			t.Errorf("username = %q, want placeholder", m.Username)
		}
		if m.OriginalUsername != "User One" {
			t.Errorf("original_username = %q, want User One", m.OriginalUsername)
		}
		if !m.Anonymized {
			t.Error("anonymized flag not set")
		}
		// The user id column stays so the event-sourced restore can match.
		if m.UserID != "u1" {
			t.Errorf("user_id = %q, want u1", m.UserID)
		}
	}

	// Re-running affects nothing.
	if n, _ := AnonymizeUserMessages(ctx, db, "u1"); n != 0 {
		t.Errorf("second anonymize affected %d rows, want 0", n)
	}

	// Other users untouched.
	var other domain.ChatMessage
	if err := db.Where("user_id = ?", "u2").First(&other).Error; err != nil {
		t.Fatalf("find u2: %v", err)
	}
	if other.Username != "User Two" {
		t.Errorf("u2 username = %q", other.Username)
	}

	n, err = RestoreUserMessages(ctx, db, "u1")
	if err != nil || n != 2 {
		t.Fatalf("Restore = (%d, %v), want (2, nil)", n, err)
	}
	var restored domain.ChatMessage
	if err := db.Where("user_id = ?", "u1").First(&restored).Error; err != nil {
		t.Fatalf("find restored: %v", err)
	}
	if restored.Username != "User One" || restored.Anonymized {
		t.Errorf("restored = %+v", restored)
	}
	if n, _ := RestoreUserMessages(ctx, db, "u1"); n != 0 {
		t.Errorf("second restore affected %d rows, want 0", n)
	}
}

func TestProcessedEventBarrier(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if done, err := IsEventProcessed(ctx, db, "evt-1"); err != nil || done {
		t.Fatalf("IsEventProcessed = (%v, %v), want (false, nil)", done, err)
	}

	if err := MarkEventProcessed(ctx, db, "evt-1", "user.deleted", "corr-1"); err != nil {
		t.Fatalf("MarkEventProcessed: %v", err)
	}
	if done, _ := IsEventProcessed(ctx, db, "evt-1"); !done {
		t.Fatal("event not reported processed after mark")
	}

	if err := MarkEventProcessed(ctx, db, "evt-1", "user.deleted", "corr-1"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate mark err = %v, want ErrDuplicate", err)
	}

	if err := UnmarkEventProcessed(ctx, db, "evt-1"); err != nil {
		t.Fatalf("UnmarkEventProcessed: %v", err)
	}
	if done, _ := IsEventProcessed(ctx, db, "evt-1"); done {
		t.Fatal("event still reported processed after unmark")
	}
}

func contents(msgs []domain.ChatMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}
