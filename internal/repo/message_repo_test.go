package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-livechat-backend/internal/domain"
)

func TestCreateMessage_Inserts(t *testing.T) {
	db := newTestDB(t, &domain.Session{}, &domain.Message{})
	ctx := context.Background()
	seedSession(t, db, "s1", "a1", time.Now().UTC())

	msg, err := CreateMessage(ctx, db, "s1", "a1", domain.SenderVisitor, "hello")
	if err != nil {
		t.Fatalf("CreateMessage error: %v", err)
	}
	if msg.ID == "" || msg.SessionID != "s1" || msg.AdminID != "a1" || msg.SenderType != "visitor" || msg.IsRead {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.CreatedAt.IsZero() || time.Since(msg.CreatedAt) > time.Minute {
		t.Fatalf("CreatedAt not set reasonably: %v", msg.CreatedAt)
	}
	got, err := GetMessage(ctx, db, msg.ID)
	if err != nil || got.Content != "hello" {
		t.Fatalf("GetMessage: %+v %v", got, err)
	}
}

func TestCountMessages_Error_NoTable(t *testing.T) {
	db := newTestDB(t)
	if _, err := CountMessages(context.Background(), db, "sx"); err == nil {
		t.Fatalf("expected error due to missing messages table")
	}
}

func TestListMessages_OrderTieBreakByID(t *testing.T) {
	db := newTestDB(t, &domain.Message{})
	ctx := context.Background()

	t0 := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	rows := []domain.Message{
		{ID: "b", SessionID: "s2", AdminID: "a", SenderType: "visitor", Content: "y", CreatedAt: t0},
		{ID: "a", SessionID: "s2", AdminID: "a", SenderType: "visitor", Content: "x", CreatedAt: t0},
		{ID: "z", SessionID: "s2", AdminID: "a", SenderType: "admin", Content: "z", CreatedAt: t0.Add(time.Second)},
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed %s: %v", rows[i].ID, err)
		}
	}

	all, err := ListMessages(ctx, db, "s2", 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(all) != 3 || all[0].ID != "a" || all[1].ID != "b" || all[2].ID != "z" {
		t.Fatalf("unexpected order: %+v", all)
	}
	top2, err := ListMessages(ctx, db, "s2", 2)
	if err != nil || len(top2) != 2 || top2[1].ID != "b" {
		t.Fatalf("unexpected limit result: %+v %v", top2, err)
	}
}

func TestListMessagesAfter(t *testing.T) {
	db := newTestDB(t, &domain.Message{})
	ctx := context.Background()

	t0 := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	rows := []domain.Message{
		{ID: "m1", SessionID: "s1", AdminID: "a", SenderType: "visitor", Content: "1", CreatedAt: t0},
		{ID: "m2", SessionID: "s1", AdminID: "a", SenderType: "admin", Content: "2", CreatedAt: t0.Add(time.Second)},
		{ID: "m3", SessionID: "s1", AdminID: "a", SenderType: "admin", Content: "3", CreatedAt: t0.Add(time.Second)}, // same instant as m2
		{ID: "m4", SessionID: "s1", AdminID: "a", SenderType: "bot", Content: "4", CreatedAt: t0.Add(2 * time.Second)},
		{ID: "o1", SessionID: "s2", AdminID: "a", SenderType: "admin", Content: "other", CreatedAt: t0.Add(3 * time.Second)},
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed %s: %v", rows[i].ID, err)
		}
	}

	got, err := ListMessagesAfter(ctx, db, "s1", "m2", 50)
	if err != nil {
		t.Fatalf("ListMessagesAfter: %v", err)
	}
	if len(got) != 2 || got[0].ID != "m3" || got[1].ID != "m4" {
		t.Fatalf("expected [m3 m4], got %+v", got)
	}

	got, err = ListMessagesAfter(ctx, db, "s1", "m1", 1)
	if err != nil || len(got) != 1 || got[0].ID != "m2" {
		t.Fatalf("limit not honored: %+v %v", got, err)
	}

	got, err = ListMessagesAfter(ctx, db, "s1", "m4", 50)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected nothing after newest, got %+v %v", got, err)
	}

	// unresolvable cursor degrades to nothing new
	got, err = ListMessagesAfter(ctx, db, "s1", "deleted", 50)
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice for unknown cursor, got %+v %v", got, err)
	}
	// cursor from another session is not resolvable either
	got, err = ListMessagesAfter(ctx, db, "s1", "o1", 50)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty for foreign cursor, got %+v %v", got, err)
	}
}

func TestListMessagesPage_And_MarkRead(t *testing.T) {
	db := newTestDB(t, &domain.Session{}, &domain.Message{})
	ctx := context.Background()
	seedSession(t, db, "s1", "a1", time.Now().UTC())
	for _, c := range []string{"one", "two", "three"} {
		if _, err := CreateMessage(ctx, db, "s1", "a1", domain.SenderVisitor, c); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if _, err := CreateMessage(ctx, db, "s1", "a1", domain.SenderAdmin, "reply"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	page, err := ListMessagesPage(ctx, db, "s1", 1, 2)
	if err != nil || len(page) != 2 || page[0].Content != "two" {
		t.Fatalf("unexpected page: %+v %v", page, err)
	}

	n, err := MarkRead(ctx, db, "s1", domain.SenderVisitor)
	if err != nil || n != 3 {
		t.Fatalf("MarkRead changed %d rows (err=%v), want 3", n, err)
	}
	n, _ = MarkRead(ctx, db, "s1", domain.SenderVisitor)
	if n != 0 {
		t.Fatalf("second MarkRead should be a no-op, changed %d", n)
	}
	if _, err := GetMessage(ctx, db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
