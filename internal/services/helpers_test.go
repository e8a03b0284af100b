package services

import (
	"context"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-livechat-backend/internal/domain"
	"github.com/tbourn/go-livechat-backend/internal/repo"
)

// newSvcDB opens a private in-memory database with the full schema. A single
// connection serializes background writers with the test goroutine.
func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedConfig(t *testing.T, db *gorm.DB, id, adminID string) domain.ChatbotConfig {
	t.Helper()
	c := domain.DefaultChatbotConfig(id, adminID)
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("seed config: %v", err)
	}
	return c
}

func startSession(t *testing.T, db *gorm.DB, chatbotID string) *domain.Session {
	t.Helper()
	svc := &SessionService{DB: db}
	s, err := svc.Start(context.Background(), StartSessionInput{ChatbotID: chatbotID})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return s
}

// recordingSink captures emitted events synchronously.
type recordingSink struct{ events []domain.AnalyticsEvent }

func (r *recordingSink) Emit(_ context.Context, ev domain.AnalyticsEvent) {
	r.events = append(r.events, ev)
}
