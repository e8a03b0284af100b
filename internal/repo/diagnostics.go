// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides store self-checks surfaced by the
// chat debug endpoint.
package repo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tbourn/go-livechat-backend/internal/domain"
)

// errRollback aborts the self-check transaction after a successful insert.
var errRollback = errors.New("rollback")

// Diagnostics reports whether the chat tables are usable. Values are short
// human-readable verdicts ("OK (1 rows)" or "ERROR: ..."); nothing secret is
// included.
type Diagnostics struct {
	Driver        string `json:"driver"`
	ConfigRead    string `json:"config_read"`
	SessionRead   string `json:"session_read"`
	SessionInsert string `json:"session_insert,omitempty"`
}

// Diagnose checks the store. The session insert check runs inside a
// transaction that is always rolled back, and only when a config exists to
// attach the self-check session to.
func Diagnose(ctx context.Context, db *gorm.DB) Diagnostics {
	d := Diagnostics{Driver: db.Dialector.Name()}

	var configs []domain.ChatbotConfig
	if err := db.WithContext(ctx).Select("id", "admin_id").Limit(1).Find(&configs).Error; err != nil {
		d.ConfigRead = "ERROR: " + err.Error()
	} else {
		d.ConfigRead = fmt.Sprintf("OK (%d rows)", len(configs))
	}

	var sessions []domain.Session
	if err := db.WithContext(ctx).Select("id").Limit(1).Find(&sessions).Error; err != nil {
		d.SessionRead = "ERROR: " + err.Error()
	} else {
		d.SessionRead = fmt.Sprintf("OK (%d rows)", len(sessions))
	}

	if len(configs) == 0 {
		return d
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		check := &domain.Session{
			AdminID:     configs[0].AdminID,
			ChatbotID:   configs[0].ID,
			VisitorName: "__debug_selfcheck__",
		}
		if err := CreateSession(ctx, tx, check); err != nil {
			return err
		}
		return errRollback
	})
	switch {
	case errors.Is(err, errRollback):
		d.SessionInsert = "OK"
	case err != nil:
		d.SessionInsert = "ERROR: " + err.Error()
	}
	return d
}
