package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/meravakil/meravakil-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.User{},
		&types.Chat{},
		&types.Message{},
	)
}

// EnsureIndexes adds the composite indexes the list endpoints sort by.
func EnsureIndexes(db *gorm.DB) error {
	stmts := []struct{ name, sql string }{
		{"idx_chat_user_starred_updated", `CREATE INDEX IF NOT EXISTS idx_chat_user_starred_updated ON chat (user_id, starred, updated_at)`},
		{"idx_chat_message_chat_created", `CREATE INDEX IF NOT EXISTS idx_chat_message_chat_created ON chat_message (chat_id, created_at)`},
	}
	for _, s := range stmts {
		if err := db.Exec(s.sql).Error; err != nil {
			return fmt.Errorf("create %s: %w", s.name, err)
		}
	}
	return nil
}

func (s *Service) Migrate() error {
	if err := AutoMigrateAll(s.db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := EnsureIndexes(s.db); err != nil {
		return err
	}
	s.log.Info("Database migrated")
	return nil
}
