// internal/storage/models/base.go
package models

import (
	"strings"
	"time"
)

// Timestamps заменяет gorm.Model: ключи у таблиц естественные (mint, signature).
type Timestamps struct {
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func joinList(items []string) string {
	return strings.Join(items, ",")
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// All возвращает модели для AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Pool{},
		&Trade{},
		&Holding{},
		&FeeEarner{},
		&FeeClaim{},
		&VanityKeypair{},
		&PreparedTx{},
		&APIKey{},
	}
}
