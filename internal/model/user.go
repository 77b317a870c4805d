package model

import (
	"strings"
	"time"
)

// Monarch is the Telegram user who issues decrees.
type Monarch struct {
	ID         uint  `gorm:"primaryKey"`
	TelegramID int64 `gorm:"uniqueIndex"`
	FirstName  string
	LastName   string
	Username   string
	Renown     int `gorm:"default:0"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DisplayName picks the friendliest name available.
func (m Monarch) DisplayName() string {
	if name := strings.TrimSpace(m.FirstName); name != "" {
		return name
	}
	if m.Username != "" {
		return "@" + m.Username
	}
	return "Your Majesty"
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
