package models

import (
	"time"

	"gorm.io/gorm"
)

// UserRating is the persistent competitive record for one user.
// Created lazily on first battle activity; mutated only at match resolution; never deleted.
type UserRating struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"uniqueIndex;not null" json:"user_id"` // links to profile service

	Rating int `json:"rating" gorm:"default:1000"`

	// Lifetime aggregates
	TotalBattles int `json:"total_battles" gorm:"default:0"`
	Wins         int `json:"wins" gorm:"default:0"`
	Losses       int `json:"losses" gorm:"default:0"`
	Draws        int `json:"draws" gorm:"default:0"`

	CurrentStreak int `json:"current_streak" gorm:"default:0"`
	BestStreak    int `json:"best_streak" gorm:"default:0"`

	LastBattleAt *time.Time `json:"last_battle_at,omitempty"`

	Timestamps
}

// TierName maps a rating to its display band. Informational only; pairing
// and rating math never read it.
func TierName(rating int) string {
	switch {
	case rating < 800:
		return "Novice"
	case rating < 1000:
		return "Apprentice"
	case rating < 1200:
		return "Scholar"
	case rating < 1400:
		return "Expert"
	case rating < 1700:
		return "Master"
	default:
		return "Legend"
	}
}

// Tier returns the display band for the record's current rating.
func (u *UserRating) Tier() string {
	return TierName(u.Rating)
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
