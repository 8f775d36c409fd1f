package models

import (
	"encoding/json"
	"time"
)

// Match kinds and lifecycle. A match is created directly in "in_progress"
// (queuing happens before the match object exists) and "completed" is terminal.
const (
	MatchVsBot = "vs_bot"
	MatchPvP   = "pvp"

	MatchInProgress = "in_progress"
	MatchCompleted  = "completed"
)

// Race defines what the participants are racing: from one topic to another
// by following article links. OptimalClicks is the designer's benchmark and
// plays no part in winner determination.
type Race struct {
	StartTopic    string `json:"start_topic"`
	EndTopic      string `json:"end_topic"`
	Difficulty    string `json:"difficulty"`
	OptimalClicks int    `json:"optimal_clicks"`
}

// Participant is one slot of a BattleMatch. Either UserID or BotDifficulty
// is set, never both. Progress fields are mutated only by that slot's racer.
type Participant struct {
	UserID        string `json:"user_id,omitempty"`
	BotDifficulty string `json:"bot_difficulty,omitempty"`
	Rating        int    `json:"rating"` // snapshot at match creation

	CurrentTopic string  `json:"current_topic,omitempty"`
	Clicks       int     `json:"clicks"`
	ElapsedSec   float64 `json:"elapsed_sec"`
	PathJSON     string  `json:"-"` // full topic sequence, JSON array

	LastUpdateAt *time.Time `json:"last_update_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// IsBot reports whether this slot is the simulated opponent.
func (p *Participant) IsBot() bool {
	return p.BotDifficulty != ""
}

// Path decodes the stored click path. Returns nil when no path was recorded.
func (p *Participant) Path() []string {
	if p.PathJSON == "" {
		return nil
	}
	var path []string
	if err := json.Unmarshal([]byte(p.PathJSON), &path); err != nil {
		return nil
	}
	return path
}

// SetPath stores the click path as JSON.
func (p *Participant) SetPath(path []string) {
	if len(path) == 0 {
		p.PathJSON = ""
		return
	}
	raw, _ := json.Marshal(path)
	p.PathJSON = string(raw)
}

// BattleMatch records a single race (user vs bot, or PvP).
// Winner, draw and delta fields are written exactly once, at resolution, and
// are immutable afterwards: deltas are non-null iff Status is "completed".
type BattleMatch struct {
	ID   string `gorm:"primaryKey;type:uuid" json:"id"`
	Kind string `gorm:"type:varchar(16);not null" json:"kind"`

	Race Race `gorm:"embedded;embeddedPrefix:race_" json:"race"`

	P1 Participant `gorm:"embedded;embeddedPrefix:p1_" json:"player1"`
	P2 Participant `gorm:"embedded;embeddedPrefix:p2_" json:"player2"`

	Ranked bool   `json:"ranked"`
	Status string `gorm:"type:varchar(16);index;not null" json:"status"`

	// Resolution outcome. WinnerSlot 1 or 2; 0 with Draw=true for a draw.
	WinnerSlot int  `json:"winner_slot"`
	Draw       bool `json:"draw"`
	P1Delta    *int `json:"p1_delta,omitempty"`
	P2Delta    *int `json:"p2_delta,omitempty"`

	// Downstream bookkeeping (stats event emission, replay archival).
	StatsNotifiedAt *time.Time `json:"-"`
	ReplayKey       *string    `json:"replay_key,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Timestamps
}

// SlotOf returns the slot number (1 or 2) for a user, or 0 if the user is
// not a participant of this match.
func (m *BattleMatch) SlotOf(userID string) int {
	if userID == "" {
		return 0
	}
	if m.P1.UserID == userID {
		return 1
	}
	if m.P2.UserID == userID {
		return 2
	}
	return 0
}

// Slot returns a pointer to the participant in the given slot.
func (m *BattleMatch) Slot(n int) *Participant {
	if n == 1 {
		return &m.P1
	}
	return &m.P2
}

// Opponent returns the other slot's participant.
func (m *BattleMatch) Opponent(n int) *Participant {
	if n == 1 {
		return &m.P2
	}
	return &m.P1
}
