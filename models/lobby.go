package models

import "time"

// Lobby lifecycle. "waiting" is the only joinable state; "in_progress" means
// the lobby's BattleMatch exists. "expired" is set by the reaper.
const (
	LobbyWaiting    = "waiting"
	LobbyInProgress = "in_progress"
	LobbyCancelled  = "cancelled"
	LobbyExpired    = "expired"

	LobbyPublic  = "public"
	LobbyPrivate = "private"
)

// Lobby is a pre-match room joined by code (private) or from the public list.
type Lobby struct {
	ID   string `gorm:"primaryKey;type:uuid" json:"id"`
	Code string `gorm:"uniqueIndex;type:varchar(8);not null" json:"code"`

	Race Race `gorm:"embedded;embeddedPrefix:race_" json:"race"`

	Ranked     bool   `json:"ranked"`
	Visibility string `gorm:"type:varchar(8);index;not null" json:"visibility"`
	Capacity   int    `json:"capacity"` // 2–10
	HostID     string `gorm:"index;not null" json:"host_id"`
	Status     string `gorm:"type:varchar(16);index;not null" json:"status"`

	MatchID *string `gorm:"type:uuid" json:"match_id,omitempty"` // set on start

	Participants []LobbyParticipant `gorm:"foreignKey:LobbyID" json:"participants"`

	Timestamps
}

// LobbyParticipant is one member of a lobby. The host is auto-ready.
type LobbyParticipant struct {
	ID      string `gorm:"primaryKey;type:uuid" json:"id"`
	LobbyID string `gorm:"index;type:uuid;not null" json:"lobby_id"`
	UserID  string `gorm:"index;not null" json:"user_id"`

	IsHost bool `json:"is_host"`
	Ready  bool `json:"ready"`

	JoinedAt time.Time `json:"joined_at" gorm:"autoCreateTime"`
}
