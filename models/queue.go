package models

// Queue entry lifecycle. "searching" is the only active state; the flip to
// "matched" is a conditional update so that one entry can be claimed at most once.
const (
	QueueSearching = "searching"
	QueueMatched   = "matched"
	QueueCancelled = "cancelled"
	QueueExpired   = "expired" // set by the reaper, never by a user action
)

// QueueEntry is one user waiting for a human opponent.
// A user has at most one entry in "searching" at any time.
type QueueEntry struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"index;not null" json:"user_id"`

	Rating         int    `json:"rating"`                                   // snapshot at enqueue time
	DifficultyHint string `json:"difficulty_hint,omitempty"`                // informational only
	Ranked         bool   `json:"ranked"`
	Status         string `gorm:"type:varchar(16);index;not null" json:"status"`

	MatchID *string `gorm:"type:uuid" json:"match_id,omitempty"` // set when paired

	Timestamps
}
