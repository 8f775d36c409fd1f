package services

import (
	"fmt"
	"math"
	"time"

	"wiki-battle-system/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Elo parameters. K is fixed; forfeits bypass the formula and use flat
// adjustments (forfeiter loses more than the opponent gains).
const (
	RatingK        = 32
	DefaultRating  = 1000
	ForfeitPenalty = 25
	ForfeitReward  = 15
)

// Outcome is the pairwise result from one participant's point of view.
type Outcome float64

const (
	OutcomeWin  Outcome = 1
	OutcomeDraw Outcome = 0.5
	OutcomeLoss Outcome = 0
)

// Nominal bot ratings per difficulty. Used only as the opponent-rating input
// to the Elo formula; never persisted or updated.
var botNominalRating = map[string]int{
	"easy":   500,
	"medium": 1000,
	"hard":   1500,
	"expert": 2000,
	"master": 2500,
}

// BotRating returns the nominal rating for a bot difficulty, defaulting to
// the medium tier for unknown labels.
func BotRating(difficulty string) int {
	if r, ok := botNominalRating[difficulty]; ok {
		return r
	}
	return botNominalRating["medium"]
}

// ExpectedScore is the Elo win expectancy of a player rated `rating` against
// an opponent rated `opponent`.
func ExpectedScore(rating, opponent int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(opponent-rating)/400.0))
}

// RatingDelta computes the signed rating change for one side of a pairwise
// outcome. The two sides are computed independently; after rounding they need
// not sum to zero.
func RatingDelta(rating, opponent int, outcome Outcome) int {
	return int(math.Round(RatingK * (float64(outcome) - ExpectedScore(rating, opponent))))
}

// RatingService owns the UserRating records.
type RatingService struct {
	DB     *gorm.DB
	logger *zap.Logger
}

func NewRatingService(db *gorm.DB, logger *zap.Logger) *RatingService {
	return &RatingService{DB: db, logger: logger}
}

// EnsureRecord fetches the rating record for a user, creating a default one
// on first contact. Idempotent.
func (s *RatingService) EnsureRecord(tx *gorm.DB, userID string) (*models.UserRating, error) {
	if tx == nil {
		tx = s.DB
	}
	var rec models.UserRating
	err := tx.Where("user_id = ?", userID).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		rec = models.UserRating{
			ID:     uuid.NewString(),
			UserID: userID,
			Rating: DefaultRating,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return nil, err
		}
		return &rec, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Get returns the rating record for a user.
func (s *RatingService) Get(userID string) (*models.UserRating, error) {
	var rec models.UserRating
	if err := s.DB.Where("user_id = ?", userID).First(&rec).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("rating record for %s: %w", userID, ErrNotFound)
		}
		return nil, err
	}
	return &rec, nil
}

// ApplyResult updates one user's record after a resolved match: rating by the
// pre-computed delta (zero for casual matches), battle counters, streaks and
// the last-battle timestamp. Runs inside the caller's resolution transaction
// so the record is written exactly once per match per participant.
func (s *RatingService) ApplyResult(tx *gorm.DB, userID string, outcome Outcome, delta int) (*models.UserRating, error) {
	rec, err := s.EnsureRecord(tx, userID)
	if err != nil {
		return nil, err
	}

	rec.Rating += delta
	rec.TotalBattles++
	switch outcome {
	case OutcomeWin:
		rec.Wins++
		rec.CurrentStreak++
		if rec.CurrentStreak > rec.BestStreak {
			rec.BestStreak = rec.CurrentStreak
		}
	case OutcomeDraw:
		rec.Draws++
		// A draw neither extends nor breaks a streak.
	default:
		rec.Losses++
		rec.CurrentStreak = 0
	}
	now := time.Now()
	rec.LastBattleAt = &now

	if err := tx.Save(rec).Error; err != nil {
		return nil, err
	}

	s.logger.Info("rating updated",
		zap.String("user_id", userID),
		zap.Int("delta", delta),
		zap.Int("rating", rec.Rating),
		zap.String("tier", rec.Tier()),
	)
	return rec, nil
}
