package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wiki-battle-system/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BattleService drives a match from creation through completion or forfeit.
// Resolution is a compare-and-swap on the match status so that it happens
// exactly once even when both participants report in the same instant.
type BattleService struct {
	DB      *gorm.DB
	Ratings *RatingService
	Bot     *BotOpponent
	logger  *zap.Logger
}

func NewBattleService(db *gorm.DB, ratings *RatingService, bot *BotOpponent, logger *zap.Logger) *BattleService {
	return &BattleService{DB: db, Ratings: ratings, Bot: bot, logger: logger}
}

// Get loads a match by id.
func (s *BattleService) Get(matchID string) (*models.BattleMatch, error) {
	var match models.BattleMatch
	if err := s.DB.First(&match, "id = ?", matchID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("match %s: %w", matchID, ErrNotFound)
		}
		return nil, err
	}
	return &match, nil
}

// CreateBotMatch starts an instant race against a simulated opponent. The
// bot slot carries only its difficulty and nominal rating; its performance is
// produced when the human reports completion.
func (s *BattleService) CreateBotMatch(userID string, race models.Race, botDifficulty string, ranked bool) (*models.BattleMatch, error) {
	if _, ok := botProfiles[botDifficulty]; !ok {
		return nil, fmt.Errorf("unknown bot difficulty %q: %w", botDifficulty, ErrInvalid)
	}
	rec, err := s.Ratings.EnsureRecord(nil, userID)
	if err != nil {
		return nil, err
	}

	match := &models.BattleMatch{
		ID:   uuid.NewString(),
		Kind: models.MatchVsBot,
		Race: race,
		P1: models.Participant{
			UserID:       userID,
			Rating:       rec.Rating,
			CurrentTopic: race.StartTopic,
		},
		P2: models.Participant{
			BotDifficulty: botDifficulty,
			Rating:        BotRating(botDifficulty),
		},
		Ranked:    ranked,
		Status:    models.MatchInProgress,
		StartedAt: time.Now(),
	}
	if err := s.DB.Create(match).Error; err != nil {
		return nil, err
	}

	s.logger.Info("bot match created",
		zap.String("match_id", match.ID),
		zap.String("user_id", userID),
		zap.String("bot_difficulty", botDifficulty),
		zap.Bool("ranked", ranked),
	)
	return match, nil
}

// CreatePvPMatch starts a race between two humans. Called by the queue on a
// successful pair and by a lobby on start.
func (s *BattleService) CreatePvPMatch(user1 string, rating1 int, user2 string, rating2 int, race models.Race, ranked bool) (*models.BattleMatch, error) {
	match := &models.BattleMatch{
		ID:   uuid.NewString(),
		Kind: models.MatchPvP,
		Race: race,
		P1: models.Participant{
			UserID:       user1,
			Rating:       rating1,
			CurrentTopic: race.StartTopic,
		},
		P2: models.Participant{
			UserID:       user2,
			Rating:       rating2,
			CurrentTopic: race.StartTopic,
		},
		Ranked:    ranked,
		Status:    models.MatchInProgress,
		StartedAt: time.Now(),
	}
	if err := s.DB.Create(match).Error; err != nil {
		return nil, err
	}
	return match, nil
}

func slotPrefix(slot int) string {
	if slot == 1 {
		return "p1_"
	}
	return "p2_"
}

// UpdateProgress records a participant's live position. Only the caller's
// slot is touched, and only while the match is in progress; updates against a
// completed match are silently ignored.
func (s *BattleService) UpdateProgress(matchID, userID, currentTopic string, clicks int, elapsedSec float64) error {
	match, err := s.Get(matchID)
	if err != nil {
		return err
	}
	if match.Status == models.MatchCompleted {
		return nil
	}
	slot := match.SlotOf(userID)
	if slot == 0 {
		return fmt.Errorf("user %s is not a participant of match %s: %w", userID, matchID, ErrForbidden)
	}

	p := slotPrefix(slot)
	now := time.Now()
	return s.DB.Model(&models.BattleMatch{}).
		Where("id = ? AND status = ?", matchID, models.MatchInProgress).
		Updates(map[string]interface{}{
			p + "current_topic":  currentTopic,
			p + "clicks":         clicks,
			p + "elapsed_sec":    elapsedSec,
			p + "last_update_at": now,
		}).Error
}

// CompletionResult is the outcome of a completion report. Waiting means the
// PvP opponent has not finished yet and the caller should keep polling.
type CompletionResult struct {
	Waiting bool                `json:"waiting"`
	Match   *models.BattleMatch `json:"match,omitempty"`
	// Caller's rating record after resolution (nil while waiting, for casual
	// completions it is returned unchanged in rating).
	Caller *models.UserRating `json:"caller_rating,omitempty"`
}

// ReportCompletion records a participant's final run. For a bot match the
// simulated opponent races synchronously and the match resolves immediately.
// For PvP the first reporter gets a waiting ack; the call that observes both
// completions resolves the match, exactly once.
func (s *BattleService) ReportCompletion(ctx context.Context, matchID, userID string, elapsedSec float64, clicks int, path []string) (*CompletionResult, error) {
	match, err := s.Get(matchID)
	if err != nil {
		return nil, err
	}
	slot := match.SlotOf(userID)
	if slot == 0 {
		return nil, fmt.Errorf("user %s is not a participant of match %s: %w", userID, matchID, ErrForbidden)
	}
	if match.Status == models.MatchCompleted {
		return s.finalResult(match, userID)
	}

	if err := s.recordCompletion(matchID, slot, clicks, elapsedSec, path); err != nil {
		return nil, err
	}

	if match.Kind == models.MatchVsBot {
		bot := s.Bot.Race(ctx, match.Race.StartTopic, match.Race.EndTopic, match.P2.BotDifficulty)
		if err := s.recordCompletion(matchID, 2, bot.Clicks, bot.ElapsedSec, bot.Path); err != nil {
			return nil, err
		}
	}

	match, err = s.Get(matchID)
	if err != nil {
		return nil, err
	}
	if match.Status == models.MatchCompleted {
		return s.finalResult(match, userID)
	}
	if match.P1.CompletedAt == nil || match.P2.CompletedAt == nil {
		return &CompletionResult{Waiting: true, Match: match}, nil
	}

	match, err = s.resolve(match)
	if err != nil {
		return nil, err
	}
	return s.finalResult(match, userID)
}

// recordCompletion writes one slot's final stats. The completed-at guard
// makes repeated reports no-ops instead of overwrites.
func (s *BattleService) recordCompletion(matchID string, slot int, clicks int, elapsedSec float64, path []string) error {
	p := slotPrefix(slot)
	now := time.Now()

	pathJSON := ""
	if len(path) > 0 {
		raw, _ := json.Marshal(path)
		pathJSON = string(raw)
	}

	updates := map[string]interface{}{
		p + "clicks":         clicks,
		p + "elapsed_sec":    elapsedSec,
		p + "last_update_at": now,
		p + "completed_at":   now,
	}
	if pathJSON != "" {
		updates[p+"path_json"] = pathJSON
		updates[p+"current_topic"] = path[len(path)-1]
	}

	return s.DB.Model(&models.BattleMatch{}).
		Where("id = ? AND status = ? AND "+p+"completed_at IS NULL", matchID, models.MatchInProgress).
		Updates(updates).Error
}

// decideWinner applies the tie-break rule: fewer clicks wins, then less
// elapsed time, else a draw. Returns the winning slot or 0 with draw=true.
func decideWinner(clicks1 int, elapsed1 float64, clicks2 int, elapsed2 float64) (int, bool) {
	if clicks1 != clicks2 {
		if clicks1 < clicks2 {
			return 1, false
		}
		return 2, false
	}
	if elapsed1 != elapsed2 {
		if elapsed1 < elapsed2 {
			return 1, false
		}
		return 2, false
	}
	return 0, true
}

// resolve finishes a match whose two slots both carry final stats. The status
// flip is conditional on the prior status, so of two racing resolvers only
// one applies outcome and ratings; the loser just reloads.
func (s *BattleService) resolve(match *models.BattleMatch) (*models.BattleMatch, error) {
	winnerSlot, draw := decideWinner(
		match.P1.Clicks, match.P1.ElapsedSec,
		match.P2.Clicks, match.P2.ElapsedSec,
	)

	outcome1, outcome2 := outcomesFor(winnerSlot, draw)
	delta1, delta2 := 0, 0
	if match.Ranked {
		if !match.P1.IsBot() {
			delta1 = RatingDelta(match.P1.Rating, match.P2.Rating, outcome1)
		}
		if !match.P2.IsBot() {
			delta2 = RatingDelta(match.P2.Rating, match.P1.Rating, outcome2)
		}
	}

	claimed := false
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&models.BattleMatch{}).
			Where("id = ? AND status = ?", match.ID, models.MatchInProgress).
			Updates(map[string]interface{}{
				"status":       models.MatchCompleted,
				"winner_slot":  winnerSlot,
				"draw":         draw,
				"p1_delta":     delta1,
				"p2_delta":     delta2,
				"completed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // another reporter resolved first
		}
		claimed = true

		if !match.P1.IsBot() {
			if _, err := s.Ratings.ApplyResult(tx, match.P1.UserID, outcome1, delta1); err != nil {
				return err
			}
		}
		if !match.P2.IsBot() {
			if _, err := s.Ratings.ApplyResult(tx, match.P2.UserID, outcome2, delta2); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if claimed {
		s.logger.Info("match resolved",
			zap.String("match_id", match.ID),
			zap.Int("winner_slot", winnerSlot),
			zap.Bool("draw", draw),
			zap.Int("p1_delta", delta1),
			zap.Int("p2_delta", delta2),
		)
	}
	return s.Get(match.ID)
}

func outcomesFor(winnerSlot int, draw bool) (Outcome, Outcome) {
	if draw {
		return OutcomeDraw, OutcomeDraw
	}
	if winnerSlot == 1 {
		return OutcomeWin, OutcomeLoss
	}
	return OutcomeLoss, OutcomeWin
}

// Forfeit resolves a match immediately with the non-forfeiting side as the
// winner, regardless of progress. Ranked forfeits apply the flat asymmetric
// adjustment instead of the Elo formula.
func (s *BattleService) Forfeit(matchID, userID string) (*models.BattleMatch, error) {
	match, err := s.Get(matchID)
	if err != nil {
		return nil, err
	}
	slot := match.SlotOf(userID)
	if slot == 0 {
		return nil, fmt.Errorf("user %s is not a participant of match %s: %w", userID, matchID, ErrForbidden)
	}
	if match.Status == models.MatchCompleted {
		return nil, fmt.Errorf("match %s already resolved: %w", matchID, ErrConflict)
	}

	winnerSlot := 3 - slot
	delta1, delta2 := 0, 0
	if match.Ranked {
		forfeiterDelta, winnerDelta := -ForfeitPenalty, ForfeitReward
		if slot == 1 {
			delta1, delta2 = forfeiterDelta, winnerDelta
		} else {
			delta1, delta2 = winnerDelta, forfeiterDelta
		}
		if match.P1.IsBot() {
			delta1 = 0
		}
		if match.P2.IsBot() {
			delta2 = 0
		}
	}

	claimed := false
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&models.BattleMatch{}).
			Where("id = ? AND status = ?", matchID, models.MatchInProgress).
			Updates(map[string]interface{}{
				"status":       models.MatchCompleted,
				"winner_slot":  winnerSlot,
				"draw":         false,
				"p1_delta":     delta1,
				"p2_delta":     delta2,
				"completed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("match %s already resolved: %w", matchID, ErrConflict)
		}
		claimed = true

		forfeiter := match.Slot(slot)
		winner := match.Opponent(slot)
		if !forfeiter.IsBot() {
			d := delta1
			if slot == 2 {
				d = delta2
			}
			if _, err := s.Ratings.ApplyResult(tx, forfeiter.UserID, OutcomeLoss, d); err != nil {
				return err
			}
		}
		if !winner.IsBot() {
			d := delta2
			if winnerSlot == 1 {
				d = delta1
			}
			if _, err := s.Ratings.ApplyResult(tx, winner.UserID, OutcomeWin, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if claimed {
		s.logger.Info("match forfeited",
			zap.String("match_id", matchID),
			zap.String("forfeiter", userID),
			zap.Int("winner_slot", winnerSlot),
		)
	}
	return s.Get(matchID)
}

// finalResult builds the completion response for a resolved match.
func (s *BattleService) finalResult(match *models.BattleMatch, userID string) (*CompletionResult, error) {
	result := &CompletionResult{Match: match}
	if slot := match.SlotOf(userID); slot != 0 && !match.Slot(slot).IsBot() {
		rec, err := s.Ratings.Get(userID)
		if err == nil {
			result.Caller = rec
		}
	}
	return result, nil
}
