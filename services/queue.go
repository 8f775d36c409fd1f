package services

import (
	"context"
	"math/rand"
	"time"

	"wiki-battle-system/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PairingWindow is the fixed rating distance inside which two searching users
// can be paired.
const PairingWindow = 100

// candidateLimit caps how many index hits one poll inspects.
const candidateLimit = 50

// QueueService is the matchmaking waiting list. Pairing is evaluated lazily
// on poll; the flip from "searching" to "matched" is a conditional update so
// two concurrent pollers can never both claim the same entry.
type QueueService struct {
	DB      *gorm.DB
	Index   QueueIndex
	Battles *BattleService
	logger  *zap.Logger
	rng     *rand.Rand
}

func NewQueueService(db *gorm.DB, index QueueIndex, battles *BattleService, rng *rand.Rand, logger *zap.Logger) *QueueService {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &QueueService{DB: db, Index: index, Battles: battles, rng: rng, logger: logger}
}

// QueueStatus is the poll result: not queued, still searching, or matched.
type QueueStatus struct {
	InQueue bool                `json:"in_queue"`
	Matched bool                `json:"matched"`
	WaitSec float64             `json:"wait_sec,omitempty"`
	Entry   *models.QueueEntry  `json:"entry,omitempty"`
	Match   *models.BattleMatch `json:"match,omitempty"`
}

// Join puts a user into the queue. Idempotent: a repeated join while already
// searching returns the existing entry unchanged.
func (s *QueueService) Join(ctx context.Context, userID, difficultyHint string, ranked bool) (*models.QueueEntry, error) {
	var existing models.QueueEntry
	err := s.DB.Where("user_id = ? AND status = ?", userID, models.QueueSearching).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	rec, err := s.Battles.Ratings.EnsureRecord(nil, userID)
	if err != nil {
		return nil, err
	}

	entry := models.QueueEntry{
		ID:             uuid.NewString(),
		UserID:         userID,
		Rating:         rec.Rating,
		DifficultyHint: difficultyHint,
		Ranked:         ranked,
		Status:         models.QueueSearching,
	}
	if err := s.DB.Create(&entry).Error; err != nil {
		return nil, err
	}
	if err := s.Index.Add(ctx, userID, rec.Rating); err != nil {
		s.logger.Warn("queue index add failed", zap.String("user_id", userID), zap.Error(err))
	}

	s.logger.Info("user joined queue",
		zap.String("user_id", userID),
		zap.Int("rating", rec.Rating),
		zap.Bool("ranked", ranked),
	)
	return &entry, nil
}

// Poll reports the caller's queue state and, while searching, runs one
// pairing attempt.
func (s *QueueService) Poll(ctx context.Context, userID string) (*QueueStatus, error) {
	var entry models.QueueEntry
	err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return &QueueStatus{}, nil
	}
	if err != nil {
		return nil, err
	}

	switch entry.Status {
	case models.QueueMatched:
		if entry.MatchID == nil {
			// Claimed by an in-flight pairing; the match link lands right
			// after. Keep reporting "searching" rather than dequeued.
			return &QueueStatus{
				InQueue: true,
				WaitSec: time.Since(entry.CreatedAt).Seconds(),
				Entry:   &entry,
			}, nil
		}
		match, err := s.Battles.Get(*entry.MatchID)
		if err != nil {
			return nil, err
		}
		return &QueueStatus{InQueue: true, Matched: true, Entry: &entry, Match: match}, nil
	case models.QueueSearching:
		// fall through to the pairing attempt below
	default:
		// cancelled or expired: no active entry
		return &QueueStatus{}, nil
	}

	match, err := s.tryPair(ctx, &entry)
	if err != nil {
		return nil, err
	}
	if match != nil {
		return &QueueStatus{InQueue: true, Matched: true, Entry: &entry, Match: match}, nil
	}

	return &QueueStatus{
		InQueue: true,
		WaitSec: time.Since(entry.CreatedAt).Seconds(),
		Entry:   &entry,
	}, nil
}

// Cancel flips the caller's searching entry to cancelled. No-op when the user
// has no active entry; cancellation has no side effects to undo.
func (s *QueueService) Cancel(ctx context.Context, userID string) error {
	res := s.DB.Model(&models.QueueEntry{}).
		Where("user_id = ? AND status = ?", userID, models.QueueSearching).
		Update("status", models.QueueCancelled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		if err := s.Index.Remove(ctx, userID); err != nil {
			s.logger.Warn("queue index remove failed", zap.String("user_id", userID), zap.Error(err))
		}
		s.logger.Info("user left queue", zap.String("user_id", userID))
	}
	return nil
}

// tryPair scans compatible searching entries (rating within the pairing
// window, oldest enqueue first) and claims the first one that is still free.
// The caller's own entry is claimed up front; if no partner is found it is
// put back to searching.
func (s *QueueService) tryPair(ctx context.Context, entry *models.QueueEntry) (*models.BattleMatch, error) {
	candidates, err := s.searchCandidates(ctx, entry)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Claim self first: first writer wins, a concurrent poller that claimed
	// us has already built the match and the next poll will observe it.
	if !s.claim(entry.ID) {
		var fresh models.QueueEntry
		if err := s.DB.First(&fresh, "id = ?", entry.ID).Error; err != nil {
			return nil, err
		}
		*entry = fresh
		if entry.Status == models.QueueMatched && entry.MatchID != nil {
			return s.Battles.Get(*entry.MatchID)
		}
		return nil, nil
	}

	for i := range candidates {
		other := &candidates[i]
		if !s.claim(other.ID) {
			continue // lost the race for this entry, re-search
		}

		match, err := s.buildMatch(ctx, entry, other)
		if err != nil {
			// Put both entries back so neither user is stranded.
			s.release(entry.ID)
			s.release(other.ID)
			return nil, err
		}
		return match, nil
	}

	s.release(entry.ID)
	return nil, nil
}

// searchCandidates loads searching entries within the pairing window, oldest
// first. The index narrows the scan when it has hits; a cold index falls back
// to a direct table scan so pairing survives restarts.
func (s *QueueService) searchCandidates(ctx context.Context, entry *models.QueueEntry) ([]models.QueueEntry, error) {
	q := s.DB.Where("status = ? AND user_id <> ?", models.QueueSearching, entry.UserID).
		Where("rating BETWEEN ? AND ?", entry.Rating-PairingWindow, entry.Rating+PairingWindow)

	ids, err := s.Index.InRange(ctx, entry.Rating-PairingWindow, entry.Rating+PairingWindow, candidateLimit)
	if err != nil {
		s.logger.Warn("queue index range failed, scanning table", zap.Error(err))
	} else if len(ids) > 0 {
		q = q.Where("user_id IN ?", ids)
	}

	var candidates []models.QueueEntry
	if err := q.Order("created_at ASC").Limit(candidateLimit).Find(&candidates).Error; err != nil {
		return nil, err
	}
	return candidates, nil
}

// claim atomically flips one entry from searching to matched.
func (s *QueueService) claim(entryID string) bool {
	res := s.DB.Model(&models.QueueEntry{}).
		Where("id = ? AND status = ?", entryID, models.QueueSearching).
		Update("status", models.QueueMatched)
	return res.Error == nil && res.RowsAffected == 1
}

// release reverts a claimed entry that never got a match.
func (s *QueueService) release(entryID string) {
	s.DB.Model(&models.QueueEntry{}).
		Where("id = ? AND status = ? AND match_id IS NULL", entryID, models.QueueMatched).
		Update("status", models.QueueSearching)
}

// buildMatch creates the BattleMatch for two claimed entries and links it to
// both. The race tier comes from the average of the two rating snapshots.
func (s *QueueService) buildMatch(ctx context.Context, a, b *models.QueueEntry) (*models.BattleMatch, error) {
	race := RaceForRating((a.Rating+b.Rating)/2, s.rng)
	ranked := a.Ranked && b.Ranked

	match, err := s.Battles.CreatePvPMatch(a.UserID, a.Rating, b.UserID, b.Rating, race, ranked)
	if err != nil {
		return nil, err
	}

	err = s.DB.Model(&models.QueueEntry{}).
		Where("id IN ?", []string{a.ID, b.ID}).
		Update("match_id", match.ID).Error
	if err != nil {
		return nil, err
	}
	a.Status = models.QueueMatched
	a.MatchID = &match.ID

	for _, uid := range []string{a.UserID, b.UserID} {
		if err := s.Index.Remove(ctx, uid); err != nil {
			s.logger.Warn("queue index remove failed", zap.String("user_id", uid), zap.Error(err))
		}
	}

	s.logger.Info("queue pair formed",
		zap.String("match_id", match.ID),
		zap.String("user_a", a.UserID),
		zap.String("user_b", b.UserID),
		zap.String("tier", TierForAverage((a.Rating+b.Rating)/2)),
		zap.Bool("ranked", ranked),
	)
	return match, nil
}
