// workers/replay_archive_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wiki-battle-system/models"
	"wiki-battle-system/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// replayDocument is what gets archived per completed match: the race and both
// participants' full click paths.
type replayDocument struct {
	MatchID    string      `json:"match_id"`
	Kind       string      `json:"kind"`
	Race       models.Race `json:"race"`
	WinnerSlot int         `json:"winner_slot"`
	Draw       bool        `json:"draw"`
	Player1    replaySlot  `json:"player1"`
	Player2    replaySlot  `json:"player2"`
	ResolvedAt *time.Time  `json:"resolved_at,omitempty"`
}

type replaySlot struct {
	UserID        string   `json:"user_id,omitempty"`
	BotDifficulty string   `json:"bot_difficulty,omitempty"`
	Clicks        int      `json:"clicks"`
	ElapsedSec    float64  `json:"elapsed_sec"`
	Path          []string `json:"path,omitempty"`
}

// ReplayArchiveWorker uploads completed-race replays to the R2 bucket so the
// hot match rows can stay slim. It only runs when R2 is configured.
type ReplayArchiveWorker struct {
	db       *gorm.DB
	interval time.Duration
	logger   *zap.Logger
}

func NewReplayArchiveWorker(db *gorm.DB, logger *zap.Logger) *ReplayArchiveWorker {
	return &ReplayArchiveWorker{
		db:       db,
		interval: 1 * time.Minute,
		logger:   logger,
	}
}

func (w *ReplayArchiveWorker) Start(ctx context.Context) {
	w.logger.Info("replay archive worker started")
	go w.run(ctx)
}

func (w *ReplayArchiveWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.archiveBatch(ctx); err != nil {
				w.logger.Error("replay archive batch failed", zap.Error(err))
			}
		case <-ctx.Done():
			w.logger.Info("replay archive worker stopped")
			return
		}
	}
}

func (w *ReplayArchiveWorker) archiveBatch(ctx context.Context) error {
	var matches []models.BattleMatch
	err := w.db.Where("status = ? AND replay_key IS NULL", models.MatchCompleted).
		Order("completed_at ASC").
		Limit(20).
		Find(&matches).Error
	if err != nil {
		return fmt.Errorf("failed to load unarchived matches: %w", err)
	}

	for i := range matches {
		match := &matches[i]
		key := fmt.Sprintf("replays/%s.json", match.ID)

		doc := replayDocument{
			MatchID:    match.ID,
			Kind:       match.Kind,
			Race:       match.Race,
			WinnerSlot: match.WinnerSlot,
			Draw:       match.Draw,
			Player1:    replaySlotFor(&match.P1),
			Player2:    replaySlotFor(&match.P2),
			ResolvedAt: match.CompletedAt,
		}
		body, err := json.Marshal(doc)
		if err != nil {
			return err
		}

		if err := utils.UploadReplay(ctx, key, body); err != nil {
			w.logger.Warn("replay upload failed, will retry",
				zap.String("match_id", match.ID),
				zap.Error(err),
			)
			continue
		}

		if err := w.db.Model(match).Update("replay_key", key).Error; err != nil {
			return fmt.Errorf("failed to mark match %s archived: %w", match.ID, err)
		}
		w.logger.Info("replay archived", zap.String("match_id", match.ID), zap.String("key", key))
	}
	return nil
}

func replaySlotFor(p *models.Participant) replaySlot {
	return replaySlot{
		UserID:        p.UserID,
		BotDifficulty: p.BotDifficulty,
		Clicks:        p.Clicks,
		ElapsedSec:    p.ElapsedSec,
		Path:          p.Path(),
	}
}
