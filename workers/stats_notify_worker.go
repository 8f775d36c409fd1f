// workers/stats_notify_worker.go
package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"wiki-battle-system/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// battleCompletedEvent is the payload consumed by the external
// stats/achievement service. The engine only emits; all XP, achievement and
// dashboard bookkeeping happens on the other side.
type battleCompletedEvent struct {
	MatchID    string     `json:"match_id"`
	Kind       string     `json:"kind"`
	Ranked     bool       `json:"ranked"`
	StartTopic string     `json:"start_topic"`
	EndTopic   string     `json:"end_topic"`
	WinnerSlot int        `json:"winner_slot"`
	Draw       bool       `json:"draw"`
	Player1    slotReport `json:"player1"`
	Player2    slotReport `json:"player2"`
	ResolvedAt time.Time  `json:"resolved_at"`
}

type slotReport struct {
	UserID        string  `json:"user_id,omitempty"`
	BotDifficulty string  `json:"bot_difficulty,omitempty"`
	Clicks        int     `json:"clicks"`
	ElapsedSec    float64 `json:"elapsed_sec"`
	RatingDelta   int     `json:"rating_delta"`
}

// StatsNotifyWorker polls for completed matches that have not yet been
// reported to the stats service and delivers them. Delivery is at-least-once:
// the notified marker is only set after a 2xx response.
type StatsNotifyWorker struct {
	db         *gorm.DB
	baseURL    string
	token      string
	interval   time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

func NewStatsNotifyWorker(db *gorm.DB, logger *zap.Logger) (*StatsNotifyWorker, error) {
	baseURL := os.Getenv("STATS_SERVICE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("STATS_SERVICE_URL is not set")
	}
	token := os.Getenv("BATTLE_SERVICE_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("BATTLE_SERVICE_TOKEN is required for stats notification")
	}

	return &StatsNotifyWorker{
		db:       db,
		baseURL:  baseURL,
		token:    token,
		interval: 30 * time.Second,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}, nil
}

func (w *StatsNotifyWorker) Start(ctx context.Context) {
	w.logger.Info("stats notify worker started", zap.String("target", w.baseURL))
	go w.run(ctx)
}

func (w *StatsNotifyWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.notifyBatch(ctx); err != nil {
				w.logger.Error("stats notify batch failed", zap.Error(err))
			}
		case <-ctx.Done():
			w.logger.Info("stats notify worker stopped")
			return
		}
	}
}

func (w *StatsNotifyWorker) notifyBatch(ctx context.Context) error {
	var matches []models.BattleMatch
	err := w.db.Where("status = ? AND stats_notified_at IS NULL", models.MatchCompleted).
		Order("completed_at ASC").
		Limit(50).
		Find(&matches).Error
	if err != nil {
		return fmt.Errorf("failed to load unnotified matches: %w", err)
	}

	for i := range matches {
		if err := w.notifyOne(ctx, &matches[i]); err != nil {
			w.logger.Warn("stats notify failed, will retry",
				zap.String("match_id", matches[i].ID),
				zap.Error(err),
			)
			continue
		}
		now := time.Now()
		if err := w.db.Model(&matches[i]).Update("stats_notified_at", now).Error; err != nil {
			return fmt.Errorf("failed to mark match %s notified: %w", matches[i].ID, err)
		}
	}
	return nil
}

func (w *StatsNotifyWorker) notifyOne(ctx context.Context, match *models.BattleMatch) error {
	event := battleCompletedEvent{
		MatchID:    match.ID,
		Kind:       match.Kind,
		Ranked:     match.Ranked,
		StartTopic: match.Race.StartTopic,
		EndTopic:   match.Race.EndTopic,
		WinnerSlot: match.WinnerSlot,
		Draw:       match.Draw,
		Player1:    slotReportFor(&match.P1, match.P1Delta),
		Player2:    slotReportFor(&match.P2, match.P2Delta),
	}
	if match.CompletedAt != nil {
		event.ResolvedAt = *match.CompletedAt
	}

	endpoint, err := url.JoinPath(w.baseURL, "/internal/battles/completed")
	if err != nil {
		return fmt.Errorf("invalid stats service URL: %w", err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", w.token)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call stats service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("stats service returned %d", resp.StatusCode)
	}
	return nil
}

func slotReportFor(p *models.Participant, delta *int) slotReport {
	report := slotReport{
		UserID:        p.UserID,
		BotDifficulty: p.BotDifficulty,
		Clicks:        p.Clicks,
		ElapsedSec:    p.ElapsedSec,
	}
	if delta != nil {
		report.RatingDelta = *delta
	}
	return report
}
