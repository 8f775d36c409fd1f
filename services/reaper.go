package services

import (
	"context"
	"os"
	"strconv"
	"time"

	"wiki-battle-system/models"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func envMinutes(key string, def int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Minute
		}
	}
	return time.Duration(def) * time.Minute
}

// StartReaper runs the minutely TTL job: stale searching queue entries and
// stale waiting lobbies flip to "expired". Expiry is a plain status flip, so
// a poll racing the reaper still sees a consistent entry.
func StartReaper(db *gorm.DB, index QueueIndex, logger *zap.Logger) (gocron.Scheduler, error) {
	queueTTL := envMinutes("QUEUE_TTL_MINUTES", 30)
	lobbyTTL := envMinutes("LOBBY_TTL_MINUTES", 60)

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			reapQueue(db, index, queueTTL, logger)
			reapLobbies(db, lobbyTTL, logger)
		}),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	logger.Info("reaper started",
		zap.Duration("queue_ttl", queueTTL),
		zap.Duration("lobby_ttl", lobbyTTL),
	)
	return sched, nil
}

func reapQueue(db *gorm.DB, index QueueIndex, ttl time.Duration, logger *zap.Logger) {
	cutoff := time.Now().Add(-ttl)

	var stale []models.QueueEntry
	err := db.Where("status = ? AND created_at < ?", models.QueueSearching, cutoff).
		Find(&stale).Error
	if err != nil {
		logger.Error("reaper queue scan failed", zap.Error(err))
		return
	}

	for _, entry := range stale {
		res := db.Model(&models.QueueEntry{}).
			Where("id = ? AND status = ?", entry.ID, models.QueueSearching).
			Update("status", models.QueueExpired)
		if res.Error != nil {
			logger.Error("reaper queue expire failed", zap.String("entry_id", entry.ID), zap.Error(res.Error))
			continue
		}
		if res.RowsAffected > 0 {
			if err := index.Remove(context.Background(), entry.UserID); err != nil {
				logger.Warn("queue index remove failed", zap.String("user_id", entry.UserID), zap.Error(err))
			}
			logger.Info("queue entry expired", zap.String("user_id", entry.UserID))
		}
	}
}

func reapLobbies(db *gorm.DB, ttl time.Duration, logger *zap.Logger) {
	cutoff := time.Now().Add(-ttl)

	res := db.Model(&models.Lobby{}).
		Where("status = ? AND created_at < ?", models.LobbyWaiting, cutoff).
		Update("status", models.LobbyExpired)
	if res.Error != nil {
		logger.Error("reaper lobby expire failed", zap.Error(res.Error))
		return
	}
	if res.RowsAffected > 0 {
		logger.Info("lobbies expired", zap.Int64("count", res.RowsAffected))
	}
}
