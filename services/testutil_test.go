package services

import (
	"testing"

	"wiki-battle-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A pooled second connection would see a different :memory: database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.UserRating{},
		&models.QueueEntry{},
		&models.BattleMatch{},
		&models.Lobby{},
		&models.LobbyParticipant{},
	))
	return db
}

// seedRating creates a user rating record at a specific rating.
func seedRating(t *testing.T, db *gorm.DB, userID string, rating int) {
	t.Helper()
	require.NoError(t, db.Create(&models.UserRating{
		ID:     uuid.NewString(),
		UserID: userID,
		Rating: rating,
	}).Error)
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
