package services

import (
	"context"
	"testing"
	"time"

	"wiki-battle-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReapQueueExpiresStaleEntries(t *testing.T) {
	q := newQueueService(t)

	stale, err := q.Join(context.Background(), "sleeper", "", true)
	require.NoError(t, err)
	require.NoError(t, q.DB.Model(&models.QueueEntry{}).
		Where("id = ?", stale.ID).
		Update("created_at", time.Now().Add(-2*time.Hour)).Error)

	fresh, err := q.Join(context.Background(), "active", "", true)
	require.NoError(t, err)

	reapQueue(q.DB, q.Index, 30*time.Minute, testLogger())

	var got models.QueueEntry
	require.NoError(t, q.DB.First(&got, "id = ?", stale.ID).Error)
	assert.Equal(t, models.QueueExpired, got.Status)
	got = models.QueueEntry{}
	require.NoError(t, q.DB.First(&got, "id = ?", fresh.ID).Error)
	assert.Equal(t, models.QueueSearching, got.Status)

	// An expired entry reads as not queued.
	status, err := q.Poll(context.Background(), "sleeper")
	require.NoError(t, err)
	assert.False(t, status.InQueue)
}

func TestReapLobbiesExpiresStaleRooms(t *testing.T) {
	s := newLobbyService(t)

	stale, err := s.Create("host", lobbyRace(), models.LobbyPublic, false, 2)
	require.NoError(t, err)
	require.NoError(t, s.DB.Model(&models.Lobby{}).
		Where("id = ?", stale.ID).
		Update("created_at", time.Now().Add(-3*time.Hour)).Error)

	fresh, err := s.Create("other", lobbyRace(), models.LobbyPublic, false, 2)
	require.NoError(t, err)

	reapLobbies(s.DB, time.Hour, testLogger())

	got, err := s.Get(stale.Code)
	require.NoError(t, err)
	assert.Equal(t, models.LobbyExpired, got.Status)
	got, err = s.Get(fresh.Code)
	require.NoError(t, err)
	assert.Equal(t, models.LobbyWaiting, got.Status)

	// Expired rooms drop out of the public listing and reject joins.
	lobbies, err := s.PublicLobbies()
	require.NoError(t, err)
	require.Len(t, lobbies, 1)
	assert.Equal(t, fresh.Code, lobbies[0].Code)

	_, err = s.Join(stale.Code, "guest")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryQueueIndexRange(t *testing.T) {
	idx := NewMemoryQueueIndex()
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "low", 800))
	require.NoError(t, idx.Add(ctx, "mid", 1000))
	require.NoError(t, idx.Add(ctx, "high", 1300))

	ids, err := idx.InRange(ctx, 900, 1100, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"mid"}, ids)

	require.NoError(t, idx.Remove(ctx, "mid"))
	ids, err = idx.InRange(ctx, 900, 1100, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
