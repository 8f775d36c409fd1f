package services

import (
	"context"
	"math/rand"
	"testing"

	"wiki-battle-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBattleService(t *testing.T) *BattleService {
	t.Helper()
	db := newTestDB(t)
	ratings := NewRatingService(db, testLogger())
	graph := &fakeGraph{links: map[string][]string{"Dog": {"Wolf"}}}
	bot := NewBotOpponent(graph, rand.New(rand.NewSource(7)), testLogger())
	return NewBattleService(db, ratings, bot, testLogger())
}

func testRace() models.Race {
	return models.Race{StartTopic: "Dog", EndTopic: "Wolf", Difficulty: "medium", OptimalClicks: 3}
}

func TestDecideWinner(t *testing.T) {
	tests := []struct {
		name               string
		clicks1, clicks2   int
		elapsed1, elapsed2 float64
		wantSlot           int
		wantDraw           bool
	}{
		{"fewer clicks wins despite slower time", 3, 4, 40, 20, 1, false},
		{"fewer clicks wins slot two", 6, 2, 10, 90, 2, false},
		{"equal clicks falls to time", 4, 4, 31.5, 30.0, 2, false},
		{"equal clicks faster slot one", 4, 4, 12.0, 12.5, 1, false},
		{"identical stats draw", 5, 5, 60.0, 60.0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot, draw := decideWinner(tt.clicks1, tt.elapsed1, tt.clicks2, tt.elapsed2)
			assert.Equal(t, tt.wantSlot, slot)
			assert.Equal(t, tt.wantDraw, draw)
		})
	}
}

func TestPvPResolutionClicksBeforeTime(t *testing.T) {
	s := newBattleService(t)
	seedRating(t, s.DB, "alice", 1000)
	seedRating(t, s.DB, "bob", 1000)

	match, err := s.CreatePvPMatch("alice", 1000, "bob", 1000, testRace(), true)
	require.NoError(t, err)

	// Alice finishes in 3 clicks but 40s: first report just waits.
	res, err := s.ReportCompletion(context.Background(), match.ID, "alice", 40, 3, []string{"Dog", "Canidae", "Gray Wolf", "Wolf"})
	require.NoError(t, err)
	assert.True(t, res.Waiting)

	// Bob is faster on the clock but took an extra click.
	res, err = s.ReportCompletion(context.Background(), match.ID, "bob", 20, 4, nil)
	require.NoError(t, err)
	require.False(t, res.Waiting)
	require.NotNil(t, res.Match)

	assert.Equal(t, models.MatchCompleted, res.Match.Status)
	assert.Equal(t, 1, res.Match.WinnerSlot)
	assert.False(t, res.Match.Draw)
	require.NotNil(t, res.Match.P1Delta)
	require.NotNil(t, res.Match.P2Delta)
	assert.Equal(t, 16, *res.Match.P1Delta)
	assert.Equal(t, -16, *res.Match.P2Delta)

	alice, err := s.Ratings.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, 1016, alice.Rating)
	assert.Equal(t, 1, alice.Wins)
	assert.Equal(t, 1, alice.CurrentStreak)

	bob, err := s.Ratings.Get("bob")
	require.NoError(t, err)
	assert.Equal(t, 984, bob.Rating)
	assert.Equal(t, 1, bob.Losses)
	assert.Equal(t, 0, bob.CurrentStreak)
}

func TestPvPDrawHoldsRatings(t *testing.T) {
	s := newBattleService(t)
	seedRating(t, s.DB, "alice", 1100)
	seedRating(t, s.DB, "bob", 1100)

	match, err := s.CreatePvPMatch("alice", 1100, "bob", 1100, testRace(), true)
	require.NoError(t, err)

	_, err = s.ReportCompletion(context.Background(), match.ID, "alice", 30, 4, nil)
	require.NoError(t, err)
	res, err := s.ReportCompletion(context.Background(), match.ID, "bob", 30, 4, nil)
	require.NoError(t, err)

	require.False(t, res.Waiting)
	assert.True(t, res.Match.Draw)
	assert.Equal(t, 0, res.Match.WinnerSlot)
	assert.Equal(t, 0, *res.Match.P1Delta)

	alice, err := s.Ratings.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, 1100, alice.Rating)
	assert.Equal(t, 1, alice.Draws)
}

func TestCasualMatchLeavesRatingsAlone(t *testing.T) {
	s := newBattleService(t)
	seedRating(t, s.DB, "alice", 1300)
	seedRating(t, s.DB, "bob", 900)

	match, err := s.CreatePvPMatch("alice", 1300, "bob", 900, testRace(), false)
	require.NoError(t, err)

	_, err = s.ReportCompletion(context.Background(), match.ID, "alice", 25, 3, nil)
	require.NoError(t, err)
	res, err := s.ReportCompletion(context.Background(), match.ID, "bob", 50, 5, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Match.WinnerSlot)
	assert.Equal(t, 0, *res.Match.P1Delta)
	assert.Equal(t, 0, *res.Match.P2Delta)

	// Win/loss counters still move even without rating changes.
	alice, err := s.Ratings.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, 1300, alice.Rating)
	assert.Equal(t, 1, alice.Wins)
}

func TestBotMatchResolvesImmediately(t *testing.T) {
	s := newBattleService(t)

	match, err := s.CreateBotMatch("alice", testRace(), "easy", true)
	require.NoError(t, err)
	assert.Equal(t, models.MatchVsBot, match.Kind)
	assert.True(t, match.P2.IsBot())
	assert.Equal(t, 500, match.P2.Rating)

	res, err := s.ReportCompletion(context.Background(), match.ID, "alice", 18, 2, []string{"Dog", "Wolf"})
	require.NoError(t, err)
	require.False(t, res.Waiting)
	assert.Equal(t, models.MatchCompleted, res.Match.Status)
	require.NotNil(t, res.Match.P2.CompletedAt)
	assert.Greater(t, res.Match.P2.Clicks, 0)

	// The bot slot never gets a rating adjustment.
	assert.Equal(t, 0, *res.Match.P2Delta)
	require.NotNil(t, res.Caller)
	assert.Equal(t, 1000+*res.Match.P1Delta, res.Caller.Rating)
}

func TestCreateBotMatchRejectsUnknownDifficulty(t *testing.T) {
	s := newBattleService(t)
	_, err := s.CreateBotMatch("alice", testRace(), "impossible", false)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestReportCompletionRejectsOutsider(t *testing.T) {
	s := newBattleService(t)
	match, err := s.CreatePvPMatch("alice", 1000, "bob", 1000, testRace(), true)
	require.NoError(t, err)

	_, err = s.ReportCompletion(context.Background(), match.ID, "mallory", 10, 2, nil)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestReportCompletionUnknownMatch(t *testing.T) {
	s := newBattleService(t)
	_, err := s.ReportCompletion(context.Background(), "no-such-id", "alice", 10, 2, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepeatedReportIsIdempotent(t *testing.T) {
	s := newBattleService(t)
	seedRating(t, s.DB, "alice", 1000)
	seedRating(t, s.DB, "bob", 1000)

	match, err := s.CreatePvPMatch("alice", 1000, "bob", 1000, testRace(), true)
	require.NoError(t, err)

	_, err = s.ReportCompletion(context.Background(), match.ID, "alice", 30, 3, nil)
	require.NoError(t, err)
	_, err = s.ReportCompletion(context.Background(), match.ID, "bob", 50, 5, nil)
	require.NoError(t, err)

	// A late duplicate must not re-apply ratings or flip the result.
	res, err := s.ReportCompletion(context.Background(), match.ID, "alice", 5, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Match.WinnerSlot)
	assert.Equal(t, 3, res.Match.P1.Clicks)

	alice, err := s.Ratings.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, 1016, alice.Rating)
	assert.Equal(t, 1, alice.Wins)
}

func TestUpdateProgressIgnoredAfterCompletion(t *testing.T) {
	s := newBattleService(t)
	match, err := s.CreatePvPMatch("alice", 1000, "bob", 1000, testRace(), false)
	require.NoError(t, err)

	require.NoError(t, s.UpdateProgress(match.ID, "alice", "Canidae", 1, 8.2))
	got, err := s.Get(match.ID)
	require.NoError(t, err)
	assert.Equal(t, "Canidae", got.P1.CurrentTopic)
	assert.Equal(t, 1, got.P1.Clicks)

	_, err = s.ReportCompletion(context.Background(), match.ID, "alice", 20, 3, nil)
	require.NoError(t, err)
	_, err = s.ReportCompletion(context.Background(), match.ID, "bob", 25, 3, nil)
	require.NoError(t, err)

	require.NoError(t, s.UpdateProgress(match.ID, "alice", "Elsewhere", 9, 99))
	got, err = s.Get(match.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.P1.Clicks)
}

func TestUpdateProgressRejectsOutsider(t *testing.T) {
	s := newBattleService(t)
	match, err := s.CreatePvPMatch("alice", 1000, "bob", 1000, testRace(), false)
	require.NoError(t, err)
	err = s.UpdateProgress(match.ID, "mallory", "Canidae", 1, 5)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestForfeitAwardsOpponent(t *testing.T) {
	s := newBattleService(t)
	seedRating(t, s.DB, "alice", 1000)
	seedRating(t, s.DB, "bob", 1000)

	match, err := s.CreatePvPMatch("alice", 1000, "bob", 1000, testRace(), true)
	require.NoError(t, err)

	// Bob quits with zero progress; Alice wins regardless of clicks.
	got, err := s.Forfeit(match.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.MatchCompleted, got.Status)
	assert.Equal(t, 1, got.WinnerSlot)
	assert.Equal(t, 25, -*got.P2Delta)
	assert.Equal(t, 15, *got.P1Delta)

	alice, err := s.Ratings.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, 1015, alice.Rating)
	assert.Equal(t, 1, alice.Wins)

	bob, err := s.Ratings.Get("bob")
	require.NoError(t, err)
	assert.Equal(t, 975, bob.Rating)
	assert.Equal(t, 1, bob.Losses)
}

func TestForfeitCasualSkipsRatings(t *testing.T) {
	s := newBattleService(t)
	seedRating(t, s.DB, "alice", 1000)
	seedRating(t, s.DB, "bob", 1000)

	match, err := s.CreatePvPMatch("alice", 1000, "bob", 1000, testRace(), false)
	require.NoError(t, err)

	got, err := s.Forfeit(match.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, got.WinnerSlot)
	assert.Equal(t, 0, *got.P1Delta)
	assert.Equal(t, 0, *got.P2Delta)

	alice, err := s.Ratings.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, 1000, alice.Rating)
	assert.Equal(t, 1, alice.Losses)
}

func TestForfeitAfterResolutionConflicts(t *testing.T) {
	s := newBattleService(t)
	seedRating(t, s.DB, "alice", 1000)
	seedRating(t, s.DB, "bob", 1000)

	match, err := s.CreatePvPMatch("alice", 1000, "bob", 1000, testRace(), true)
	require.NoError(t, err)

	_, err = s.ReportCompletion(context.Background(), match.ID, "alice", 20, 3, nil)
	require.NoError(t, err)
	_, err = s.ReportCompletion(context.Background(), match.ID, "bob", 30, 4, nil)
	require.NoError(t, err)

	_, err = s.Forfeit(match.ID, "bob")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestForfeitBotMatchSkipsBotRating(t *testing.T) {
	s := newBattleService(t)
	match, err := s.CreateBotMatch("alice", testRace(), "hard", true)
	require.NoError(t, err)

	got, err := s.Forfeit(match.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, got.WinnerSlot)
	assert.Equal(t, -25, *got.P1Delta)
	assert.Equal(t, 0, *got.P2Delta)

	alice, err := s.Ratings.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, DefaultRating-25, alice.Rating)
}
