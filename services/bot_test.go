package services

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGraph serves a static link graph, optionally failing every lookup.
type fakeGraph struct {
	links map[string][]string
	err   error
}

func (g *fakeGraph) Links(_ context.Context, topic string) ([]string, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.links[topic], nil
}

func (g *fakeGraph) HasLink(_ context.Context, from, to string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	for _, l := range g.links[from] {
		if l == to {
			return true, nil
		}
	}
	return false, nil
}

func seededBot(graph LinkGraph, seed int64) *BotOpponent {
	return NewBotOpponent(graph, rand.New(rand.NewSource(seed)), testLogger())
}

func assertValidResult(t *testing.T, res BotResult, start, end string) {
	t.Helper()
	require.NotEmpty(t, res.Path)
	assert.Equal(t, start, res.Path[0])
	assert.Equal(t, end, res.Path[len(res.Path)-1])
	assert.Equal(t, len(res.Path)-1, res.Clicks)
	assert.Greater(t, res.Clicks, 0)
	assert.Greater(t, res.ElapsedSec, 0.0)
}

func TestBotRaceDirectLink(t *testing.T) {
	graph := &fakeGraph{links: map[string][]string{
		"Dog": {"Wolf", "Cat"},
	}}
	res := seededBot(graph, 1).Race(context.Background(), "Dog", "Wolf", "master")
	assertValidResult(t, res, "Dog", "Wolf")
}

func TestBotRaceOneHop(t *testing.T) {
	graph := &fakeGraph{links: map[string][]string{
		"Coffee":   {"Brazil", "Caffeine"},
		"Brazil":   {"South America"},
		"Caffeine": {"Stimulant"},
	}}
	res := seededBot(graph, 2).Race(context.Background(), "Coffee", "South America", "master")
	assertValidResult(t, res, "Coffee", "South America")
	assert.Contains(t, res.Path, "Brazil")
}

func TestBotRaceHeuristicFallback(t *testing.T) {
	// Nothing connects: the bot routes through generic hubs.
	graph := &fakeGraph{links: map[string][]string{
		"Cuneiform": {"Sumer"},
	}}
	res := seededBot(graph, 3).Race(context.Background(), "Cuneiform", "Machine Translation", "hard")
	assertValidResult(t, res, "Cuneiform", "Machine Translation")
	assert.GreaterOrEqual(t, len(res.Path), 4)
}

func TestBotRaceSurvivesLookupFailure(t *testing.T) {
	graph := &fakeGraph{err: errors.New("link graph down")}
	for _, difficulty := range []string{"easy", "medium", "hard", "expert", "master"} {
		res := seededBot(graph, 4).Race(context.Background(), "Dog", "Wolf", difficulty)
		assertValidResult(t, res, "Dog", "Wolf")
	}
}

func TestBotRaceDeterministicWithSeed(t *testing.T) {
	graph := &fakeGraph{links: map[string][]string{
		"Dog": {"Wolf"},
	}}
	a := seededBot(graph, 42).Race(context.Background(), "Dog", "Wolf", "easy")
	b := seededBot(graph, 42).Race(context.Background(), "Dog", "Wolf", "easy")
	assert.Equal(t, a, b)
}

func TestBotRaceUnknownDifficultyDefaultsToMedium(t *testing.T) {
	graph := &fakeGraph{links: map[string][]string{"A": {"B"}}}
	res := seededBot(graph, 5).Race(context.Background(), "A", "B", "ultra")
	assertValidResult(t, res, "A", "B")
}

func TestHumanizeTopic(t *testing.T) {
	assert.Equal(t, "History Of Science", HumanizeTopic("history-of-science"))
	assert.Equal(t, "Machine Translation", HumanizeTopic("machine_translation"))
}
