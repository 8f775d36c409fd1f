package services

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// botProfile fixes the behavior model for one difficulty: how likely the bot
// is to take wrong turns, how long it "reads" between clicks, and how many
// clicks its fully synthetic fallback race takes.
type botProfile struct {
	MistakeRate    float64 // probability mass driving extra wrong-turn hops
	BaseClickDelay float64 // seconds per click before jitter
	BaselineClicks int     // fallback click count when the link graph is unreachable
}

var botProfiles = map[string]botProfile{
	"easy":   {MistakeRate: 0.60, BaseClickDelay: 14.0, BaselineClicks: 9},
	"medium": {MistakeRate: 0.40, BaseClickDelay: 10.0, BaselineClicks: 7},
	"hard":   {MistakeRate: 0.25, BaseClickDelay: 7.0, BaselineClicks: 6},
	"expert": {MistakeRate: 0.12, BaseClickDelay: 5.0, BaselineClicks: 5},
	"master": {MistakeRate: 0.05, BaseClickDelay: 3.5, BaselineClicks: 4},
}

// maxWrongTurns caps mistake insertion so low difficulties stay beatable
// rather than absurd.
const maxWrongTurns = 4

// maxLinkSamples bounds how many outbound links are probed for a 3-node path.
const maxLinkSamples = 12

// Generic hub topics for heuristic paths and wrong turns. Broad articles that
// plausibly connect anything to anything.
var hubTopics = []string{
	"History", "Science", "Geography", "Philosophy", "Technology",
	"Culture", "Mathematics", "Europe", "United States", "20th Century",
}

// BotResult is a simulated race outcome, shaped exactly like a human
// completion report.
type BotResult struct {
	Path       []string `json:"path"`
	Clicks     int      `json:"clicks"`
	ElapsedSec float64  `json:"elapsed_sec"`
}

// BotOpponent simulates a non-human racer. The randomness source is
// injectable so simulated outcomes can be pinned in tests.
type BotOpponent struct {
	graph  LinkGraph
	rng    *rand.Rand
	logger *zap.Logger
}

func NewBotOpponent(graph LinkGraph, rng *rand.Rand, logger *zap.Logger) *BotOpponent {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &BotOpponent{graph: graph, rng: rng, logger: logger}
}

// Race simulates one traversal from startTopic to endTopic. It never fails:
// any link-graph error drops to a synthetic result built from the difficulty
// baseline. The returned path always begins with startTopic and ends with
// endTopic.
func (b *BotOpponent) Race(ctx context.Context, startTopic, endTopic, difficulty string) BotResult {
	profile, ok := botProfiles[difficulty]
	if !ok {
		profile = botProfiles["medium"]
	}

	path, err := b.findPath(ctx, startTopic, endTopic)
	if err != nil {
		b.logger.Warn("link graph unavailable, using synthetic bot result",
			zap.String("start", startTopic),
			zap.String("end", endTopic),
			zap.Error(err),
		)
		path = b.syntheticPath(startTopic, endTopic, profile)
	} else {
		path = b.insertWrongTurns(path, profile)
	}

	clicks := len(path) - 1
	elapsed := 0.0
	for i := 0; i < clicks; i++ {
		// Each click delay jittered by ±30% to avoid a mechanical cadence.
		elapsed += profile.BaseClickDelay * (0.7 + 0.6*b.rng.Float64())
	}

	return BotResult{Path: path, Clicks: clicks, ElapsedSec: elapsed}
}

// findPath looks for a short traversal: direct link (2 nodes), one hop via a
// sampled outbound link (3 nodes), else a heuristic route through generic hub
// topics (4 nodes).
func (b *BotOpponent) findPath(ctx context.Context, startTopic, endTopic string) ([]string, error) {
	direct, err := b.graph.HasLink(ctx, startTopic, endTopic)
	if err != nil {
		return nil, err
	}
	if direct {
		return []string{startTopic, endTopic}, nil
	}

	links, err := b.graph.Links(ctx, startTopic)
	if err != nil {
		return nil, err
	}
	b.rng.Shuffle(len(links), func(i, j int) { links[i], links[j] = links[j], links[i] })
	if len(links) > maxLinkSamples {
		links = links[:maxLinkSamples]
	}
	for _, mid := range links {
		bridges, err := b.graph.HasLink(ctx, mid, endTopic)
		if err != nil {
			return nil, err
		}
		if bridges {
			return []string{startTopic, mid, endTopic}, nil
		}
	}

	// No short path found: route through two generic hubs.
	h1 := hubTopics[b.rng.Intn(len(hubTopics))]
	h2 := hubTopics[b.rng.Intn(len(hubTopics))]
	for h2 == h1 {
		h2 = hubTopics[b.rng.Intn(len(hubTopics))]
	}
	return []string{startTopic, h1, h2, endTopic}, nil
}

// insertWrongTurns perturbs a clean path with 0..maxWrongTurns extra hops.
// Lower difficulties draw more hops. Endpoints are never touched.
func (b *BotOpponent) insertWrongTurns(path []string, profile botProfile) []string {
	extra := 0
	for extra < maxWrongTurns && b.rng.Float64() < profile.MistakeRate {
		extra++
	}
	for i := 0; i < extra; i++ {
		wrong := HumanizeTopic(hubTopics[b.rng.Intn(len(hubTopics))])
		// Insert before the final topic, anywhere past the start.
		pos := 1 + b.rng.Intn(len(path)-1)
		path = append(path[:pos], append([]string{wrong}, path[pos:]...)...)
	}
	return path
}

// syntheticPath fabricates a plausible traversal when the link graph cannot
// be consulted at all.
func (b *BotOpponent) syntheticPath(startTopic, endTopic string, profile botProfile) []string {
	hops := profile.BaselineClicks - 1 + b.rng.Intn(3)
	if hops < 1 {
		hops = 1
	}
	path := make([]string, 0, hops+2)
	path = append(path, startTopic)
	for i := 0; i < hops; i++ {
		path = append(path, HumanizeTopic(hubTopics[b.rng.Intn(len(hubTopics))]))
	}
	return append(path, endTopic)
}
