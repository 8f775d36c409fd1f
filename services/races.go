package services

import (
	"math/rand"
	"strings"

	"wiki-battle-system/models"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Queue race pools. The tier is picked from the *average* of the two paired
// ratings; the race is a uniform random draw inside that tier.
const (
	TierLow  = "low"
	TierMid  = "mid"
	TierHigh = "high"
)

var lowTierRaces = []models.Race{
	{StartTopic: "Dog", EndTopic: "Wolf", Difficulty: "easy", OptimalClicks: 1},
	{StartTopic: "Pizza", EndTopic: "Italy", Difficulty: "easy", OptimalClicks: 1},
	{StartTopic: "Sun", EndTopic: "Solar System", Difficulty: "easy", OptimalClicks: 1},
	{StartTopic: "Football", EndTopic: "Olympic Games", Difficulty: "easy", OptimalClicks: 2},
	{StartTopic: "Coffee", EndTopic: "South America", Difficulty: "easy", OptimalClicks: 2},
}

var midTierRaces = []models.Race{
	{StartTopic: "Albert Einstein", EndTopic: "Nuclear Power", Difficulty: "medium", OptimalClicks: 2},
	{StartTopic: "Great Wall of China", EndTopic: "Silk Road", Difficulty: "medium", OptimalClicks: 2},
	{StartTopic: "Photosynthesis", EndTopic: "Climate Change", Difficulty: "medium", OptimalClicks: 3},
	{StartTopic: "Printing Press", EndTopic: "French Revolution", Difficulty: "medium", OptimalClicks: 3},
	{StartTopic: "Jazz", EndTopic: "Civil Rights Movement", Difficulty: "medium", OptimalClicks: 3},
}

var highTierRaces = []models.Race{
	{StartTopic: "Banach Space", EndTopic: "Quantum Field Theory", Difficulty: "hard", OptimalClicks: 4},
	{StartTopic: "Hanseatic League", EndTopic: "Bretton Woods System", Difficulty: "hard", OptimalClicks: 4},
	{StartTopic: "Mitochondrial DNA", EndTopic: "Out of Africa Theory", Difficulty: "hard", OptimalClicks: 3},
	{StartTopic: "Ottoman Empire", EndTopic: "Theory of Relativity", Difficulty: "hard", OptimalClicks: 4},
	{StartTopic: "Cuneiform", EndTopic: "Machine Translation", Difficulty: "hard", OptimalClicks: 5},
}

// TierForAverage buckets an average rating into a race tier.
func TierForAverage(avg int) string {
	switch {
	case avg < 900:
		return TierLow
	case avg < 1100:
		return TierMid
	default:
		return TierHigh
	}
}

// RaceForRating picks a race for a freshly paired match from the tier pool
// matching the average of the two ratings.
func RaceForRating(avgRating int, rng *rand.Rand) models.Race {
	var pool []models.Race
	switch TierForAverage(avgRating) {
	case TierLow:
		pool = lowTierRaces
	case TierMid:
		pool = midTierRaces
	default:
		pool = highTierRaces
	}
	return pool[rng.Intn(len(pool))]
}

var topicTitleCaser = cases.Title(language.English)

// HumanizeTopic turns a slug-ish topic identifier back into a display title,
// e.g. "history-of-science" becomes "History Of Science". Already-readable titles
// pass through unchanged apart from casing.
func HumanizeTopic(topic string) string {
	t := strings.NewReplacer("-", " ", "_", " ").Replace(topic)
	return topicTitleCaser.String(t)
}
