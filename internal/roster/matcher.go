package roster

import (
	"fmt"
	"math"

	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/models"
)

// Strategy selects how a match is chosen among candidates under threshold.
type Strategy string

const (
	// Nearest picks the candidate with the smallest distance.
	Nearest Strategy = "nearest"
	// First picks the first candidate under threshold in roster order.
	First Strategy = "first"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case Nearest, First:
		return Strategy(s), nil
	case "":
		return Nearest, nil
	default:
		return "", fmt.Errorf("unknown match strategy %q", s)
	}
}

// Matcher resolves a face embedding to at most one roster identity.
type Matcher struct {
	// Threshold is the largest cosine distance accepted as a match.
	Threshold float64
	Strategy  Strategy
}

func NewMatcher(threshold float64, strategy Strategy) *Matcher {
	return &Matcher{Threshold: threshold, Strategy: strategy}
}

// Match returns the matched identity and its distance. A candidate matches
// when its distance is at or below the threshold.
func (m *Matcher) Match(embedding []float32, snap *Snapshot) (models.Identity, float64, bool) {
	best := -1
	bestDist := math.Inf(1)

	for i := 0; i < snap.Len(); i++ {
		candidate := snap.identities[i].Embedding
		if len(candidate) != len(embedding) {
			continue
		}
		d := CosineDistance(embedding, candidate)
		if d > m.Threshold {
			continue
		}
		if m.Strategy == First {
			return snap.identities[i], d, true
		}
		if d < bestDist {
			best, bestDist = i, d
		}
	}

	if best < 0 {
		return models.Identity{}, 0, false
	}
	return snap.identities[best], bestDist, true
}

// CosineSimilarity computes cosine similarity between two vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return math.Min(1.0, math.Max(-1.0, dot/(math.Sqrt(na)*math.Sqrt(nb))))
}

// CosineDistance is 1 - cosine similarity, in [0, 2].
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}
