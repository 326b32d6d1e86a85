// internal/healing/score.go
package healing

import (
	"math"

	"github.com/agnivade/levenshtein"

	"github.com/xkilldash9x/relock/api/schemas"
)

// Weights are the fixed sub-score weights of the similarity scorer. They must
// sum to 1.0 so the final score stays in [0,1].
type Weights struct {
	Text      float64
	Attribute float64
	Position  float64
	Tag       float64
}

// DefaultWeights favor precision over recall: textual and attribute evidence
// carry most of the score, and tag equality gates a fifth of it outright.
var DefaultWeights = Weights{Text: 0.3, Attribute: 0.3, Position: 0.2, Tag: 0.2}

// Scorer computes a bounded similarity score between two fingerprints. It is
// deterministic and needs no training; every sub-score is symmetric, so the
// total is too.
type Scorer struct {
	weights Weights
	// useAncestors swaps the flat positional term for a weighted
	// ancestor-chain term that also inspects ancestor tag/class/id.
	useAncestors bool
}

// NewScorer builds a scorer with the default weights.
func NewScorer() *Scorer {
	return &Scorer{weights: DefaultWeights}
}

// NewAncestorScorer builds the richer variant that scores structural context
// through the recorded ancestor chain instead of raw coordinates.
func NewAncestorScorer() *Scorer {
	return &Scorer{weights: DefaultWeights, useAncestors: true}
}

// Score returns the weighted similarity of candidate against reference, in
// [0,1]. Neither fingerprint is mutated.
func (s *Scorer) Score(reference, candidate *schemas.Fingerprint) float64 {
	if reference == nil || candidate == nil {
		return 0
	}

	score := s.weights.Text * textSimilarity(reference, candidate)
	score += s.weights.Attribute * attributeSimilarity(reference, candidate)
	if s.useAncestors {
		score += s.weights.Position * ancestorSimilarity(reference, candidate)
	} else {
		score += s.weights.Position * positionProximity(reference.Position, candidate.Position)
	}
	if reference.Tag == candidate.Tag && reference.Tag != "" {
		score += s.weights.Tag
	}

	// Clamp against float drift so callers can rely on the bound.
	return math.Min(1.0, math.Max(0.0, score))
}

// textSimilarity compares "{visibleText} {ancestorText}" of both fingerprints
// with a normalized edit-similarity ratio.
func textSimilarity(a, b *schemas.Fingerprint) float64 {
	return editRatio(a.VisibleText+" "+a.AncestorText, b.VisibleText+" "+b.AncestorText)
}

// attributeSimilarity averages the edit-similarity ratio over attribute keys
// present in both fingerprints; no overlap contributes zero.
func attributeSimilarity(a, b *schemas.Fingerprint) float64 {
	var sum float64
	var common int
	for key, av := range a.Attributes {
		bv, ok := b.Attributes[key]
		if !ok {
			continue
		}
		sum += editRatio(av, bv)
		common++
	}
	if common == 0 {
		return 0
	}
	return sum / float64(common)
}

// positionProximity maps the manhattan distance between the two snapshot
// positions onto (0,1], with 50px of drift halving the contribution.
func positionProximity(a, b schemas.Point) float64 {
	dist := math.Abs(a.X-b.X) + math.Abs(a.Y-b.Y)
	return 1 / (1 + dist/50)
}

// ancestorSimilarity walks both ancestor chains level by level, blending tag
// equality, class similarity and relative-offset proximity per level.
func ancestorSimilarity(a, b *schemas.Fingerprint) float64 {
	levels := len(a.Ancestors)
	if len(b.Ancestors) < levels {
		levels = len(b.Ancestors)
	}
	if levels == 0 {
		// No structural context on either side; fall back to coordinates.
		return positionProximity(a.Position, b.Position)
	}

	var sum float64
	for i := 0; i < levels; i++ {
		aa, ba := a.Ancestors[i], b.Ancestors[i]
		var level float64
		if aa.Tag == ba.Tag && aa.Tag != "" {
			level += 0.5
		}
		level += 0.3 * editRatio(aa.Class, ba.Class)
		offsetDist := math.Abs(aa.OffsetX-ba.OffsetX) + math.Abs(aa.OffsetY-ba.OffsetY)
		level += 0.2 * (1 / (1 + offsetDist/50))
		sum += level
	}
	return sum / float64(levels)
}

// editRatio is a symmetric edit-similarity ratio: 1.0 for identical strings,
// trending to 0 as the edit distance approaches the longer length. Two empty
// strings are identical.
func editRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if lb := len([]rune(b)); lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
