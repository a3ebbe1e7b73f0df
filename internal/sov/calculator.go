// Package sov turns mention counts into share-of-voice percentages.
package sov

import (
	"time"

	"github.com/azure/brand-visibility-bot/internal/models"
)

// VisibilityScorer derives aiVisibilityScore from a result. The default
// passes brandShare through unchanged.
type VisibilityScorer func(r Result) float64

// Result is an aggregate computed over all MentionSets of a brand
type Result struct {
	Brand         string
	Entities      []string
	MentionCounts map[string]int
	TotalMentions int
	ShareOfVoice  map[string]float64
	BrandShare    float64
	Method        models.CalculationMethod
}

// Calculator aggregates mention sets deterministically
type Calculator struct {
	scorer VisibilityScorer
}

// NewCalculator creates a calculator. A nil scorer uses brandShare.
func NewCalculator(scorer VisibilityScorer) *Calculator {
	if scorer == nil {
		scorer = func(r Result) float64 { return r.BrandShare }
	}
	return &Calculator{scorer: scorer}
}

// Calculate sums counts per entity and normalizes them. Counts for names
// outside entities are ignored, which drops removed competitors from totals.
// With zero total mentions every entity gets an even 100/k share and the
// result is marked as a fallback distribution.
func (c *Calculator) Calculate(brand string, entities []string, sets []models.MentionSet) Result {
	r := Result{
		Brand:         brand,
		Entities:      append([]string(nil), entities...),
		MentionCounts: make(map[string]int, len(entities)),
		ShareOfVoice:  make(map[string]float64, len(entities)),
	}

	for _, e := range entities {
		r.MentionCounts[e] = 0
	}
	for _, set := range sets {
		for _, e := range entities {
			r.MentionCounts[e] += set.Counts[e]
		}
	}
	for _, e := range entities {
		r.TotalMentions += r.MentionCounts[e]
	}

	if r.TotalMentions > 0 {
		r.Method = models.MethodEntityCount
		for _, e := range entities {
			r.ShareOfVoice[e] = 100 * float64(r.MentionCounts[e]) / float64(r.TotalMentions)
		}
	} else {
		r.Method = models.MethodFallbackDistribution
		if k := len(entities); k > 0 {
			even := 100 / float64(k)
			for _, e := range entities {
				r.ShareOfVoice[e] = even
			}
		}
	}

	r.BrandShare = r.ShareOfVoice[brand]
	return r
}

// Snapshot freezes a result into an immutable snapshot record
func (c *Calculator) Snapshot(brandID string, takenAt time.Time, r Result) *models.SOVSnapshot {
	snap := &models.SOVSnapshot{
		BrandID:           brandID,
		TakenAt:           takenAt,
		MentionCounts:     r.MentionCounts,
		TotalMentions:     r.TotalMentions,
		ShareOfVoice:      r.ShareOfVoice,
		BrandShare:        r.BrandShare,
		AIVisibilityScore: c.scorer(r),
		CalculationMethod: r.Method,
		Entities:          r.Entities,
	}
	return snap.Clone()
}

// IsFallback reports whether shares are estimated rather than measured
func (r Result) IsFallback() bool {
	return r.Method == models.MethodFallbackDistribution
}
