package sov

import (
	"testing"
	"time"

	"github.com/azure/brand-visibility-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sumShares(shares map[string]float64) float64 {
	total := 0.0
	for _, v := range shares {
		total += v
	}
	return total
}

func TestCalculate_EntityCount(t *testing.T) {
	calc := NewCalculator(nil)
	sets := []models.MentionSet{
		{PromptID: "p1", Counts: map[string]int{"Acme": 1, "Foo": 1, "Bar": 0}},
		{PromptID: "p2", Counts: map[string]int{"Acme": 1, "Foo": 0, "Bar": 0}},
		{PromptID: "p3", Counts: map[string]int{"Acme": 0, "Foo": 0, "Bar": 0}},
	}

	r := calc.Calculate("Acme", []string{"Acme", "Foo", "Bar"}, sets)

	assert.Equal(t, map[string]int{"Acme": 2, "Foo": 1, "Bar": 0}, r.MentionCounts)
	assert.Equal(t, 3, r.TotalMentions)
	assert.Equal(t, models.MethodEntityCount, r.Method)
	assert.InDelta(t, 66.7, r.ShareOfVoice["Acme"], 0.05)
	assert.InDelta(t, 33.3, r.ShareOfVoice["Foo"], 0.05)
	assert.Equal(t, 0.0, r.ShareOfVoice["Bar"])
	assert.InDelta(t, 100.0, sumShares(r.ShareOfVoice), 1e-9)
	assert.Equal(t, r.ShareOfVoice["Acme"], r.BrandShare)
}

func TestCalculate_Fallback(t *testing.T) {
	calc := NewCalculator(nil)

	r := calc.Calculate("Acme", []string{"Acme", "Foo", "Bar"}, nil)

	assert.Equal(t, 0, r.TotalMentions)
	assert.Equal(t, models.MethodFallbackDistribution, r.Method)
	assert.True(t, r.IsFallback())
	assert.Equal(t, map[string]int{"Acme": 0, "Foo": 0, "Bar": 0}, r.MentionCounts)
	for _, e := range []string{"Acme", "Foo", "Bar"} {
		assert.Equal(t, 100.0/3, r.ShareOfVoice[e])
	}
}

func TestCalculate_FallbackShiftsWithEntityCount(t *testing.T) {
	calc := NewCalculator(nil)

	for k := 1; k <= 6; k++ {
		entities := []string{"Acme"}
		for i := 1; i < k; i++ {
			entities = append(entities, string(rune('A'+i)))
		}
		r := calc.Calculate("Acme", entities, nil)
		for _, e := range entities {
			assert.Equal(t, 100/float64(k), r.ShareOfVoice[e])
		}
	}
}

func TestCalculate_IgnoresRemovedEntities(t *testing.T) {
	calc := NewCalculator(nil)
	sets := []models.MentionSet{
		{Counts: map[string]int{"Acme": 1, "Foo": 3, "Gone": 10}},
	}

	r := calc.Calculate("Acme", []string{"Acme", "Foo"}, sets)

	assert.Equal(t, 4, r.TotalMentions)
	_, present := r.MentionCounts["Gone"]
	assert.False(t, present)
	assert.InDelta(t, 25.0, r.BrandShare, 1e-9)
}

func TestCalculate_OrderIndependent(t *testing.T) {
	calc := NewCalculator(nil)
	a := models.MentionSet{Counts: map[string]int{"Acme": 2, "Foo": 1}}
	b := models.MentionSet{Counts: map[string]int{"Acme": 0, "Foo": 4}}
	entities := []string{"Acme", "Foo"}

	ab := calc.Calculate("Acme", entities, []models.MentionSet{a, b})
	ba := calc.Calculate("Acme", entities, []models.MentionSet{b, a})

	assert.Equal(t, ab, ba)
}

func TestSnapshot(t *testing.T) {
	calc := NewCalculator(nil)
	r := calc.Calculate("Acme", []string{"Acme", "Foo"}, []models.MentionSet{
		{Counts: map[string]int{"Acme": 3, "Foo": 1}},
	})
	takenAt := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	snap := calc.Snapshot("brand-1", takenAt, r)

	require.NotNil(t, snap)
	assert.Equal(t, "brand-1", snap.BrandID)
	assert.Equal(t, takenAt, snap.TakenAt)
	assert.Equal(t, 75.0, snap.BrandShare)
	assert.Equal(t, snap.BrandShare, snap.AIVisibilityScore)
	assert.Equal(t, models.MethodEntityCount, snap.CalculationMethod)

	// Mutating the result must not leak into the snapshot
	r.MentionCounts["Acme"] = 99
	assert.Equal(t, 3, snap.MentionCounts["Acme"])
}

func TestSnapshot_CustomScorer(t *testing.T) {
	calc := NewCalculator(func(r Result) float64 { return r.BrandShare / 2 })
	r := calc.Calculate("Acme", []string{"Acme"}, []models.MentionSet{{Counts: map[string]int{"Acme": 1}}})

	snap := calc.Snapshot("brand-1", time.Now(), r)

	assert.Equal(t, 50.0, snap.AIVisibilityScore)
}
