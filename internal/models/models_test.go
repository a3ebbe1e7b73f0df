package models

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{name: "Wrapped sentinel", err: fmt.Errorf("loading brand: %w", ErrBrandNotFound), code: "BRAND_NOT_FOUND", status: http.StatusNotFound},
		{name: "Batch error", err: &BatchError{Failures: []*PromptFailure{{PromptID: "p1", Kind: ErrProviderTimeout}}}, code: "ALL_PROMPTS_FAILED", status: http.StatusBadGateway},
		{name: "Prompt failure", err: &PromptFailure{PromptID: "p1", Kind: ErrEmptyResponse}, code: "EMPTY_RESPONSE", status: http.StatusBadGateway},
		{name: "Lock conflict", err: ErrSnapshotWriteConflict, code: "SNAPSHOT_WRITE_CONFLICT", status: http.StatusConflict},
		{name: "Unknown", err: errors.New("boom"), code: "INTERNAL", status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, status := ErrorCode(tt.err)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestPromptFailure(t *testing.T) {
	cause := errors.New("connection reset")
	f := &PromptFailure{PromptID: "p1", Kind: ErrProviderError, Err: cause}

	assert.ErrorIs(t, f, ErrProviderError)
	assert.ErrorIs(t, f, cause)
	assert.Equal(t, "prompt p1: provider error: connection reset", f.Error())
}

func TestBatchError(t *testing.T) {
	err := &BatchError{Failures: []*PromptFailure{
		{PromptID: "p1", Kind: ErrProviderTimeout},
		{PromptID: "p2", Kind: ErrProviderTimeout},
		{PromptID: "p3", Kind: ErrEmptyResponse},
	}}

	assert.ErrorIs(t, err, ErrAllPromptsFailed)
	assert.Equal(t, "all prompts failed (3 prompts: 2 provider timeout, 1 empty response)", err.Error())
}

func TestBrand_Entities(t *testing.T) {
	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	removed := t0.Add(2 * time.Hour)
	brand := &Brand{
		Name: "Acme",
		Competitors: []CompetitorEntry{
			{Name: "Foo", AddedAt: t0},
			{Name: "Bar", AddedAt: t0, RemovedAt: &removed},
			{Name: "Baz", AddedAt: t0.Add(time.Hour)},
		},
	}

	assert.Equal(t, []string{"Acme", "Foo", "Bar"}, brand.Entities(t0))
	assert.Equal(t, []string{"Acme", "Foo", "Bar", "Baz"}, brand.Entities(t0.Add(time.Hour)))
	assert.Equal(t, []string{"Acme", "Foo", "Baz"}, brand.Entities(removed))

	c, ok := brand.ActiveCompetitor("foo", removed)
	assert.True(t, ok)
	assert.Equal(t, "Foo", c.Name)
	_, ok = brand.ActiveCompetitor("bar", removed)
	assert.False(t, ok)
}

func TestSOVSnapshot_Clone(t *testing.T) {
	snap := &SOVSnapshot{
		BrandID:       "b1",
		MentionCounts: map[string]int{"Acme": 1},
		ShareOfVoice:  map[string]float64{"Acme": 100},
		Entities:      []string{"Acme"},
	}

	c := snap.Clone()
	c.MentionCounts["Acme"] = 5
	c.ShareOfVoice["Acme"] = 0
	c.Entities[0] = "Other"

	assert.Equal(t, 1, snap.MentionCounts["Acme"])
	assert.Equal(t, 100.0, snap.ShareOfVoice["Acme"])
	assert.Equal(t, "Acme", snap.Entities[0])
	assert.Nil(t, (*SOVSnapshot)(nil).Clone())
}
