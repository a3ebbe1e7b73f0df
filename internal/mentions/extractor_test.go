package mentions

import (
	"testing"

	"github.com/azure/brand-visibility-bot/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		entities []string
		expected map[string]int
	}{
		{
			name:     "Counts occurrences case-insensitively",
			text:     "ACME is great. I prefer acme over Foo, although foo is cheaper.",
			entities: []string{"Acme", "Foo", "Bar"},
			expected: map[string]int{"Acme": 2, "Foo": 2, "Bar": 0},
		},
		{
			name:     "Longest name claims its text",
			text:     "Foo Inc leads the market; Foo is a nickname for Foo Inc.",
			entities: []string{"Acme", "Foo", "Foo Inc"},
			expected: map[string]int{"Acme": 0, "Foo": 1, "Foo Inc": 2},
		},
		{
			name:     "Brand containing a competitor name",
			text:     "Acme Cloud beats Acme on price",
			entities: []string{"Acme Cloud", "Acme"},
			expected: map[string]int{"Acme Cloud": 1, "Acme": 1},
		},
		{
			name:     "Substring false positive is kept",
			text:     "We met in Barcelona at a bar.",
			entities: []string{"Acme", "Bar"},
			expected: map[string]int{"Acme": 0, "Bar": 2},
		},
		{
			name:     "Adjacent occurrences do not overlap",
			text:     "aaaa",
			entities: []string{"aa"},
			expected: map[string]int{"aa": 2},
		},
		{
			name:     "Blank entity names are ignored",
			text:     "Acme",
			entities: []string{"Acme", "  ", ""},
			expected: map[string]int{"Acme": 1},
		},
		{
			name:     "Empty text yields zero counts",
			text:     "",
			entities: []string{"Acme", "Foo"},
			expected: map[string]int{"Acme": 0, "Foo": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Extract(tt.text, tt.entities))
		})
	}
}

func TestExtract_Idempotent(t *testing.T) {
	text := "Acme, Foo Inc and Foo were all recommended. Acme twice: acme."
	entities := []string{"Acme", "Foo", "Foo Inc"}

	first := Extract(text, entities)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Extract(text, entities))
	}
}

func TestExtractAll(t *testing.T) {
	responses := []*models.AIResponse{
		{PromptID: "p1", Text: "Acme and Acme", Success: true},
		{PromptID: "p2", Text: "Foo", Success: true},
		{PromptID: "p3", Text: "Acme", Success: false},
		nil,
	}

	sets := ExtractAll(responses, []string{"Acme", "Foo"})

	assert.Len(t, sets, 2)
	assert.Equal(t, "p1", sets[0].PromptID)
	assert.Equal(t, map[string]int{"Acme": 2, "Foo": 0}, sets[0].Counts)
	assert.Equal(t, map[string]int{"Acme": 0, "Foo": 1}, sets[1].Counts)
}
