// Package mentions counts occurrences of known entity names in AI responses.
//
// Matching is case-insensitive substring search over a bounded vocabulary
// (brand name plus declared competitors). Longer names are matched first and
// claim their text, so "Foo Inc" is never also counted as "Foo". Substring
// matching trades precision for recall: a short name such as "Bar" also
// matches inside "Barcelona".
package mentions

import (
	"sort"
	"strings"

	"github.com/azure/brand-visibility-bot/internal/models"
)

type span struct {
	start, end int
}

// Extract returns the occurrence count of every entity in text. Every
// non-blank entity is present in the result, zero when unmentioned.
func Extract(text string, entities []string) map[string]int {
	counts := make(map[string]int, len(entities))

	type needle struct {
		name  string
		lower string
	}
	needles := make([]needle, 0, len(entities))
	for _, e := range entities {
		if strings.TrimSpace(e) == "" {
			continue
		}
		if _, seen := counts[e]; seen {
			continue
		}
		counts[e] = 0
		needles = append(needles, needle{name: e, lower: strings.ToLower(e)})
	}

	// Longest name first; ties keep list order
	sort.SliceStable(needles, func(i, j int) bool {
		return len(needles[i].lower) > len(needles[j].lower)
	})

	haystack := strings.ToLower(text)
	var claimed []span

	for _, n := range needles {
		start := 0
		for start <= len(haystack)-len(n.lower) {
			i := strings.Index(haystack[start:], n.lower)
			if i < 0 {
				break
			}
			s := span{start: start + i, end: start + i + len(n.lower)}
			if overlaps(claimed, s) {
				start = s.start + 1
				continue
			}
			claimed = append(claimed, s)
			counts[n.name]++
			start = s.end
		}
	}

	return counts
}

func overlaps(claimed []span, s span) bool {
	for _, c := range claimed {
		if s.start < c.end && c.start < s.end {
			return true
		}
	}
	return false
}

// ExtractAll derives one MentionSet per successful response
func ExtractAll(responses []*models.AIResponse, entities []string) []models.MentionSet {
	sets := make([]models.MentionSet, 0, len(responses))
	for _, r := range responses {
		if r == nil || !r.Success {
			continue
		}
		sets = append(sets, models.MentionSet{
			PromptID: r.PromptID,
			Counts:   Extract(r.Text, entities),
		})
	}
	return sets
}
