package geo

import "github.com/azure/brand-visibility-bot/internal/models"

// Factor is one weighted line of the scoring rubric
type Factor struct {
	Name           string
	Weight         float64
	Guidance       string
	Recommendation string
}

// Rubric is ordered by weight descending; weights sum to 100
var Rubric = []Factor{
	{
		Name:           "Content Structure & Answer Format",
		Weight:         30,
		Guidance:       "Clear headings, direct answers near the top, lists, tables and FAQ sections that an AI engine can lift verbatim.",
		Recommendation: "Restructure the post around question-style headings with a direct answer in the first paragraph of each section.",
	},
	{
		Name:           "Relevance & Accuracy",
		Weight:         25,
		Guidance:       "Stays on topic, makes correct and verifiable claims, cites sources and keeps facts current.",
		Recommendation: "Tighten the topic focus, verify claims and cite authoritative sources for facts and figures.",
	},
	{
		Name:           "User Experience",
		Weight:         20,
		Guidance:       "Readable prose, short paragraphs, scannable layout and no intrusive filler.",
		Recommendation: "Shorten paragraphs, add summaries and remove filler so readers and engines can scan the page.",
	},
	{
		Name:           "Technical SEO",
		Weight:         15,
		Guidance:       "Descriptive title, meta description, semantic markup, alt text and structured data.",
		Recommendation: "Add a descriptive title and meta description, semantic headings, image alt text and schema.org markup.",
	},
	{
		Name:           "Content Depth",
		Weight:         10,
		Guidance:       "Covers the topic comprehensively with examples, data and expert insight.",
		Recommendation: "Expand coverage with concrete examples, original data and expert perspective.",
	},
}

// recommendationThreshold is the raw score under which a factor gets a recommendation
const recommendationThreshold = 7.0

type band struct {
	min       float64
	readiness models.Readiness
}

// Lower bounds, highest first
var readinessBands = []band{
	{8.5, models.ReadinessExcellent},
	{7.0, models.ReadinessStrong},
	{5.5, models.ReadinessModerate},
	{4.0, models.ReadinessPoor},
}

// ReadinessFor maps an overall score in [0,10] to its label
func ReadinessFor(score float64) models.Readiness {
	for _, b := range readinessBands {
		if score >= b.min {
			return b.readiness
		}
	}
	return models.ReadinessCritical
}
