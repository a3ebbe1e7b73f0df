package models

import (
	"strings"
	"time"
)

// Brand is a tracked company together with its prompt set and competitor list
type Brand struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Domain      string            `json:"domain"`
	Categories  []Category        `json:"categories"`
	Competitors []CompetitorEntry `json:"competitors"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Category groups the prompts of one market-research theme
type Category struct {
	ID      string   `json:"id"`
	BrandID string   `json:"brand_id"`
	Name    string   `json:"name"`
	Prompts []Prompt `json:"prompts,omitempty"`
}

// Prompt is a free-text search query used to elicit an AI answer
type Prompt struct {
	ID         string `json:"id"`
	CategoryID string `json:"category_id"`
	BrandID    string `json:"brand_id"`
	Text       string `json:"text"`
}

// CompetitorEntry is soft-deleted: RemovedAt is set instead of removing the row
type CompetitorEntry struct {
	Name      string     `json:"name"`
	AddedAt   time.Time  `json:"added_at"`
	RemovedAt *time.Time `json:"removed_at,omitempty"`
}

// Active reports whether the competitor was part of the entity set at the given time
func (c CompetitorEntry) Active(at time.Time) bool {
	if c.AddedAt.After(at) {
		return false
	}
	return c.RemovedAt == nil || c.RemovedAt.After(at)
}

// Entities returns the mention vocabulary at the given time: the brand name
// first, then active competitors in insertion order.
func (b *Brand) Entities(at time.Time) []string {
	entities := []string{b.Name}
	for _, c := range b.Competitors {
		if c.Active(at) {
			entities = append(entities, c.Name)
		}
	}
	return entities
}

// ActiveCompetitor returns the live entry whose name matches case-insensitively
func (b *Brand) ActiveCompetitor(name string, at time.Time) (*CompetitorEntry, bool) {
	for i := range b.Competitors {
		c := &b.Competitors[i]
		if c.Active(at) && strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return nil, false
}

// AllPrompts flattens the prompts of every category
func (b *Brand) AllPrompts() []Prompt {
	var prompts []Prompt
	for _, c := range b.Categories {
		prompts = append(prompts, c.Prompts...)
	}
	return prompts
}

// AIResponse is the latest provider answer for one prompt
type AIResponse struct {
	PromptID  string    `json:"prompt_id"`
	BrandID   string    `json:"brand_id"`
	Provider  string    `json:"provider"`
	Text      string    `json:"text"`
	LatencyMs int64     `json:"latency_ms"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MentionSet maps entity name to occurrence count for one response
type MentionSet struct {
	PromptID string         `json:"prompt_id"`
	Counts   map[string]int `json:"counts"`
}

// CalculationMethod tells consumers whether shares are measured or estimated
type CalculationMethod string

const (
	MethodEntityCount          CalculationMethod = "ENTITY_COUNT"
	MethodFallbackDistribution CalculationMethod = "FALLBACK_DISTRIBUTION"
)

// SOVSnapshot is one immutable share-of-voice computation
type SOVSnapshot struct {
	BrandID           string             `json:"brandId"`
	TakenAt           time.Time          `json:"takenAt"`
	MentionCounts     map[string]int     `json:"mentionCounts"`
	TotalMentions     int                `json:"totalMentions"`
	ShareOfVoice      map[string]float64 `json:"shareOfVoice"`
	BrandShare        float64            `json:"brandShare"`
	AIVisibilityScore float64            `json:"aiVisibilityScore"`
	CalculationMethod CalculationMethod  `json:"calculationMethod"`
	// Entities preserves the entity order used for the computation
	Entities []string `json:"entities,omitempty"`
}

// Clone returns a deep copy so stored history cannot be mutated through a reference
func (s *SOVSnapshot) Clone() *SOVSnapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.MentionCounts = make(map[string]int, len(s.MentionCounts))
	for k, v := range s.MentionCounts {
		c.MentionCounts[k] = v
	}
	c.ShareOfVoice = make(map[string]float64, len(s.ShareOfVoice))
	for k, v := range s.ShareOfVoice {
		c.ShareOfVoice[k] = v
	}
	c.Entities = append([]string(nil), s.Entities...)
	return &c
}

// Readiness is the categorical label derived from a GEO overall score
type Readiness string

const (
	ReadinessCritical  Readiness = "Critical"
	ReadinessPoor      Readiness = "Poor"
	ReadinessModerate  Readiness = "Moderate"
	ReadinessStrong    Readiness = "Strong"
	ReadinessExcellent Readiness = "Excellent"
)

// FactorScore is one weighted rubric line
type FactorScore struct {
	Name          string  `json:"name"`
	RawScore      float64 `json:"rawScore"`
	WeightPercent float64 `json:"weightPercent"`
	WeightedScore float64 `json:"weightedScore"`
}

// BlogScoreRecord is the latest GEO score for one (brand, url) pair
type BlogScoreRecord struct {
	BrandID         string        `json:"brandId"`
	URL             string        `json:"url"`
	OverallScore    float64       `json:"overallScore"`
	Readiness       Readiness     `json:"readiness"`
	Factors         []FactorScore `json:"factors"`
	Recommendations []string      `json:"recommendations"`
	ScoredAt        time.Time     `json:"scoredAt"`
}

// TrendPoint is one chart coordinate
type TrendPoint struct {
	X time.Time `json:"x"`
	Y float64   `json:"y"`
}

// ChartData holds one dataset per entity
type ChartData struct {
	Datasets map[string][]TrendPoint `json:"datasets"`
}

// DateRange is the span covered by a trend
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Trend is the SOV time series consumed by chart collaborators
type Trend struct {
	ChartData      ChartData `json:"chartData"`
	BrandNames     []string  `json:"brandNames"`
	TotalSnapshots int       `json:"totalSnapshots"`
	DateRange      DateRange `json:"dateRange"`
}

// LatestSOV is the most recent snapshot reduced to the fields dashboards read
type LatestSOV struct {
	ShareOfVoice      map[string]float64 `json:"shareOfVoice"`
	MentionCounts     map[string]int     `json:"mentionCounts"`
	TotalMentions     int                `json:"totalMentions"`
	BrandShare        float64            `json:"brandShare"`
	AIVisibilityScore float64            `json:"aiVisibilityScore"`
	CalculationMethod CalculationMethod  `json:"calculationMethod"`
	TakenAt           time.Time          `json:"takenAt"`
}

// SOVReport summarizes one scheduled analysis pass for notifications
type SOVReport struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Period      string            `json:"period"`
	Brands      []BrandSOVLine    `json:"brands"`
	Failures    map[string]string `json:"failures,omitempty"`
}

// BrandSOVLine is one brand's row in an SOVReport
type BrandSOVLine struct {
	BrandID           string            `json:"brand_id"`
	BrandName         string            `json:"brand_name"`
	BrandShare        float64           `json:"brand_share"`
	ShareChange       float64           `json:"share_change"`
	TotalMentions     int               `json:"total_mentions"`
	CalculationMethod CalculationMethod `json:"calculation_method"`
}
