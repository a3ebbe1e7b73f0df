// Package geo scores how well a blog post is optimized for generative engines
// against a fixed weighted rubric.
package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/azure/brand-visibility-bot/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// PageFetcher returns the readable text of a web page
type PageFetcher interface {
	FetchPageText(ctx context.Context, url string) (string, error)
}

// FactorEvaluator returns a raw 0-10 score for one rubric factor
type FactorEvaluator interface {
	EvaluateFactor(ctx context.Context, factor Factor, text string) (float64, error)
}

// RecordStore keeps the latest score per (brand, url)
type RecordStore interface {
	UpsertBlogScore(ctx context.Context, rec *models.BlogScoreRecord) error
}

type Engine struct {
	fetcher   PageFetcher
	evaluator FactorEvaluator
	records   RecordStore
	now       func() time.Time
}

func NewEngine(fetcher PageFetcher, evaluator FactorEvaluator, records RecordStore) *Engine {
	return &Engine{
		fetcher:   fetcher,
		evaluator: evaluator,
		records:   records,
		now:       time.Now,
	}
}

// Compute scores raw factor values given in rubric order. Values are clamped to [0,10].
func Compute(brandID, url string, raw []float64) (*models.BlogScoreRecord, error) {
	if len(raw) != len(Rubric) {
		return nil, fmt.Errorf("%w: expected %d factor scores, got %d", models.ErrInvalidInput, len(Rubric), len(raw))
	}

	factors := make([]models.FactorScore, len(Rubric))
	for i, f := range Rubric {
		factors[i] = factorScore(f, raw[i])
	}
	return build(brandID, url, factors), nil
}

func factorScore(f Factor, raw float64) models.FactorScore {
	raw = clamp(raw)
	return models.FactorScore{
		Name:          f.Name,
		RawScore:      raw,
		WeightPercent: f.Weight,
		WeightedScore: raw * f.Weight / 100,
	}
}

func build(brandID, url string, factors []models.FactorScore) *models.BlogScoreRecord {
	total := 0.0
	recommendations := []string{}
	for _, fs := range factors {
		total += fs.WeightedScore
		if fs.RawScore < recommendationThreshold {
			if f, ok := factorByName(fs.Name); ok {
				recommendations = append(recommendations, f.Recommendation)
			}
		}
	}

	overall := math.Round(total*100) / 100
	return &models.BlogScoreRecord{
		BrandID:         brandID,
		URL:             url,
		OverallScore:    overall,
		Readiness:       ReadinessFor(overall),
		Factors:         factors,
		Recommendations: recommendations,
	}
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 10:
		return 10
	}
	return v
}

func factorByName(name string) (Factor, bool) {
	for _, f := range Rubric {
		if f.Name == name {
			return f, true
		}
	}
	return Factor{}, false
}

// Score fetches the page, evaluates every factor concurrently and upserts the
// record. When a factor fails, the record built from the factors that
// succeeded is returned unpersisted together with ErrEvaluationFailed.
func (e *Engine) Score(ctx context.Context, brandID, url string) (*models.BlogScoreRecord, error) {
	logger := logrus.WithFields(logrus.Fields{"brand_id": brandID, "url": url})

	text, err := e.fetcher.FetchPageText(ctx, url)
	if err != nil {
		if errors.Is(err, models.ErrFetchFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrFetchFailed, err)
	}

	raw := make([]float64, len(Rubric))
	ok := make([]bool, len(Rubric))
	var mu sync.Mutex
	var failed []string

	var g errgroup.Group
	for i, f := range Rubric {
		g.Go(func() error {
			score, err := e.evaluator.EvaluateFactor(ctx, f, text)
			if err != nil {
				logger.WithField("factor", f.Name).WithError(err).Warn("Factor evaluation failed")
				mu.Lock()
				failed = append(failed, f.Name)
				mu.Unlock()
				return err
			}
			raw[i] = score
			ok[i] = true
			return nil
		})
	}
	evalErr := g.Wait()

	factors := make([]models.FactorScore, 0, len(Rubric))
	for i, f := range Rubric {
		if ok[i] {
			factors = append(factors, factorScore(f, raw[i]))
		}
	}
	rec := build(brandID, url, factors)
	rec.ScoredAt = e.now().UTC()

	if evalErr != nil {
		return rec, fmt.Errorf("%w: %d of %d factors failed: %v", models.ErrEvaluationFailed, len(failed), len(Rubric), evalErr)
	}

	if err := e.records.UpsertBlogScore(ctx, rec); err != nil {
		return rec, fmt.Errorf("failed to store blog score: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"overall_score": rec.OverallScore,
		"readiness":     rec.Readiness,
	}).Info("Blog post scored")
	return rec, nil
}
