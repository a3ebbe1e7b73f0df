// Package analysis orchestrates share-of-voice runs, competitor changes,
// trend queries and blog scoring for tracked brands.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/azure/brand-visibility-bot/internal/config"
	"github.com/azure/brand-visibility-bot/internal/mentions"
	"github.com/azure/brand-visibility-bot/internal/models"
	"github.com/azure/brand-visibility-bot/internal/notifications"
	"github.com/azure/brand-visibility-bot/internal/runner"
	"github.com/azure/brand-visibility-bot/internal/snapshots"
	"github.com/azure/brand-visibility-bot/internal/sov"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// maxParallelBrands bounds AnalyzeAll; each brand run has its own prompt pool
const maxParallelBrands = 4

// BrandRepository is the record store used by the service
type BrandRepository interface {
	CreateBrand(ctx context.Context, brand *models.Brand) error
	GetBrand(ctx context.Context, id string) (*models.Brand, error)
	ListBrands(ctx context.Context) ([]*models.Brand, error)
	ListResponses(ctx context.Context, brandID string) ([]*models.AIResponse, error)
	AddCompetitor(ctx context.Context, brandID string, entry models.CompetitorEntry, commit func() error) error
	RemoveCompetitor(ctx context.Context, brandID, name string, at time.Time, commit func() error) error
	ListBlogScores(ctx context.Context, brandID string) ([]*models.BlogScoreRecord, error)
}

// PromptRunner executes a prompt batch
type PromptRunner interface {
	Run(ctx context.Context, prompts []models.Prompt) *runner.BatchResult
}

// BlogScorer scores one blog post for a brand
type BlogScorer interface {
	Score(ctx context.Context, brandID, url string) (*models.BlogScoreRecord, error)
}

// Service handles share-of-voice analysis for all tracked brands
type Service struct {
	config              *config.Config
	repo                BrandRepository
	runner              PromptRunner
	snapshots           snapshots.Store
	calculator          *sov.Calculator
	scorer              BlogScorer
	notificationService notifications.NotificationInterface
	locks               *brandLocks
	metrics             *Metrics
	mu                  sync.RWMutex
	now                 func() time.Time
}

// Metrics holds analysis metrics
type Metrics struct {
	Runs             int       `json:"runs"`
	LastRun          time.Time `json:"last_run"`
	LastRunDuration  string    `json:"last_run_duration"`
	BrandsAnalyzed   int       `json:"brands_analyzed"`
	SnapshotsWritten int       `json:"snapshots_written"`
	PromptFailures   int       `json:"prompt_failures"`
	ErrorCount       int       `json:"error_count"`
}

// NewService creates a new analysis service. notificationService may be nil.
func NewService(cfg *config.Config, repo BrandRepository, promptRunner PromptRunner, store snapshots.Store,
	scorer BlogScorer, notificationService notifications.NotificationInterface) *Service {
	return &Service{
		config:              cfg,
		repo:                repo,
		runner:              promptRunner,
		snapshots:           store,
		calculator:          sov.NewCalculator(nil),
		scorer:              scorer,
		notificationService: notificationService,
		locks:               newBrandLocks(),
		metrics:             &Metrics{},
		now:                 time.Now,
	}
}

// CreateBrand registers a brand with its prompt set and initial competitors
func (s *Service) CreateBrand(ctx context.Context, brand *models.Brand) error {
	brand.Name = strings.TrimSpace(brand.Name)
	seen := map[string]bool{strings.ToLower(brand.Name): true}
	for i := range brand.Competitors {
		name := strings.TrimSpace(brand.Competitors[i].Name)
		if name == "" || seen[strings.ToLower(name)] {
			return fmt.Errorf("%w: %q", models.ErrInvalidCompetitorName, brand.Competitors[i].Name)
		}
		seen[strings.ToLower(name)] = true
		brand.Competitors[i].Name = name
	}

	if err := s.repo.CreateBrand(ctx, brand); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"brand_id":    brand.ID,
		"brand":       brand.Name,
		"prompts":     len(brand.AllPrompts()),
		"competitors": len(brand.Competitors),
	}).Info("Brand created")
	return nil
}

func (s *Service) GetBrand(ctx context.Context, brandID string) (*models.Brand, error) {
	return s.repo.GetBrand(ctx, brandID)
}

// RunAnalysis queries the provider with every prompt of the brand and appends
// a snapshot recomputed from the brand's latest stored responses. When every
// prompt fails the computed snapshot is returned unpersisted with a
// *models.BatchError.
func (s *Service) RunAnalysis(ctx context.Context, brandID string) (*models.SOVSnapshot, error) {
	start := s.now()
	logger := logrus.WithField("brand_id", brandID)

	brand, err := s.repo.GetBrand(ctx, brandID)
	if err != nil {
		return nil, err
	}

	prompts := brand.AllPrompts()
	logger.Infof("Running %d prompts for %s", len(prompts), brand.Name)
	batch := s.runner.Run(ctx, prompts)
	failures := len(batch.Failures())

	var snap *models.SOVSnapshot
	batchErr := batch.Err()
	err = s.withBrandLock(ctx, brandID, func() error {
		// Competitors may have changed while the batch ran
		current, err := s.repo.GetBrand(ctx, brandID)
		if err != nil {
			return err
		}
		responses, err := s.currentResponses(ctx, current, batch)
		if err != nil {
			return err
		}
		at, err := s.takenAt(ctx, brandID)
		if err != nil {
			return err
		}

		snap = s.compute(current, responses, at)
		if batchErr != nil {
			return nil
		}
		if err := s.snapshots.Append(ctx, snap); err != nil {
			return fmt.Errorf("failed to append snapshot: %w", err)
		}
		return nil
	})

	s.recordRun(failures, err == nil && batchErr == nil)
	if err != nil {
		logger.WithError(err).Error("Analysis failed")
		return nil, err
	}
	if batchErr != nil {
		logger.WithError(batchErr).Error("Every prompt failed, snapshot not stored")
		return snap, batchErr
	}

	logger.WithFields(logrus.Fields{
		"brand_share":        snap.BrandShare,
		"total_mentions":     snap.TotalMentions,
		"calculation_method": snap.CalculationMethod,
		"failed_prompts":     failures,
		"duration":           s.now().Sub(start).String(),
	}).Info("Analysis completed")
	return snap, nil
}

// currentResponses merges stored responses with this run's successes, so a
// response whose save failed still counts. Responses for prompts no longer
// in the brand's set are dropped.
func (s *Service) currentResponses(ctx context.Context, brand *models.Brand, batch *runner.BatchResult) ([]*models.AIResponse, error) {
	stored, err := s.repo.ListResponses(ctx, brand.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}

	byPrompt := make(map[string]*models.AIResponse, len(stored))
	for _, r := range stored {
		byPrompt[r.PromptID] = r
	}
	if batch != nil {
		for _, r := range batch.Responses() {
			byPrompt[r.PromptID] = r
		}
	}

	var responses []*models.AIResponse
	for _, p := range brand.AllPrompts() {
		if r, ok := byPrompt[p.ID]; ok {
			responses = append(responses, r)
		}
	}
	return responses, nil
}

// takenAt never precedes the latest snapshot, so appends stay ordered under clock skew
func (s *Service) takenAt(ctx context.Context, brandID string) (time.Time, error) {
	at := s.now().UTC()
	latest, err := s.snapshots.Latest(ctx, brandID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read latest snapshot: %w", err)
	}
	if latest != nil && latest.TakenAt.After(at) {
		at = latest.TakenAt
	}
	return at, nil
}

func (s *Service) compute(brand *models.Brand, responses []*models.AIResponse, at time.Time) *models.SOVSnapshot {
	entities := brand.Entities(at)
	sets := mentions.ExtractAll(responses, entities)
	result := s.calculator.Calculate(brand.Name, entities, sets)
	return s.calculator.Snapshot(brand.ID, at, result)
}

// AddCompetitor adds a competitor and appends the recomputed snapshot. The
// competitor is kept only if the snapshot is stored.
func (s *Service) AddCompetitor(ctx context.Context, brandID, name string) (*models.SOVSnapshot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", models.ErrInvalidCompetitorName)
	}

	var snap *models.SOVSnapshot
	err := s.withBrandLock(ctx, brandID, func() error {
		brand, err := s.repo.GetBrand(ctx, brandID)
		if err != nil {
			return err
		}
		at, err := s.takenAt(ctx, brandID)
		if err != nil {
			return err
		}

		if strings.EqualFold(name, brand.Name) {
			return fmt.Errorf("%w: %q is the brand itself", models.ErrInvalidCompetitorName, name)
		}
		if _, exists := brand.ActiveCompetitor(name, at); exists {
			return fmt.Errorf("%w: %q is already tracked", models.ErrInvalidCompetitorName, name)
		}

		responses, err := s.currentResponses(ctx, brand, nil)
		if err != nil {
			return err
		}

		entry := models.CompetitorEntry{Name: name, AddedAt: at}
		updated := *brand
		updated.Competitors = append(append([]models.CompetitorEntry(nil), brand.Competitors...), entry)
		snap = s.compute(&updated, responses, at)

		return s.repo.AddCompetitor(ctx, brandID, entry, func() error {
			return s.snapshots.Append(ctx, snap)
		})
	})
	if err != nil {
		return nil, err
	}

	s.recordSnapshot()
	logrus.WithFields(logrus.Fields{
		"brand_id":    brandID,
		"competitor":  name,
		"brand_share": snap.BrandShare,
	}).Info("Competitor added")
	return snap, nil
}

// DeleteCompetitor soft-deletes a competitor and appends the recomputed
// snapshot. Earlier snapshots keep the competitor.
func (s *Service) DeleteCompetitor(ctx context.Context, brandID, name string) (*models.SOVSnapshot, error) {
	name = strings.TrimSpace(name)

	var snap *models.SOVSnapshot
	err := s.withBrandLock(ctx, brandID, func() error {
		brand, err := s.repo.GetBrand(ctx, brandID)
		if err != nil {
			return err
		}
		at, err := s.takenAt(ctx, brandID)
		if err != nil {
			return err
		}

		if _, exists := brand.ActiveCompetitor(name, at); !exists || name == "" {
			return fmt.Errorf("%w: %q", models.ErrCompetitorNotFound, name)
		}

		responses, err := s.currentResponses(ctx, brand, nil)
		if err != nil {
			return err
		}

		updated := *brand
		updated.Competitors = append([]models.CompetitorEntry(nil), brand.Competitors...)
		entry, _ := updated.ActiveCompetitor(name, at)
		removedAt := at
		entry.RemovedAt = &removedAt
		snap = s.compute(&updated, responses, at)

		return s.repo.RemoveCompetitor(ctx, brandID, name, at, func() error {
			return s.snapshots.Append(ctx, snap)
		})
	})
	if err != nil {
		return nil, err
	}

	s.recordSnapshot()
	logrus.WithFields(logrus.Fields{
		"brand_id":    brandID,
		"competitor":  name,
		"brand_share": snap.BrandShare,
	}).Info("Competitor removed")
	return snap, nil
}

// GetTrend returns the share-of-voice series of every entity over [from, to].
// Zero bounds are open.
func (s *Service) GetTrend(ctx context.Context, brandID string, from, to time.Time) (*models.Trend, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, fmt.Errorf("%w: trend range ends before it starts", models.ErrInvalidInput)
	}

	brand, err := s.repo.GetBrand(ctx, brandID)
	if err != nil {
		return nil, err
	}

	snaps, err := s.snapshots.Query(ctx, brandID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}

	return buildTrend(brand.Name, snaps, from, to), nil
}

func buildTrend(brandName string, snaps []*models.SOVSnapshot, from, to time.Time) *models.Trend {
	trend := &models.Trend{
		ChartData:      models.ChartData{Datasets: make(map[string][]models.TrendPoint)},
		BrandNames:     []string{brandName},
		TotalSnapshots: len(snaps),
		DateRange:      models.DateRange{From: from, To: to},
	}

	seen := map[string]bool{brandName: true}
	for _, snap := range snaps {
		for _, name := range snapshotEntities(snap) {
			if !seen[name] {
				seen[name] = true
				trend.BrandNames = append(trend.BrandNames, name)
			}
		}
	}

	for _, name := range trend.BrandNames {
		points := []models.TrendPoint{}
		for _, snap := range snaps {
			if share, ok := snap.ShareOfVoice[name]; ok {
				points = append(points, models.TrendPoint{X: snap.TakenAt, Y: share})
			}
		}
		trend.ChartData.Datasets[name] = points
	}

	if len(snaps) > 0 {
		trend.DateRange = models.DateRange{From: snaps[0].TakenAt, To: snaps[len(snaps)-1].TakenAt}
	}
	return trend
}

// snapshotEntities returns the entity order of a snapshot, falling back to
// the share map for records written without it
func snapshotEntities(snap *models.SOVSnapshot) []string {
	if len(snap.Entities) > 0 {
		return snap.Entities
	}
	names := make([]string, 0, len(snap.ShareOfVoice))
	for name := range snap.ShareOfVoice {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetLatestSOV returns the most recent snapshot of the brand
func (s *Service) GetLatestSOV(ctx context.Context, brandID string) (*models.LatestSOV, error) {
	if _, err := s.repo.GetBrand(ctx, brandID); err != nil {
		return nil, err
	}

	latest, err := s.snapshots.Latest(ctx, brandID)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest snapshot: %w", err)
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrNoSnapshots, brandID)
	}

	return &models.LatestSOV{
		ShareOfVoice:      latest.ShareOfVoice,
		MentionCounts:     latest.MentionCounts,
		TotalMentions:     latest.TotalMentions,
		BrandShare:        latest.BrandShare,
		AIVisibilityScore: latest.AIVisibilityScore,
		CalculationMethod: latest.CalculationMethod,
		TakenAt:           latest.TakenAt,
	}, nil
}

// ScoreBlog scores a blog post and stores the result for the brand
func (s *Service) ScoreBlog(ctx context.Context, brandID, url string) (*models.BlogScoreRecord, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("%w: url is required", models.ErrInvalidInput)
	}
	if _, err := s.repo.GetBrand(ctx, brandID); err != nil {
		return nil, err
	}
	return s.scorer.Score(ctx, brandID, url)
}

func (s *Service) ListBlogScores(ctx context.Context, brandID string) ([]*models.BlogScoreRecord, error) {
	if _, err := s.repo.GetBrand(ctx, brandID); err != nil {
		return nil, err
	}
	return s.repo.ListBlogScores(ctx, brandID)
}

// AnalyzeAll runs RunAnalysis for every brand and sends the resulting report
func (s *Service) AnalyzeAll(ctx context.Context) error {
	start := s.now()
	logrus.Info("Starting scheduled analysis")

	brands, err := s.repo.ListBrands(ctx)
	if err != nil {
		return fmt.Errorf("failed to list brands: %w", err)
	}

	report := &models.SOVReport{
		Period:   s.config.AnalysisSchedule,
		Brands:   make([]models.BrandSOVLine, len(brands)),
		Failures: make(map[string]string),
	}
	ok := make([]bool, len(brands))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(maxParallelBrands)
	for i, brand := range brands {
		g.Go(func() error {
			previous, err := s.snapshots.Latest(ctx, brand.ID)
			if err != nil {
				logrus.WithField("brand_id", brand.ID).WithError(err).Warn("Failed to read previous snapshot")
			}

			snap, err := s.RunAnalysis(ctx, brand.ID)
			if err != nil {
				mu.Lock()
				report.Failures[brand.ID] = err.Error()
				mu.Unlock()
				return nil
			}

			line := models.BrandSOVLine{
				BrandID:           brand.ID,
				BrandName:         brand.Name,
				BrandShare:        snap.BrandShare,
				TotalMentions:     snap.TotalMentions,
				CalculationMethod: snap.CalculationMethod,
			}
			if previous != nil {
				line.ShareChange = snap.BrandShare - previous.BrandShare
			}
			report.Brands[i] = line
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	lines := report.Brands[:0]
	for i, line := range report.Brands {
		if ok[i] {
			lines = append(lines, line)
		}
	}
	report.Brands = lines
	report.GeneratedAt = s.now().UTC()

	s.mu.Lock()
	s.metrics.LastRun = report.GeneratedAt
	s.metrics.LastRunDuration = s.now().Sub(start).String()
	s.metrics.BrandsAnalyzed = len(report.Brands)
	s.mu.Unlock()

	logrus.Infof("Scheduled analysis completed in %v: %d brands analyzed, %d failed",
		s.now().Sub(start), len(report.Brands), len(report.Failures))

	if s.notificationService == nil || len(brands) == 0 {
		return nil
	}
	if err := s.notificationService.SendReport(ctx, report); err != nil {
		logrus.Errorf("Failed to send report: %v", err)
		return err
	}
	return nil
}

func (s *Service) recordRun(promptFailures int, stored bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.Runs++
	s.metrics.PromptFailures += promptFailures
	if stored {
		s.metrics.SnapshotsWritten++
	} else {
		s.metrics.ErrorCount++
	}
}

func (s *Service) recordSnapshot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.SnapshotsWritten++
}

// GetMetrics returns current metrics as JSON
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.MarshalIndent(s.metrics, "", "  ")
	return string(data)
}
