package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/azure/brand-visibility-bot/internal/config"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// runTimeout bounds one scheduled pass over all brands
const runTimeout = 30 * time.Minute

// Analyzer runs share-of-voice analysis for every brand
type Analyzer interface {
	AnalyzeAll(ctx context.Context) error
}

// Service handles scheduling of analysis runs
type Service struct {
	config   *config.Config
	analyzer Analyzer
	cron     *cron.Cron
}

// NewService creates a new scheduler service. An unknown TimeZone falls back to UTC.
func NewService(cfg *config.Config, analyzer Analyzer) *Service {
	loc := time.UTC
	if cfg.TimeZone != "" {
		if l, err := time.LoadLocation(cfg.TimeZone); err == nil {
			loc = l
		} else {
			logrus.Warnf("Unknown timezone %q, using UTC", cfg.TimeZone)
		}
	}

	return &Service{
		config:   cfg,
		analyzer: analyzer,
		cron:     cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
	}
}

func cronExpression(schedule string) (string, error) {
	switch schedule {
	case "daily":
		// Run daily at 9 AM
		return "0 0 9 * * *", nil
	case "weekly":
		// Run weekly on Monday at 9 AM
		return "0 0 9 * * MON", nil
	default:
		return "", fmt.Errorf("unsupported schedule %q", schedule)
	}
}

// Start begins the scheduled analysis
func (s *Service) Start() error {
	expr, err := cronExpression(s.config.AnalysisSchedule)
	if err != nil {
		return err
	}

	_, err = s.cron.AddFunc(expr, s.run)
	if err != nil {
		return err
	}

	s.cron.Start()
	logrus.Infof("Scheduler started with %s schedule", s.config.AnalysisSchedule)
	return nil
}

func (s *Service) run() {
	logrus.Info("Starting scheduled analysis run")

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if err := s.analyzer.AnalyzeAll(ctx); err != nil {
		logrus.Errorf("Scheduled analysis run failed: %v", err)
	}
}

// Next returns the time of the next scheduled run, zero when not started
func (s *Service) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop stops the scheduler
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}
