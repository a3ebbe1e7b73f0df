package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/azure/brand-visibility-bot/internal/config"
	"github.com/azure/brand-visibility-bot/internal/models"
	"github.com/azure/brand-visibility-bot/internal/providers"
	"github.com/azure/brand-visibility-bot/internal/repository"
	"github.com/azure/brand-visibility-bot/internal/runner"
	"github.com/azure/brand-visibility-bot/internal/snapshots"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// scriptedProvider answers prompts from a table and fails the ones listed
type scriptedProvider struct {
	mu      sync.Mutex
	answers map[string]string
	failing map[string]bool
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Ask(ctx context.Context, prompt string) (*providers.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing[prompt] {
		return nil, fmt.Errorf("%w: status 500", models.ErrProviderError)
	}
	return &providers.Completion{Text: p.answers[prompt]}, nil
}

func (p *scriptedProvider) fail(prompts ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failing = make(map[string]bool)
	for _, prompt := range prompts {
		p.failing[prompt] = true
	}
}

// MockBlogScorer is a mock implementation of BlogScorer
type MockBlogScorer struct {
	mock.Mock
}

func (m *MockBlogScorer) Score(ctx context.Context, brandID, url string) (*models.BlogScoreRecord, error) {
	args := m.Called(ctx, brandID, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BlogScoreRecord), args.Error(1)
}

// MockNotificationService is a mock implementation of NotificationInterface
type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) SendReport(ctx context.Context, report *models.SOVReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

// failingStore rejects every append
type failingStore struct {
	snapshots.Store
}

func (failingStore) Append(ctx context.Context, snap *models.SOVSnapshot) error {
	return errors.New("blob write failed")
}

type fixture struct {
	service  *Service
	repo     *repository.Repository
	provider *scriptedProvider
	store    snapshots.Store
	scorer   *MockBlogScorer
	notifier *MockNotificationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := repository.Open(t.TempDir())
	require.NoError(t, err)
	repo := repository.New(db)
	t.Cleanup(func() { repo.Close() })

	provider := &scriptedProvider{answers: map[string]string{
		"best crm":      "Acme and Foo are both solid.",
		"cheapest crm":  "Acme is the cheapest.",
		"best helpdesk": "Baz is popular for helpdesks.",
	}}
	cfg := &config.Config{
		AnalysisSchedule: "daily",
		LockTimeout:      50 * time.Millisecond,
		LockRetries:      1,
	}
	store := snapshots.NewMemoryStore()
	r := runner.New(provider, repo, runner.Options{MaxConcurrency: 2, CallTimeout: time.Second})
	f := &fixture{
		repo:     repo,
		provider: provider,
		store:    store,
		scorer:   new(MockBlogScorer),
		notifier: new(MockNotificationService),
	}
	f.service = NewService(cfg, repo, r, store, f.scorer, f.notifier)
	return f
}

func (f *fixture) createBrand(t *testing.T) *models.Brand {
	t.Helper()
	brand := &models.Brand{
		Name: "Acme",
		Categories: []models.Category{
			{Name: "CRM", Prompts: []models.Prompt{{Text: "best crm"}, {Text: "cheapest crm"}}},
			{Name: "Support", Prompts: []models.Prompt{{Text: "best helpdesk"}}},
		},
		Competitors: []models.CompetitorEntry{{Name: "Foo"}, {Name: "Bar"}},
	}
	require.NoError(t, f.service.CreateBrand(context.Background(), brand))
	return brand
}

func TestRunAnalysis(t *testing.T) {
	f := newFixture(t)
	brand := f.createBrand(t)

	snap, err := f.service.RunAnalysis(context.Background(), brand.ID)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"Acme": 2, "Foo": 1, "Bar": 0}, snap.MentionCounts)
	assert.Equal(t, 3, snap.TotalMentions)
	assert.InDelta(t, 66.7, snap.BrandShare, 0.05)
	assert.Equal(t, snap.BrandShare, snap.AIVisibilityScore)
	assert.Equal(t, models.MethodEntityCount, snap.CalculationMethod)

	latest, err := f.service.GetLatestSOV(context.Background(), brand.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ShareOfVoice, latest.ShareOfVoice)
	assert.Equal(t, snap.BrandShare, latest.BrandShare)

	responses, err := f.repo.ListResponses(context.Background(), brand.ID)
	require.NoError(t, err)
	assert.Len(t, responses, 3)

	assert.Contains(t, f.service.GetMetrics(), `"snapshots_written": 1`)
}

func TestRunAnalysis_AllPromptsFailed(t *testing.T) {
	f := newFixture(t)
	brand := f.createBrand(t)
	f.provider.fail("best crm", "cheapest crm", "best helpdesk")

	snap, err := f.service.RunAnalysis(context.Background(), brand.ID)

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrAllPromptsFailed)
	var batchErr *models.BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Len(t, batchErr.Failures, 3)

	// Partial data comes back but nothing is stored
	require.NotNil(t, snap)
	assert.Equal(t, models.MethodFallbackDistribution, snap.CalculationMethod)
	_, err = f.service.GetLatestSOV(context.Background(), brand.ID)
	assert.ErrorIs(t, err, models.ErrNoSnapshots)
}

func TestRunAnalysis_FailedPromptKeepsPreviousAnswer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	brand := f.createBrand(t)

	first, err := f.service.RunAnalysis(ctx, brand.ID)
	require.NoError(t, err)

	f.provider.fail("best crm")
	second, err := f.service.RunAnalysis(ctx, brand.ID)
	require.NoError(t, err)

	assert.Equal(t, first.MentionCounts, second.MentionCounts)
	assert.False(t, second.TakenAt.Before(first.TakenAt))
}

func TestRunAnalysis_NoPromptsUsesFallback(t *testing.T) {
	f := newFixture(t)
	brand := &models.Brand{Name: "Solo", Competitors: []models.CompetitorEntry{{Name: "Rival"}}}
	require.NoError(t, f.service.CreateBrand(context.Background(), brand))

	snap, err := f.service.RunAnalysis(context.Background(), brand.ID)

	require.NoError(t, err)
	assert.Equal(t, models.MethodFallbackDistribution, snap.CalculationMethod)
	assert.Equal(t, 50.0, snap.ShareOfVoice["Solo"])
	assert.Equal(t, 50.0, snap.ShareOfVoice["Rival"])
}

func TestRunAnalysis_UnknownBrand(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.RunAnalysis(context.Background(), "missing")

	assert.ErrorIs(t, err, models.ErrBrandNotFound)
}

func TestCompetitorAddThenDeleteRestoresDistribution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	brand := f.createBrand(t)

	original, err := f.service.RunAnalysis(ctx, brand.ID)
	require.NoError(t, err)

	added, err := f.service.AddCompetitor(ctx, brand.ID, "Baz")
	require.NoError(t, err)
	assert.Equal(t, 1, added.MentionCounts["Baz"])
	assert.Equal(t, 4, added.TotalMentions)
	assert.InDelta(t, 50.0, added.BrandShare, 1e-9)

	removed, err := f.service.DeleteCompetitor(ctx, brand.ID, "baz")
	require.NoError(t, err)
	assert.Equal(t, original.ShareOfVoice, removed.ShareOfVoice)
	assert.Equal(t, original.MentionCounts, removed.MentionCounts)

	trend, err := f.service.GetTrend(ctx, brand.ID, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, trend.TotalSnapshots)
	assert.Equal(t, []string{"Acme", "Foo", "Bar", "Baz"}, trend.BrandNames)
	assert.Len(t, trend.ChartData.Datasets["Acme"], 3)
	assert.Len(t, trend.ChartData.Datasets["Baz"], 1)
	assert.Equal(t, added.TakenAt, trend.ChartData.Datasets["Baz"][0].X)
	assert.Equal(t, trend.ChartData.Datasets["Acme"][0].X, trend.DateRange.From)
	assert.Equal(t, removed.TakenAt, trend.DateRange.To)
}

func TestAddCompetitor_InvalidNames(t *testing.T) {
	f := newFixture(t)
	brand := f.createBrand(t)

	for _, name := range []string{"", "   ", "acme", "FOO"} {
		_, err := f.service.AddCompetitor(context.Background(), brand.ID, name)
		assert.ErrorIs(t, err, models.ErrInvalidCompetitorName, "name %q", name)
	}
}

func TestAddCompetitor_ReaddAfterDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	brand := f.createBrand(t)

	_, err := f.service.DeleteCompetitor(ctx, brand.ID, "Bar")
	require.NoError(t, err)
	snap, err := f.service.AddCompetitor(ctx, brand.ID, "Bar")
	require.NoError(t, err)

	assert.Equal(t, []string{"Acme", "Foo", "Bar"}, snap.Entities)
	got, err := f.service.GetBrand(ctx, brand.ID)
	require.NoError(t, err)
	assert.Len(t, got.Competitors, 3)
}

func TestDeleteCompetitor_NotFound(t *testing.T) {
	f := newFixture(t)
	brand := f.createBrand(t)

	_, err := f.service.DeleteCompetitor(context.Background(), brand.ID, "Nobody")

	assert.ErrorIs(t, err, models.ErrCompetitorNotFound)
}

func TestAddCompetitor_RolledBackWhenAppendFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	brand := f.createBrand(t)
	f.service.snapshots = failingStore{Store: f.store}

	_, err := f.service.AddCompetitor(ctx, brand.ID, "Baz")
	require.Error(t, err)

	got, err := f.service.GetBrand(ctx, brand.ID)
	require.NoError(t, err)
	assert.Len(t, got.Competitors, 2)
}

func TestBrandLockConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	brand := f.createBrand(t)

	require.NoError(t, f.service.locks.acquire(ctx, brand.ID, time.Second))
	_, err := f.service.AddCompetitor(ctx, brand.ID, "Baz")
	f.service.locks.release(brand.ID)

	assert.ErrorIs(t, err, models.ErrSnapshotWriteConflict)

	// Other brands are not blocked by a held lock
	other := &models.Brand{Name: "Other"}
	require.NoError(t, f.service.CreateBrand(ctx, other))
	require.NoError(t, f.service.locks.acquire(ctx, brand.ID, time.Second))
	_, err = f.service.AddCompetitor(ctx, other.ID, "Rival")
	f.service.locks.release(brand.ID)
	assert.NoError(t, err)
}

func TestConcurrentCompetitorChangesStayOrdered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	brand := f.createBrand(t)
	f.service.config.LockTimeout = 2 * time.Second

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.service.AddCompetitor(ctx, brand.ID, fmt.Sprintf("Rival %d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	snaps, err := f.store.Query(ctx, brand.ID, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, snaps, 5)
	for i := 1; i < len(snaps); i++ {
		assert.False(t, snaps[i].TakenAt.Before(snaps[i-1].TakenAt))
		assert.Greater(t, len(snaps[i].Entities), len(snaps[i-1].Entities))
	}
	assert.Len(t, snaps[4].Entities, 8)
}

func TestTakenAtNeverPrecedesLatest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	brand := f.createBrand(t)

	first, err := f.service.RunAnalysis(ctx, brand.ID)
	require.NoError(t, err)

	// Clock jumps backwards
	f.service.now = func() time.Time { return first.TakenAt.Add(-time.Hour) }
	second, err := f.service.AddCompetitor(ctx, brand.ID, "Baz")
	require.NoError(t, err)

	assert.Equal(t, first.TakenAt, second.TakenAt)
}

func TestGetTrend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	brand := f.createBrand(t)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	empty, err := f.service.GetTrend(ctx, brand.ID, from, to)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalSnapshots)
	assert.Equal(t, models.DateRange{From: from, To: to}, empty.DateRange)
	assert.Equal(t, []string{"Acme"}, empty.BrandNames)

	_, err = f.service.GetTrend(ctx, brand.ID, to, from)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = f.service.GetTrend(ctx, "missing", from, to)
	assert.ErrorIs(t, err, models.ErrBrandNotFound)
}

func TestBuildTrend_LegacySnapshotsWithoutEntities(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	snaps := []*models.SOVSnapshot{
		{TakenAt: at, ShareOfVoice: map[string]float64{"Acme": 40, "Zed": 35, "Bee": 25}},
	}

	trend := buildTrend("Acme", snaps, time.Time{}, time.Time{})

	assert.Equal(t, []string{"Acme", "Bee", "Zed"}, trend.BrandNames)
	assert.Equal(t, []models.TrendPoint{{X: at, Y: 35}}, trend.ChartData.Datasets["Zed"])
}

func TestScoreBlog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	brand := f.createBrand(t)
	rec := &models.BlogScoreRecord{BrandID: brand.ID, URL: "https://acme.example/post", OverallScore: 7.5}
	f.scorer.On("Score", mock.Anything, brand.ID, "https://acme.example/post").Return(rec, nil)

	got, err := f.service.ScoreBlog(ctx, brand.ID, " https://acme.example/post ")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = f.service.ScoreBlog(ctx, brand.ID, "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = f.service.ScoreBlog(ctx, "missing", "https://acme.example/post")
	assert.ErrorIs(t, err, models.ErrBrandNotFound)
	f.scorer.AssertNumberOfCalls(t, "Score", 1)
}

func TestCreateBrand_RejectsDuplicateCompetitors(t *testing.T) {
	f := newFixture(t)

	err := f.service.CreateBrand(context.Background(), &models.Brand{
		Name:        "Acme",
		Competitors: []models.CompetitorEntry{{Name: "Foo"}, {Name: "foo"}},
	})

	assert.ErrorIs(t, err, models.ErrInvalidCompetitorName)
}

func TestAnalyzeAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	brand := f.createBrand(t)
	broken := &models.Brand{
		Name:       "Broken",
		Categories: []models.Category{{Name: "X", Prompts: []models.Prompt{{Text: "unanswerable"}}}},
	}
	require.NoError(t, f.service.CreateBrand(ctx, broken))
	f.provider.fail("unanswerable")

	f.notifier.On("SendReport", mock.Anything, mock.MatchedBy(func(r *models.SOVReport) bool {
		return r.Period == "daily" &&
			len(r.Brands) == 1 &&
			r.Brands[0].BrandID == brand.ID &&
			r.Failures[broken.ID] != ""
	})).Return(nil)

	require.NoError(t, f.service.AnalyzeAll(ctx))

	f.notifier.AssertExpectations(t)
	assert.Contains(t, f.service.GetMetrics(), `"brands_analyzed": 1`)
}
