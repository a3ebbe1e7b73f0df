package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/azure/brand-visibility-bot/internal/analysis"
	"github.com/azure/brand-visibility-bot/internal/config"
	"github.com/azure/brand-visibility-bot/internal/models"
	"github.com/azure/brand-visibility-bot/internal/providers"
	"github.com/azure/brand-visibility-bot/internal/repository"
	"github.com/azure/brand-visibility-bot/internal/runner"
	"github.com/azure/brand-visibility-bot/internal/snapshots"
	"github.com/azure/brand-visibility-bot/internal/storage"
)

const outputDir = "test_output"

// cannedProvider answers prompts from a fixed table
type cannedProvider struct {
	answers map[string]string
}

func (p *cannedProvider) Name() string { return "canned" }

func (p *cannedProvider) Ask(ctx context.Context, prompt string) (*providers.Completion, error) {
	text, ok := p.answers[prompt]
	if !ok {
		return nil, fmt.Errorf("%w: no canned answer", models.ErrEmptyResponse)
	}
	return &providers.Completion{Text: text, Model: "canned-v1"}, nil
}

// TestNotificationService outputs reports to terminal and files
type TestNotificationService struct{}

func (t *TestNotificationService) SendReport(ctx context.Context, report *models.SOVReport) error {
	// Print to terminal
	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Println("📊 AI SHARE OF VOICE REPORT")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("📅 Period: %s\n", report.Period)
	fmt.Printf("🕒 Generated: %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))

	fmt.Println("\n📍 Brands:")
	for _, line := range report.Brands {
		marker := ""
		if line.CalculationMethod == models.MethodFallbackDistribution {
			marker = " (estimated)"
		}
		fmt.Printf("   • %-15s %5.1f%% (%+.1f pts), %d mentions%s\n",
			line.BrandName+":", line.BrandShare, line.ShareChange, line.TotalMentions, marker)
	}

	if len(report.Failures) > 0 {
		fmt.Println("\n⚠️  Failed analyses:")
		for brand, reason := range report.Failures {
			fmt.Printf("   • %s: %s\n", brand, reason)
		}
	}

	// Save to JSON file
	if err := t.saveReportToFile(report); err != nil {
		fmt.Printf("\n⚠️  Warning: Could not save to file: %v\n", err)
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	return nil
}

func (t *TestNotificationService) saveReportToFile(report *models.SOVReport) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	timestamp := report.GeneratedAt.Format("2006-01-02_15-04-05")
	filename := filepath.Join(outputDir, fmt.Sprintf("sov_report_%s.json", timestamp))

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return err
	}

	fmt.Printf("\n💾 Report saved to: %s\n", filename)
	return nil
}

func main() {
	fmt.Println("🤖 Brand Visibility Bot - Test Report Generator")
	fmt.Println("==============================================")

	ctx := context.Background()

	// Create test configuration
	cfg := &config.Config{
		AnalysisSchedule: "weekly",
		MaxConcurrency:   2,
		CallTimeout:      5 * time.Second,
		BatchTimeout:     time.Minute,
		LockTimeout:      time.Second,
		LockRetries:      1,
	}

	dataDir, err := os.MkdirTemp("", "brand-visibility-report")
	if err != nil {
		fail("creating data dir", err)
	}
	defer os.RemoveAll(dataDir)

	db, err := repository.Open(dataDir)
	if err != nil {
		fail("opening database", err)
	}
	repo := repository.New(db)
	defer repo.Close()

	fileStorage, err := storage.NewFileStorage(filepath.Join(outputDir, "snapshots"))
	if err != nil {
		fail("creating snapshot storage", err)
	}

	provider := &cannedProvider{answers: map[string]string{
		"What is the best CRM for startups?":         "Contoso CRM and Fabrikam are the usual picks. Contoso CRM wins on price.",
		"Which CRM integrates best with email?":      "Fabrikam has the deepest email integration, followed by Contoso CRM.",
		"Recommend a helpdesk tool for a small team": "Northwind Desk is popular. Contoso CRM also ships a helpdesk module.",
	}}
	promptRunner := runner.New(provider, repo, runner.Options{
		MaxConcurrency: cfg.MaxConcurrency,
		CallTimeout:    cfg.CallTimeout,
		BatchTimeout:   cfg.BatchTimeout,
	})

	service := analysis.NewService(cfg, repo, promptRunner, snapshots.NewBlobStore(fileStorage), nil, &TestNotificationService{})

	brand := &models.Brand{
		Name:   "Contoso CRM",
		Domain: "contoso.example",
		Categories: []models.Category{
			{Name: "CRM", Prompts: []models.Prompt{
				{Text: "What is the best CRM for startups?"},
				{Text: "Which CRM integrates best with email?"},
			}},
			{Name: "Support", Prompts: []models.Prompt{
				{Text: "Recommend a helpdesk tool for a small team"},
			}},
		},
		Competitors: []models.CompetitorEntry{{Name: "Fabrikam"}},
	}
	if err := service.CreateBrand(ctx, brand); err != nil {
		fail("creating brand", err)
	}

	fmt.Printf("\n📊 Running analysis for %s across %d prompts...\n", brand.Name, len(brand.AllPrompts()))
	if err := service.AnalyzeAll(ctx); err != nil {
		fail("running analysis", err)
	}

	fmt.Println("\n➕ Adding competitor Northwind Desk...")
	snap, err := service.AddCompetitor(ctx, brand.ID, "Northwind Desk")
	if err != nil {
		fail("adding competitor", err)
	}
	printSnapshot(snap)

	trend, err := service.GetTrend(ctx, brand.ID, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		fail("building trend", err)
	}
	fmt.Printf("\n📈 Trend has %d snapshots for %s\n", trend.TotalSnapshots, strings.Join(trend.BrandNames, ", "))

	fmt.Println("\n✅ Test report generation completed!")
	fmt.Println("\n💡 Next steps:")
	fmt.Println("   • Check the 'test_output' directory for saved JSON report and snapshots")
	fmt.Println("   • Run 'go test ./internal/analysis -v' for more detailed tests")
	fmt.Println("   • Configure real API keys and run the full bot with 'go run cmd/bot/main.go'")
}

func printSnapshot(snap *models.SOVSnapshot) {
	for _, e := range snap.Entities {
		fmt.Printf("   • %-15s %5.1f%% (%d mentions)\n", e+":", snap.ShareOfVoice[e], snap.MentionCounts[e])
	}
}

func fail(step string, err error) {
	fmt.Printf("❌ Error %s: %v\n", step, err)
	os.Exit(1)
}
