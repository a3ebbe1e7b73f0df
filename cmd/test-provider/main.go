package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/azure/brand-visibility-bot/internal/config"
	"github.com/azure/brand-visibility-bot/internal/content"
	"github.com/azure/brand-visibility-bot/internal/mentions"
	"github.com/azure/brand-visibility-bot/internal/providers"
	"github.com/joho/godotenv"
)

func main() {
	fmt.Println("🔍 Brand Visibility Bot - Provider Connectivity Test")
	fmt.Println("===================================================")

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.CallTimeout+cfg.FetchTimeout)
	defer cancel()

	fmt.Println("\n📡 Testing AI provider...")
	fmt.Println(strings.Repeat("-", 40))

	provider, err := providers.New(cfg)
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		os.Exit(1)
	}
	testProvider(ctx, provider, "Which CRM tools would you recommend for a small business?",
		[]string{"Salesforce", "HubSpot", "Zoho"})

	// Optional page fetch, pass a URL as the first argument
	if len(os.Args) > 1 {
		fmt.Println("\n🌐 Testing page fetcher...")
		fmt.Println(strings.Repeat("-", 40))
		testFetch(ctx, content.NewFetcher(cfg.FetchTimeout, cfg.UserAgent), os.Args[1])
	}

	fmt.Println("\n✅ Connectivity test completed!")
	fmt.Println("\n💡 Next steps:")
	fmt.Println("   • Configure missing API keys in .env file")
	fmt.Println("   • Run full bot with: make run")
	fmt.Println("   • Create a brand with: POST /brands")
}

func testProvider(ctx context.Context, provider providers.AIProvider, prompt string, entities []string) {
	fmt.Printf("🔸 Asking %s... ", provider.Name())

	start := time.Now()
	completion, err := provider.Ask(ctx, prompt)
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		return
	}

	fmt.Printf("✅ SUCCESS (%s, %d output tokens, %s)\n", completion.Model, completion.OutputTokens, time.Since(start).Round(time.Millisecond))

	counts := mentions.Extract(completion.Text, entities)
	for _, e := range entities {
		fmt.Printf("   📝 %s: %d mentions\n", e, counts[e])
	}
}

func testFetch(ctx context.Context, fetcher *content.Fetcher, url string) {
	fmt.Printf("🔸 Fetching %s... ", url)

	text, err := fetcher.FetchPageText(ctx, url)
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		return
	}

	fmt.Printf("✅ SUCCESS (%d characters)\n", len(text))
	sample := text
	if len(sample) > 120 {
		sample = sample[:120] + "..."
	}
	fmt.Printf("   📝 Sample: \"%s\"\n", strings.ReplaceAll(sample, "\n", " "))
}
