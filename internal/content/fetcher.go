// Package content fetches blog pages and asks an AI provider to grade them.
package content

import (
	"context"
	"fmt"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/azure/brand-visibility-bot/internal/geo"
	"github.com/azure/brand-visibility-bot/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// maxPageChars bounds the text handed to the evaluator
const maxPageChars = 60000

// Fetcher downloads pages and converts their HTML to markdown text
type Fetcher struct {
	client *resty.Client
}

var _ geo.PageFetcher = (*Fetcher)(nil)

// NewFetcher creates a fetcher. An empty userAgent uses the bot default.
func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = "Brand-Visibility-Bot/1.0"
	}
	return &Fetcher{
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", userAgent).
			SetHeader("Accept", "text/html,application/xhtml+xml"),
	}
}

func (f *Fetcher) FetchPageText(ctx context.Context, url string) (string, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", fmt.Errorf("%w: unsupported url %q", models.ErrInvalidInput, url)
	}

	resp, err := f.client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrFetchFailed, err)
	}

	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("%w: %s returned status %d", models.ErrFetchFailed, url, resp.StatusCode())
	}

	text := htmlToText(resp.String())
	if text == "" {
		return "", fmt.Errorf("%w: %s has no readable content", models.ErrFetchFailed, url)
	}

	logrus.WithFields(logrus.Fields{
		"url":   url,
		"chars": len(text),
	}).Debug("Fetched page")

	return text, nil
}

func htmlToText(html string) string {
	markdown, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		// Fall back to the raw body
		markdown = html
	}
	markdown = strings.TrimSpace(markdown)
	if len(markdown) > maxPageChars {
		markdown = markdown[:maxPageChars]
	}
	return markdown
}
