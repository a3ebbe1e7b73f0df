// Package runner executes a brand's prompt set against an AI provider with
// bounded concurrency, a per-call timeout and a batch deadline.
package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/azure/brand-visibility-bot/internal/models"
	"github.com/azure/brand-visibility-bot/internal/providers"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ResponseStore persists successful responses, replacing the previous answer
// for the same prompt
type ResponseStore interface {
	SaveResponse(ctx context.Context, response *models.AIResponse) error
}

// Options bounds a batch run
type Options struct {
	MaxConcurrency int
	// RPS limits outbound calls per second; zero disables the limiter
	RPS          float64
	CallTimeout  time.Duration
	BatchTimeout time.Duration
}

// Runner fans prompts out to a provider
type Runner struct {
	provider providers.AIProvider
	store    ResponseStore
	opts     Options
	limiter  *rate.Limiter
	now      func() time.Time
}

// PromptResult is the outcome of one prompt: exactly one of Response and
// Failure is set
type PromptResult struct {
	Prompt   models.Prompt
	Response *models.AIResponse
	Failure  *models.PromptFailure
}

// BatchResult holds one result per input prompt, in input order
type BatchResult struct {
	Results []PromptResult
}

// New creates a runner. store may be nil when responses need not be persisted.
func New(provider providers.AIProvider, store ResponseStore, opts Options) *Runner {
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	r := &Runner{
		provider: provider,
		store:    store,
		opts:     opts,
		now:      time.Now,
	}
	if opts.RPS > 0 {
		burst := int(opts.RPS)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return r
}

// Run executes every prompt and never drops one: prompts that cannot start
// before the batch deadline are reported as timeouts.
func (r *Runner) Run(ctx context.Context, prompts []models.Prompt) *BatchResult {
	start := r.now()
	batchCtx := ctx
	if r.opts.BatchTimeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, r.opts.BatchTimeout)
		defer cancel()
	}

	results := make([]PromptResult, len(prompts))
	sem := semaphore.NewWeighted(int64(r.opts.MaxConcurrency))
	var wg sync.WaitGroup

	for i, prompt := range prompts {
		if err := sem.Acquire(batchCtx, 1); err != nil {
			kind := classifyContext(batchCtx)
			for j := i; j < len(prompts); j++ {
				results[j] = r.fail(prompts[j], kind, err)
			}
			break
		}

		wg.Add(1)
		go func(i int, p models.Prompt) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = r.runOne(ctx, batchCtx, p)
		}(i, prompt)
	}

	wg.Wait()

	batch := &BatchResult{Results: results}
	logrus.WithFields(logrus.Fields{
		"provider":  r.provider.Name(),
		"prompts":   len(prompts),
		"succeeded": batch.Succeeded(),
		"failed":    len(prompts) - batch.Succeeded(),
		"duration":  r.now().Sub(start).String(),
	}).Info("Prompt batch completed")

	return batch
}

type outcome struct {
	completion *providers.Completion
	err        error
}

func (r *Runner) runOne(ctx, batchCtx context.Context, p models.Prompt) PromptResult {
	if err := batchCtx.Err(); err != nil {
		return r.fail(p, classifyContext(batchCtx), err)
	}
	if r.limiter != nil {
		if err := r.limiter.Wait(batchCtx); err != nil {
			return r.fail(p, classifyContext(batchCtx), err)
		}
	}

	callCtx, cancel := batchCtx, context.CancelFunc(func() {})
	if r.opts.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(batchCtx, r.opts.CallTimeout)
	}
	defer cancel()

	started := r.now()
	done := make(chan outcome, 1)
	go func() {
		completion, err := r.provider.Ask(callCtx, p.Text)
		done <- outcome{completion: completion, err: err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-callCtx.Done():
		select {
		case o = <-done:
		default:
			o.err = callCtx.Err()
		}
	}
	latency := r.now().Sub(started)

	if o.err == nil && (o.completion == nil || o.completion.Text == "") {
		o.err = models.ErrEmptyResponse
	}
	if o.err != nil {
		return r.fail(p, providers.Classify(o.err, callCtx.Err()), o.err)
	}

	response := &models.AIResponse{
		PromptID:  p.ID,
		BrandID:   p.BrandID,
		Provider:  r.provider.Name(),
		Text:      o.completion.Text,
		LatencyMs: latency.Milliseconds(),
		Success:   true,
		CreatedAt: r.now().UTC(),
	}

	if r.store != nil {
		// Saved against the caller's context so a response that made the
		// batch deadline is not lost to it
		if err := r.store.SaveResponse(ctx, response); err != nil {
			logrus.WithFields(logrus.Fields{
				"prompt_id": p.ID,
				"brand_id":  p.BrandID,
			}).WithError(err).Error("Failed to store response")
		}
	}

	return PromptResult{Prompt: p, Response: response}
}

func (r *Runner) fail(p models.Prompt, kind error, err error) PromptResult {
	if err == kind {
		err = nil
	}
	failure := &models.PromptFailure{PromptID: p.ID, Kind: kind, Err: err}
	logrus.WithFields(logrus.Fields{
		"prompt_id": p.ID,
		"brand_id":  p.BrandID,
		"provider":  r.provider.Name(),
		"kind":      kind.Error(),
	}).WithError(err).Warn("Prompt failed")
	return PromptResult{Prompt: p, Failure: failure}
}

// classifyContext names the failure of work that never reached the provider
func classifyContext(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return models.ErrProviderError
	}
	return models.ErrProviderTimeout
}

// Succeeded counts prompts with a response
func (b *BatchResult) Succeeded() int {
	n := 0
	for _, r := range b.Results {
		if r.Response != nil {
			n++
		}
	}
	return n
}

// Responses returns the successful responses in input order
func (b *BatchResult) Responses() []*models.AIResponse {
	var responses []*models.AIResponse
	for _, r := range b.Results {
		if r.Response != nil {
			responses = append(responses, r.Response)
		}
	}
	return responses
}

// Failures returns the failed prompts in input order
func (b *BatchResult) Failures() []*models.PromptFailure {
	var failures []*models.PromptFailure
	for _, r := range b.Results {
		if r.Failure != nil {
			failures = append(failures, r.Failure)
		}
	}
	return failures
}

// Err reports a *models.BatchError when a non-empty batch produced no response
func (b *BatchResult) Err() error {
	if len(b.Results) == 0 || b.Succeeded() > 0 {
		return nil
	}
	return &models.BatchError{Failures: b.Failures()}
}
