// Package ai wraps the Anthropic API for the one thing the core needs it
// for: summarizing a completed task's raw Assistant CLI output into a
// concise result_summary when the CLI itself doesn't emit one.
package ai

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"
)

// Summarizer condenses long task output into a short summary via the
// Anthropic API, with simple retry/backoff. Spend limits live in the
// budget accountant, not here.
type Summarizer struct {
	client     *anthropic.Client
	model      string
	maxRetries int
	limiter    *rate.Limiter
}

// summaryRateLimit caps Summarizer calls at one every two seconds, since
// wise-magpie runs one task at a time and a burst of retries after a
// transient API error shouldn't hammer the account's own separate
// (non-Assistant-CLI) Anthropic API rate limit.
const summaryRateLimit = 2 * time.Second

// NewSummarizer builds a Summarizer from apiKey. If apiKey is empty,
// NewSummarizer returns nil: the executor falls back to plain truncation
// when no summarizer is configured.
func NewSummarizer(apiKey, model string) *Summarizer {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = "claude-haiku-4-5-20251001"
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Summarizer{
		client:     &client,
		model:      model,
		maxRetries: 3,
		limiter:    rate.NewLimiter(rate.Every(summaryRateLimit), 1),
	}
}

// NewSummarizerFromEnv builds a Summarizer from ANTHROPIC_API_KEY.
func NewSummarizerFromEnv(model string) *Summarizer {
	return NewSummarizer(os.Getenv("ANTHROPIC_API_KEY"), model)
}

// Summarize asks the model to condense output (the Assistant CLI's
// captured stdout/stderr for a task) into a result summary no longer than
// maxLen characters. Short output is returned unchanged.
func (s *Summarizer) Summarize(ctx context.Context, title, output string, maxLen int) (string, error) {
	if len(output) <= maxLen {
		return output, nil
	}

	prompt := fmt.Sprintf(
		"Summarize the following coding agent output for the task %q in at most %d characters. "+
			"Describe what was done, key decisions, and any warnings. Output only the summary.\n\n%s",
		title, maxLen, output)

	var text string
	backoff := 500 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("ai: rate limit wait: %w", err)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		resp, err := s.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(s.model),
			MaxTokens: 1024,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		cancel()
		if err == nil {
			var b strings.Builder
			for _, block := range resp.Content {
				if block.Type == "text" {
					b.WriteString(block.Text)
				}
			}
			text = b.String()
			break
		}
		lastErr = err
		if attempt < s.maxRetries {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	if text == "" && lastErr != nil {
		return "", fmt.Errorf("ai: summarize: %w", lastErr)
	}
	if len(text) > maxLen {
		text = text[:maxLen]
	}
	return text, nil
}
