package coach

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const redactedPlaceholder = "[redacted]"

// flaggedFallback replaces an evaluation the content filter refused.
const flaggedFallback = "This evaluation was withheld by the content filter. " +
	"Your delivery metrics are unaffected; record another take to get fresh feedback."

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s\-().]{7,}\d`)
)

// Reviewer is the redaction boundary between an internal evaluation and
// what the client is allowed to see. It strips PII patterns and runs the
// moderation check. Moderation outages fail open: a coaching session
// should not stall because the safety endpoint is down.
type Reviewer struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

func NewReviewer(apiKey, model string, logger *slog.Logger) *Reviewer {
	r := newReviewer(model, logger)
	if apiKey != "" {
		r.client = openai.NewClient(apiKey)
	}
	return r
}

func NewReviewerWithConfig(config openai.ClientConfig, model string, logger *slog.Logger) *Reviewer {
	r := newReviewer(model, logger)
	r.client = openai.NewClientWithConfig(config)
	return r
}

func newReviewer(model string, logger *slog.Logger) *Reviewer {
	if strings.TrimSpace(model) == "" {
		model = "omni-moderation-latest"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reviewer{model: model, logger: logger}
}

func (r *Reviewer) Review(ctx context.Context, evaluation string) (string, error) {
	redacted := emailPattern.ReplaceAllString(evaluation, redactedPlaceholder)
	redacted = phonePattern.ReplaceAllString(redacted, redactedPlaceholder)

	if r.client == nil {
		return redacted, nil
	}

	resp, err := r.client.Moderations(ctx, openai.ModerationRequest{
		Model: r.model,
		Input: redacted,
	})
	if err != nil {
		r.logger.Warn("moderation unavailable, passing evaluation through", "error", err)
		return redacted, nil
	}

	for _, result := range resp.Results {
		if result.Flagged {
			r.logger.Info("evaluation flagged by moderation, using fallback")
			return flaggedFallback, nil
		}
	}

	return redacted, nil
}
