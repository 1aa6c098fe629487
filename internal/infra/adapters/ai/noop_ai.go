package ai

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"formative-compliance/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter implements adapter.AIServiceAdapter for local/dev testing.
// It returns placeholder sections built from the prompt instead of calling a provider.
type NoopAIAdapter struct {
	log   *zerolog.Logger
	delay time.Duration
}

func NewNoopAIAdapter(logger *zerolog.Logger) *NoopAIAdapter {
	return &NoopAIAdapter{log: logger, delay: 100 * time.Millisecond}
}

func (a *NoopAIAdapter) Provider() string { return "noop" }

func (a *NoopAIAdapter) DefaultModel() string { return "noop-writer" }

// CountTokens approximates four characters per token.
func (a *NoopAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	n := 0
	for _, m := range messages {
		n += (len(m.Content) + 3) / 4
	}
	return n, nil
}

func (a *NoopAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	select {
	case <-time.After(a.delay):
	case <-ctx.Done():
		return "", adapter.Usage{}, ctx.Err()
	}

	prompt := ""
	if len(messages) > 0 {
		prompt = messages[len(messages)-1].Content
	}
	a.log.Debug().Str("model", modelOrDefault(model, a.DefaultModel())).Int("prompt_chars", len(prompt)).
		Msg("noop ai: returning placeholder document")

	var sb strings.Builder
	sb.WriteString("1. Purpose\n")
	sb.WriteString("This document sets out how the business meets its obligations under the applicable ")
	sb.WriteString("Australian legislation, standards and codes of practice for its industry.\n\n")
	sb.WriteString("2. Scope\n")
	sb.WriteString("It applies to all employees, contractors and volunteers engaged by the business, ")
	sb.WriteString("at every site and during every activity carried out on its behalf.\n\n")
	sb.WriteString("3. Responsibilities\n")
	sb.WriteString("Management is responsible for implementing this document, providing resources and ")
	sb.WriteString("training, and reviewing it at least annually. Workers must follow it and report issues.\n\n")
	sb.WriteString("4. Procedures\n")
	sb.WriteString("Records are kept securely, incidents are reported within required timeframes, and ")
	sb.WriteString("corrective actions are tracked to completion.\n\n")
	sb.WriteString("5. Request\n")
	sb.WriteString(prompt)
	sb.WriteString("\n")

	out := sb.String()
	u := adapter.Usage{PromptTokens: (len(prompt) + 3) / 4, CompletionTokens: (len(out) + 3) / 4}
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
	return out, u, nil
}
