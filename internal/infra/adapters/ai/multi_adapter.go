package ai

import (
	"context"
	"errors"
	"strings"

	"formative-compliance/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*MultiAIAdapter)(nil)

var ErrNoProvider = errors.New("ai: no provider configured")

// MultiAIAdapter routes each call to a provider by model name. The default provider serves
// unrecognised models and an empty model.
type MultiAIAdapter struct {
	defaultProvider string // e.g., "openai" or "gemini"
	byProvider      map[string]adapter.AIServiceAdapter
	modelToProvider map[string]string // model -> provider ("openai" | "gemini")
}

func NewMultiAIAdapter(
	defaultProvider string,
	byProvider map[string]adapter.AIServiceAdapter,
	modelToProvider map[string]string,
) *MultiAIAdapter {
	return &MultiAIAdapter{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      byProvider,
		modelToProvider: modelToProvider,
	}
}

func (m *MultiAIAdapter) resolveProvider(model string) string {
	if p := m.modelToProvider[model]; p != "" {
		return strings.ToLower(p)
	}
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "gemini"):
		return "gemini"
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"):
		return "openai"
	default:
		return m.defaultProvider
	}
}

func (m *MultiAIAdapter) pick(model string) adapter.AIServiceAdapter {
	if a := m.byProvider[m.resolveProvider(model)]; a != nil {
		return a
	}
	if a := m.byProvider[m.defaultProvider]; a != nil {
		return a
	}
	// last resort: first available
	for _, a := range m.byProvider {
		if a != nil {
			return a
		}
	}
	return nil
}

func (m *MultiAIAdapter) Provider() string {
	if a := m.pick(""); a != nil {
		return a.Provider()
	}
	return m.defaultProvider
}

func (m *MultiAIAdapter) DefaultModel() string {
	if a := m.pick(""); a != nil {
		return a.DefaultModel()
	}
	return ""
}

func (m *MultiAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	a := m.pick(model)
	if a == nil {
		return 0, ErrNoProvider
	}
	// a model meant for another provider is replaced by the chosen provider's default
	if model != "" && m.resolveProvider(model) != a.Provider() {
		model = ""
	}
	return a.CountTokens(ctx, model, messages)
}

func (m *MultiAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	a := m.pick(model)
	if a == nil {
		return "", adapter.Usage{}, ErrNoProvider
	}
	if model != "" && m.resolveProvider(model) != a.Provider() {
		model = ""
	}
	return a.ChatWithUsage(ctx, model, messages)
}
