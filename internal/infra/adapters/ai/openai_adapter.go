package ai

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/pkoukk/tiktoken-go"

	"formative-compliance/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*OpenAIAdapter)(nil)

// OpenAIConfig carries the sampling parameters used for every completion.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string // optional, for OpenAI-compatible gateways
	Model           string
	MaxOutputTokens int
	Temperature     float64
	TopP            float64
}

// OpenAIAdapter implements adapter.AIServiceAdapter using the Chat Completions API.
type OpenAIAdapter struct {
	client openai.Client
	cfg    OpenAIConfig

	encMu sync.Mutex
	encs  map[string]*tiktoken.Tiktoken
}

func NewOpenAIAdapter(cfg OpenAIConfig) (*OpenAIAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 3000
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.7
	}
	if cfg.TopP <= 0 {
		cfg.TopP = 0.9
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	return &OpenAIAdapter{
		client: openai.NewClient(opts...),
		cfg:    cfg,
		encs:   map[string]*tiktoken.Tiktoken{},
	}, nil
}

func (o *OpenAIAdapter) Provider() string { return "openai" }

func (o *OpenAIAdapter) DefaultModel() string { return o.cfg.Model }

// CountTokens follows the chat-format accounting: a fixed overhead per message plus the
// encoded role and content, and three tokens priming the reply.
func (o *OpenAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	enc, err := o.encoding(modelOrDefault(model, o.cfg.Model))
	if err != nil {
		return 0, err
	}
	const perMessage = 3
	n := 3
	for _, m := range messages {
		n += perMessage
		n += len(enc.Encode(m.Role, nil, nil))
		n += len(enc.Encode(m.Content, nil, nil))
	}
	return n, nil
}

func (o *OpenAIAdapter) encoding(model string) (*tiktoken.Tiktoken, error) {
	o.encMu.Lock()
	defer o.encMu.Unlock()
	if enc, ok := o.encs[model]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// newer model names are not always known to the tokenizer tables
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	o.encs[model] = enc
	return enc, nil
}

func (o *OpenAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	if len(messages) == 0 {
		return "", adapter.Usage{}, errors.New("openai: no messages")
	}
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(modelOrDefault(model, o.cfg.Model)),
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   openai.Int(int64(o.cfg.MaxOutputTokens)),
		Temperature: openai.Float(o.cfg.Temperature),
		TopP:        openai.Float(o.cfg.TopP),
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	u := adapter.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, u, nil
		}
	}
	return "", u, errors.New("openai: no choice content")
}

func toOpenAIMessages(msgs []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
