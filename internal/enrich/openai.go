package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"github.com/hyperjump/torikomi/internal/models"
)

// LLMClient talks to an OpenAI-compatible chat API (Ollama, llama.cpp,
// vLLM, or the hosted service) through langchaingo.
type LLMClient struct {
	model       llms.Model
	defaultCost float64
	logger      *zap.Logger
}

// LLMClientOption configures an LLMClient.
type LLMClientOption func(*LLMClient)

// WithClientLogger sets the logger used by the client.
func WithClientLogger(logger *zap.Logger) LLMClientOption {
	return func(c *LLMClient) {
		c.logger = logger
	}
}

// NewLLMClient creates a client for the OpenAI-compatible endpoint at host.
// The "none" token satisfies local services that do not check authentication.
// defaultCost is charged per call when the service reports no token usage.
func NewLLMClient(host, model string, defaultCost float64, opts ...LLMClientOption) (*LLMClient, error) {
	m, err := openai.New(
		openai.WithBaseURL(host),
		openai.WithToken("none"),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create enrichment client: %w", err)
	}

	c := &LLMClient{
		model:       m,
		defaultCost: defaultCost,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Summarize implements Client.
func (c *LLMClient) Summarize(ctx context.Context, text string) (string, float64, error) {
	resp, err := c.generate(ctx, summaryPrompt, text)
	if err != nil {
		return "", 0, err
	}
	if len(resp.Choices) < 1 {
		return "", c.cost(nil), wrap(ErrUnavailable, fmt.Errorf("model returned no choices"))
	}
	choice := resp.Choices[0]
	return strings.TrimSpace(choice.Content), c.cost(choice.GenerationInfo), nil
}

// entityList matches the JSON structure the entity prompt asks for.
type entityList struct {
	Entities []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"entities"`
}

// Entities implements Client. Entities whose reported type is not one of
// the known types are folded into the topic bucket rather than dropped.
func (c *LLMClient) Entities(ctx context.Context, text string) (map[models.EntityType][]string, float64, error) {
	resp, err := c.generate(ctx, buildEntityPrompt(), text, llms.WithJSONMode())
	if err != nil {
		return nil, 0, err
	}
	if len(resp.Choices) < 1 {
		return nil, c.cost(nil), wrap(ErrUnavailable, fmt.Errorf("model returned no choices"))
	}
	choice := resp.Choices[0]
	cost := c.cost(choice.GenerationInfo)

	raw := repairJSON(stripFences(choice.Content))
	var parsed entityList
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		c.logger.Warn("unparseable entity response",
			zap.String("response", raw),
			zap.Error(err))
		// Re-asking a nondeterministic model can succeed, so this is retryable.
		return nil, cost, wrap(ErrUnavailable, fmt.Errorf("entity response is not valid JSON: %w", err))
	}

	entities := make(map[models.EntityType][]string)
	seen := make(map[string]bool)
	for _, e := range parsed.Entities {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			continue
		}
		typ := models.EntityType(strings.ToLower(strings.TrimSpace(e.Type)))
		if !knownEntityType(typ) {
			typ = models.EntityTopic
		}
		key := string(typ) + "\x00" + strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		entities[typ] = append(entities[typ], name)
	}
	return entities, cost, nil
}

func (c *LLMClient) generate(ctx context.Context, system, text string, extra ...llms.CallOption) (*llms.ContentResponse, error) {
	content := []llms.MessageContent{
		{
			Role:  schema.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  schema.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(text)},
		},
	}
	opts := append([]llms.CallOption{llms.WithTemperature(0.0)}, extra...)
	resp, err := c.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		return nil, classify(err)
	}
	return resp, nil
}

// cost reads the token usage the service reported, falling back to the
// configured default when usage is absent.
func (c *LLMClient) cost(info map[string]any) float64 {
	if info != nil {
		if v, ok := info["TotalTokens"]; ok {
			switch n := v.(type) {
			case int:
				return float64(n)
			case float64:
				return n
			}
		}
	}
	return c.defaultCost
}

func knownEntityType(t models.EntityType) bool {
	for _, k := range models.KnownEntityTypes {
		if k == t {
			return true
		}
	}
	return false
}
