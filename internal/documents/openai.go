package documents

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"

	"github.com/hopl-labs/hopl-backend/pkg/config"
	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
)

const (
	defaultOpenAIModel   = "gpt-4o-mini"
	defaultOpenAITimeout = 45 * time.Second
	retryDelay           = 500 * time.Millisecond

	systemPrompt = "You are an expert legal and business document writer. Generate professional, comprehensive documents ready for immediate use. Output ONLY the document content with proper formatting using Markdown."
)

var errOpenAIKeyRequired = errors.New("openai api key is required")

// OpenAIGenerator drafts documents through the chat completions API, using the
// filled template as the outline.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	maxRetries  uint64
	retryDelay  time.Duration
}

type openAIOptions struct {
	httpClient *http.Client
	retryDelay time.Duration
}

// OpenAIOption configures optional generator behavior.
type OpenAIOption func(*openAIOptions)

// WithOpenAIHTTPClient overrides the default HTTP client.
func WithOpenAIHTTPClient(client *http.Client) OpenAIOption {
	return func(o *openAIOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithRetryDelay overrides the pause before a retry.
func WithRetryDelay(d time.Duration) OpenAIOption {
	return func(o *openAIOptions) {
		if d > 0 {
			o.retryDelay = d
		}
	}
}

// NewOpenAIGenerator builds a generator from config.
func NewOpenAIGenerator(cfg config.OpenAIConfig, opts ...OpenAIOption) (*OpenAIGenerator, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errOpenAIKeyRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultOpenAITimeout
	}
	options := openAIOptions{
		httpClient: &http.Client{Timeout: timeout},
		retryDelay: retryDelay,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	clientCfg := openai.DefaultConfig(key)
	if baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	clientCfg.HTTPClient = options.httpClient

	g := &OpenAIGenerator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       strings.TrimSpace(cfg.Model),
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
		retryDelay:  options.retryDelay,
	}
	if g.model == "" {
		g.model = defaultOpenAIModel
	}
	if g.maxTokens <= 0 {
		g.maxTokens = 4000
	}
	// At most one retry regardless of configuration.
	if cfg.MaxRetries > 0 {
		g.maxRetries = 1
	}
	return g, nil
}

// NewGenerator picks the OpenAI backend when a real key is configured and the
// template backend otherwise.
func NewGenerator(cfg config.OpenAIConfig, opts ...OpenAIOption) (Generator, error) {
	if cfg.DemoMode() {
		return TemplateGenerator{}, nil
	}
	return NewOpenAIGenerator(cfg, opts...)
}

func (g *OpenAIGenerator) Name() string { return "openai" }

// Generate calls the chat completions endpoint. 429 and 5xx responses and
// transport failures are retried once; other failures return immediately.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt Prompt) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(prompt)},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}

	var content string
	backoff := retry.WithMaxRetries(g.maxRetries, retry.NewConstant(g.retryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		out, err := g.complete(ctx, req)
		if err != nil {
			return err
		}
		content = out
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func (g *OpenAIGenerator) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		wrapped := pkgerrors.Wrap(pkgerrors.CodeDependency, err, "chat completion failed")
		if retryableCompletionError(err) {
			return "", retry.RetryableError(wrapped)
		}
		return "", wrapped
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "completion response had no content")
	}
	return resp.Choices[0].Message.Content, nil
}

// retryableCompletionError treats rate limits, server errors and transport
// failures as transient.
func retryableCompletionError(err error) bool {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return true
	}
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func userPrompt(p Prompt) string {
	return fmt.Sprintf(`Write a complete, professional %s in %s using the outline below.
Expand every section with the clauses required by applicable regulations and keep numbered sections and subsections.
Do NOT include any AI disclaimers or notes. Output ONLY the document content.

%s`, p.Label, normalizeLanguage(p.Language), p.Body)
}
