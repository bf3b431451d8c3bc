package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"github.com/meravakil/meravakil-backend/internal/platform/httpx"
	"github.com/meravakil/meravakil-backend/internal/platform/logger"
	"github.com/meravakil/meravakil-backend/internal/platform/resilience"
)

// Client is the subset of the OpenAI API the assistant and ingestion use.
type Client interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

type CompletionRequest struct {
	System      string
	User        string
	Temperature float32
}

type Completion struct {
	Text  string
	Model string
}

type Config struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	EmbedModel string
	Timeout    time.Duration
	MaxRetries int
	Breaker    resilience.BreakerConfig
}

type client struct {
	log        *logger.Logger
	api        *goopenai.Client
	chatModel  string
	embedModel goopenai.EmbeddingModel
	maxRetries int
	breaker    *gobreaker.CircuitBreaker
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o-mini"
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = string(goopenai.SmallEmbedding3)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	apiCfg := goopenai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		apiCfg.BaseURL = base
	}
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	clientLog := log.With("service", "OpenAIClient")
	return &client{
		log:        clientLog,
		api:        goopenai.NewClientWithConfig(apiCfg),
		chatModel:  cfg.ChatModel,
		embedModel: goopenai.EmbeddingModel(cfg.EmbedModel),
		maxRetries: cfg.MaxRetries,
		breaker:    resilience.NewBreaker("openai", cfg.Breaker, clientLog, breakerSuccess),
	}, nil
}

func (c *client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	clean := make([]string, len(inputs))
	for i, s := range inputs {
		s = strings.TrimSpace(s)
		if s == "" {
			s = " "
		}
		clean[i] = s
	}

	resp, err := resilience.Call(c.breaker, func() (goopenai.EmbeddingResponse, error) {
		var out goopenai.EmbeddingResponse
		err := c.retry(ctx, "embeddings", func() error {
			var callErr error
			out, callErr = c.api.CreateEmbeddings(ctx, goopenai.EmbeddingRequestStrings{
				Input: clean,
				Model: c.embedModel,
			})
			return callErr
		})
		return out, err
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	out := make([][]float32, len(clean))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		if idx < len(out) {
			out[idx] = d.Embedding
		}
	}
	for i := range out {
		if out[i] == nil {
			return nil, fmt.Errorf("openai embeddings: missing vector for input %d", i)
		}
	}
	return out, nil
}

func (c *client) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	chatReq := goopenai.ChatCompletionRequest{
		Model:       c.chatModel,
		Temperature: temperature(req.Temperature),
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: req.System},
			{Role: goopenai.ChatMessageRoleUser, Content: req.User},
		},
	}

	resp, err := resilience.Call(c.breaker, func() (goopenai.ChatCompletionResponse, error) {
		var out goopenai.ChatCompletionResponse
		err := c.retry(ctx, "chat.completions", func() error {
			var callErr error
			out, callErr = c.api.CreateChatCompletion(ctx, chatReq)
			return callErr
		})
		return out, err
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}

	out := &Completion{Model: resp.Model}
	if out.Model == "" {
		out.Model = c.chatModel
	}
	if len(resp.Choices) > 0 {
		out.Text = resp.Choices[0].Message.Content
	}
	return out, nil
}

// temperature maps 0 to the smallest positive float32: the request field is
// omitempty, and a literal 0 would fall back to the API default of 1.
func temperature(t float32) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

func (c *client) retry(ctx context.Context, op string, fn func() error) error {
	backoff := time.Second
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if attempt >= c.maxRetries || !httpx.IsRetryableError(statusError(err)) {
			return err
		}
		sleepFor := httpx.JitterSleep(backoff)
		c.log.Warn("OpenAI request retrying",
			"op", op,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return err
		}
		if backoff < 10*time.Second {
			backoff *= 2
		}
	}
}

type httpStatusError struct {
	err    error
	status int
}

func (e *httpStatusError) Error() string       { return e.err.Error() }
func (e *httpStatusError) Unwrap() error       { return e.err }
func (e *httpStatusError) HTTPStatusCode() int { return e.status }

// statusError exposes the HTTP status carried by go-openai errors to httpx.
func statusError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &httpStatusError{err: err, status: apiErr.HTTPStatusCode}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return &httpStatusError{err: err, status: reqErr.HTTPStatusCode}
	}
	return err
}

// breakerSuccess reports whether err leaves the breaker's failure count
// alone. Caller cancellations and 4xx request errors do; upstream failures
// (5xx, 408, 429, transport errors) do not.
func breakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var sc httpx.HTTPStatusCoder
	if errors.As(statusError(err), &sc) {
		code := sc.HTTPStatusCode()
		return code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout
	}
	return false
}
