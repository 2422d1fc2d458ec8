package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// Options configures the Client. Zero values fall back to defaults.
type Options struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	BaseURL        string
	Timeout        time.Duration
	RequestsPerMin int
}

const (
	defaultModel          = "gpt-4o-mini"
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultTimeout        = 30 * time.Second
	defaultRequestsPerMin = 60
)

// Client is the langchaingo-backed Analyzer. Every call is rate limited,
// bounded by a per-call timeout, and retried once on transient failures;
// job-level retry policy belongs to the scheduler, not here.
type Client struct {
	llm      *openai.LLM
	embedder *openai.LLM
	model    string
	timeout  time.Duration
	limiter  *rate.Limiter
}

func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("ai client requires an api key")
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = defaultEmbeddingModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RequestsPerMin <= 0 {
		opts.RequestsPerMin = defaultRequestsPerMin
	}

	build := func(model string) (*openai.LLM, error) {
		o := []openai.Option{
			openai.WithToken(opts.APIKey),
			openai.WithModel(model),
		}
		if opts.BaseURL != "" {
			o = append(o, openai.WithBaseURL(opts.BaseURL))
		}
		if model == opts.EmbeddingModel {
			o = append(o, openai.WithEmbeddingModel(model))
		}
		return openai.New(o...)
	}

	llm, err := build(opts.Model)
	if err != nil {
		return nil, fmt.Errorf("creating chat model: %w", err)
	}
	embedder, err := build(opts.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("creating embedding model: %w", err)
	}
	return &Client{
		llm:      llm,
		embedder: embedder,
		model:    opts.Model,
		timeout:  opts.Timeout,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMin)), opts.RequestsPerMin),
	}, nil
}

func (c *Client) Enabled() bool { return true }

// complete runs one prompt through the chat model with rate limiting, a
// per-call timeout and a single backoff retry on transient errors.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 2 * time.Second):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := llms.GenerateFromSinglePrompt(callCtx, c.llm, prompt,
			llms.WithTemperature(0.2))
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt+1).Msg("transient model error, retrying")
	}
	return "", fmt.Errorf("model completion failed: %w", lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"rate limit", "429", "timeout", "deadline exceeded",
		"connection reset", "connection refused", "502", "503", "504",
		"overloaded", "temporarily",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// completeJSON runs the prompt and decodes the response into out, repairing
// malformed model output on the way.
func (c *Client) completeJSON(ctx context.Context, prompt string, out any) error {
	resp, err := c.complete(ctx, prompt)
	if err != nil {
		return err
	}
	payload, err := ExtractJSON(resp)
	if err != nil {
		return fmt.Errorf("extracting json from model response: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("decoding model response: %w", err)
	}
	return nil
}

func (c *Client) ExtractTodos(ctx context.Context, req TodoRequest) ([]TodoCandidate, error) {
	var parsed struct {
		Todos []TodoCandidate `json:"todos"`
	}
	if err := c.completeJSON(ctx, todoPrompt(req), &parsed); err != nil {
		return nil, err
	}
	out := parsed.Todos[:0]
	for _, t := range parsed.Todos {
		if strings.TrimSpace(t.Title) == "" {
			continue
		}
		if t.Priority < 1 || t.Priority > 10 {
			t.Priority = 5
		}
		if t.Confidence < 0 {
			t.Confidence = 0
		} else if t.Confidence > 1 {
			t.Confidence = 1
		}
		out = append(out, t)
	}
	return out, nil
}

func (c *Client) ExtractTopic(ctx context.Context, req TopicRequest) (*TopicResult, error) {
	var parsed TopicResult
	if err := c.completeJSON(ctx, topicPrompt(req), &parsed); err != nil {
		return nil, err
	}
	if strings.TrimSpace(parsed.Name) == "" {
		return nil, fmt.Errorf("model returned topic without a name")
	}
	parsed.Name = strings.ToLower(strings.TrimSpace(parsed.Name))
	if parsed.Importance < 1 || parsed.Importance > 10 {
		parsed.Importance = 5
	}
	return &parsed, nil
}

func (c *Client) ExtractGoals(ctx context.Context, req GoalRequest) ([]GoalCandidate, error) {
	var parsed struct {
		Goals []GoalCandidate `json:"goals"`
	}
	if err := c.completeJSON(ctx, goalPrompt(req), &parsed); err != nil {
		return nil, err
	}
	out := parsed.Goals[:0]
	for _, g := range parsed.Goals {
		if strings.TrimSpace(g.Goal) == "" {
			continue
		}
		if g.Priority < 1 || g.Priority > 10 {
			g.Priority = 5
		}
		out = append(out, g)
	}
	return out, nil
}

func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	vecs, err := c.embedder.CreateEmbedding(callCtx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("creating embedding: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedding response was empty")
	}
	return vecs[0], nil
}

func (c *Client) DiscoverPatterns(ctx context.Context, digest InteractionDigest) (*PatternWeights, error) {
	var parsed PatternWeights
	if err := c.completeJSON(ctx, patternPrompt(digest), &parsed); err != nil {
		return nil, err
	}
	if parsed.SenderWeights == nil {
		parsed.SenderWeights = map[string]float64{}
	}
	if parsed.KeywordWeights == nil {
		parsed.KeywordWeights = map[string]float64{}
	}
	if parsed.PlatformWeights == nil {
		parsed.PlatformWeights = map[string]float64{}
	}
	return &parsed, nil
}
