package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/circuitbreaker"
	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/metrics"
	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/tracing"
)

var (
	ErrMissingAPIKey  = errors.New("llm: api key is required for the gemini backend")
	ErrMissingProject = errors.New("llm: project is required for the vertex backend")
)

// Request is a single text generation call.
type Request struct {
	SystemInstruction string
	Prompt            string
	Temperature       float32
	MaxOutputTokens   int32
}

// Generator produces raw model text for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

const (
	BackendVertex = "vertex"
	BackendGemini = "gemini"

	DefaultModel = "gemini-2.0-flash"
)

// Config configures the Gemini client.
type Config struct {
	Backend           string                  `mapstructure:"backend"`
	Model             string                  `mapstructure:"model"`
	Project           string                  `mapstructure:"project"`
	Location          string                  `mapstructure:"location"`
	APIKey            string                  `mapstructure:"api_key"`
	BaseURL           string                  `mapstructure:"base_url"`
	RequestsPerMinute int                     `mapstructure:"requests_per_minute"`
	Timeout           time.Duration           `mapstructure:"timeout"`
	CircuitBreaker    circuitbreaker.Settings `mapstructure:"circuit_breaker"`
}

// GeminiClient calls Gemini through google.golang.org/genai. It never retries;
// a failed call is reported to the caller as is.
type GeminiClient struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
	breaker *circuitbreaker.CallWrapper
	logger  *zap.Logger
}

// NewGeminiClient builds a client for the configured backend.
func NewGeminiClient(ctx context.Context, cfg Config, logger *zap.Logger) (*GeminiClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cc := &genai.ClientConfig{}
	switch strings.ToLower(cfg.Backend) {
	case BackendGemini:
		if cfg.APIKey == "" {
			return nil, ErrMissingAPIKey
		}
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	case BackendVertex, "":
		if cfg.Project == "" {
			return nil, ErrMissingProject
		}
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
		if cc.Location == "" {
			cc.Location = "us-central1"
		}
	default:
		return nil, fmt.Errorf("llm: unknown backend %q", cfg.Backend)
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
		burst = cfg.RequestsPerMinute
	}

	return &GeminiClient{
		client:  client,
		model:   model,
		limiter: rate.NewLimiter(limit, burst),
		breaker: circuitbreaker.NewCallWrapper("gemini", "llm-client", cfg.CircuitBreaker,
			circuitbreaker.LLMSettings(), isUpstreamFailure, logger),
		logger: logger,
	}, nil
}

func isUpstreamFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// Model returns the model name requests are sent to.
func (c *GeminiClient) Model() string {
	return c.model
}

// BreakerState exposes the breaker for readiness checks.
func (c *GeminiClient) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

// Generate sends req to the model and returns its text.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "llm.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.model),
		attribute.Int("llm.prompt_chars", len(req.Prompt)),
	)

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm rate limiter: %w", err)
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Temperature),
		MaxOutputTokens: req.MaxOutputTokens,
	}
	if req.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}

	start := time.Now()
	var text string
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), config)
		if err != nil {
			return err
		}
		// Blank or malformed text is the parser's concern, not a breaker failure
		text = resp.Text()
		return nil
	})
	duration := time.Since(start)

	if err != nil {
		metrics.RecordLLMRequest(c.model, "error", duration.Seconds())
		span.RecordError(err)
		c.logger.Warn("Model request failed",
			zap.String("model", c.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	metrics.RecordLLMRequest(c.model, "success", duration.Seconds())
	c.logger.Debug("Model request completed",
		zap.String("model", c.model),
		zap.Duration("duration", duration),
		zap.Int("response_chars", len(text)),
	)
	return text, nil
}
