// Package gemini wraps the Google Gemini API for JSON-only vision/text calls.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/garnizeh/fixbuddy/pkg/breaker"
)

var (
	ErrCircuitOpen   = errors.New("gemini circuit open")
	ErrEmptyResponse = errors.New("gemini returned no text")
	ErrNoAPIKey      = errors.New("gemini api key not configured")
)

// Config holds settings for the Gemini client. Timeout bounds a single
// attempt; with retries it must fit inside the caller's deadline.
type Config struct {
	APIKey                  string        `yaml:"api_key"`
	Model                   string        `yaml:"model"`
	Timeout                 time.Duration `yaml:"timeout"`
	Retries                 int           `yaml:"retries"`
	Backoff                 time.Duration `yaml:"backoff"`
	CircuitFailureThreshold int           `yaml:"circuit_failure_threshold"`
	CircuitReset            time.Duration `yaml:"circuit_reset"`
	Temperature             float32       `yaml:"temperature"`
}

// DefaultConfig returns the defaults used when a field is left empty.
func DefaultConfig() Config {
	return Config{
		Model:                   "gemini-2.5-flash",
		Timeout:                 9 * time.Second,
		Retries:                 1,
		Backoff:                 500 * time.Millisecond,
		CircuitFailureThreshold: 5,
		CircuitReset:            30 * time.Second,
		Temperature:             0.2,
	}
}

// Request is one generateContent call. Parts are sent as text in order,
// followed by the image when present.
type Request struct {
	System    string
	Parts     []string
	Image     []byte
	ImageMIME string
	// JSON sets the response MIME type to application/json.
	JSON bool
}

type Result struct {
	Text string
	Meta map[string]any
}

type generateFunc func(ctx context.Context, req Request) (*genai.GenerateContentResponse, error)

// Client is safe for concurrent use.
type Client struct {
	cfg      Config
	genai    *genai.Client
	generate generateFunc
	breaker  *breaker.Breaker
	closed   int32
}

var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger sets the logger used by pkg/gemini. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// New builds a client. Extra options are appended after the API key option,
// which lets tests point the client at a local endpoint.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	if cfg.APIKey == "" && len(opts) == 0 {
		return nil, ErrNoAPIKey
	}
	cfg = withDefaults(cfg)

	if cfg.APIKey != "" {
		opts = append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	}
	gc, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	c := &Client{cfg: cfg, genai: gc, breaker: breaker.New(cfg.CircuitFailureThreshold, cfg.CircuitReset)}
	c.generate = c.callModel
	logger.Info("gemini: client created", slog.String("model", cfg.Model), slog.Duration("timeout", cfg.Timeout))
	return c, nil
}

func newWithGenerate(cfg Config, fn generateFunc) *Client {
	cfg = withDefaults(cfg)
	return &Client{cfg: cfg, generate: fn, breaker: breaker.New(cfg.CircuitFailureThreshold, cfg.CircuitReset)}
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.CircuitReset <= 0 {
		cfg.CircuitReset = def.CircuitReset
	}
	return cfg
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// Generate runs the request with per-attempt timeout, bounded retries and the
// circuit breaker. The returned text is the concatenation of the first
// candidate's text parts.
func (c *Client) Generate(ctx context.Context, req Request) (Result, error) {
	if !c.breaker.Allow() {
		return Result{}, ErrCircuitOpen
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		ctxReq, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		start := time.Now()
		resp, err := c.generate(ctxReq, req)
		cancel()

		if err == nil {
			var text string
			text, err = responseText(resp)
			if err == nil {
				c.breaker.Success()
				return Result{Text: text, Meta: map[string]any{
					"model":      c.cfg.Model,
					"latency_ms": time.Since(start).Milliseconds(),
					"attempt":    attempt + 1,
				}}, nil
			}
		}

		// The caller giving up says nothing about the upstream's health.
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		lastErr = err
		c.breaker.Failure()
		logger.Warn("gemini: generate attempt failed", slog.String("model", c.cfg.Model), slog.Int("attempt", attempt+1), slog.String("error", err.Error()))

		if attempt == c.cfg.Retries {
			break
		}
		if !c.breaker.Allow() {
			return Result{}, ErrCircuitOpen
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(c.cfg.Backoff * time.Duration(attempt+1)):
		}
	}

	return Result{}, fmt.Errorf("gemini generate failed after %d attempt(s): %w", c.cfg.Retries+1, lastErr)
}

func (c *Client) callModel(ctx context.Context, req Request) (*genai.GenerateContentResponse, error) {
	model := c.genai.GenerativeModel(c.cfg.Model)
	model.SetTemperature(c.cfg.Temperature)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}

	parts := make([]genai.Part, 0, len(req.Parts)+1)
	for _, p := range req.Parts {
		parts = append(parts, genai.Text(p))
	}
	if len(req.Image) > 0 {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, genai.Blob{MIMEType: mime, Data: req.Image})
	}
	if len(parts) == 0 {
		return nil, errors.New("gemini request has no parts")
	}

	return model.GenerateContent(ctx, parts...)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// Close releases the underlying gRPC/HTTP resources. Safe to call twice.
func (c *Client) Close() error {
	if c == nil || !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	if c.genai != nil {
		return c.genai.Close()
	}
	return nil
}
