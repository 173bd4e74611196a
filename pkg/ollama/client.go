package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/garnizeh/fixbuddy/pkg/breaker"
)

var ErrCircuitOpen = errors.New("ollama circuit open")

// Client wraps the Ollama API client and adds retries, timeout, and circuit breaker.
type Client struct {
	api     *api.Client
	cfg     Config
	client  *http.Client
	breaker *breaker.Breaker

	closed int32 // atomic flag for Close()
}

// Request is a single non-streaming generation.
type Request struct {
	Model  string
	System string
	Prompt string
	Images [][]byte
	// JSON asks the model for a JSON-only answer.
	JSON bool
}

// GenerateResult is a typed representation of a model response.
type GenerateResult struct {
	Text string         `json:"text"`
	Meta map[string]any `json:"meta,omitempty"`
}

// ModelInfo is a lightweight model descriptor returned by ListModels.
type ModelInfo struct {
	Name string `json:"name"`
}

// package-level logger for pkg/ollama; can be replaced by callers
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger sets the logger used by pkg/ollama. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// NewClient creates a new Ollama client wrapper.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	u, err := url.ParseRequestURI(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	c := &Client{
		api:     api.NewClient(u, httpClient),
		cfg:     cfg,
		client:  httpClient,
		breaker: breaker.New(cfg.CircuitFailureThreshold, cfg.CircuitReset),
	}
	logger.Info("ollama: client created", slog.String("base_url", cfg.BaseURL), slog.String("model", cfg.Model), slog.Duration("timeout", cfg.Timeout))
	return c, nil
}

func NewDefaultClient(cfg Config) (*Client, error) {
	defaultClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 15 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	return NewClient(cfg, defaultClient)
}

// Close releases idle connections on the underlying HTTP transport when
// supported. Close is idempotent and safe to call multiple times.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	if c.client != nil && c.client.Transport != nil {
		if tr, ok := c.client.Transport.(interface{ CloseIdleConnections() }); ok {
			tr.CloseIdleConnections()
			logger.Debug("ollama: idle connections closed")
		}
	}
	return nil
}

// Model returns the default model name.
func (c *Client) Model() string { return c.cfg.Model }

// Health checks that the Ollama instance answers and has at least one model.
func (c *Client) Health(ctx context.Context) error {
	models, err := c.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if len(models) == 0 {
		return fmt.Errorf("health check failed: no models returned")
	}
	return nil
}

// ListModels returns the models installed on the Ollama instance.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	if !c.breaker.Allow() {
		return nil, ErrCircuitOpen
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.api.List(ctx)
	if err != nil {
		c.breaker.Failure()
		return nil, err
	}

	out := make([]ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		out = append(out, ModelInfo{Name: m.Name})
	}

	c.breaker.Success()
	return out, nil
}

// Generate sends a prompt to Ollama and returns the accumulated response text.
// Transient failures are retried up to cfg.Retries times with linear backoff.
func (c *Client) Generate(ctx context.Context, r Request) (GenerateResult, error) {
	var empty GenerateResult
	if !c.breaker.Allow() {
		return empty, ErrCircuitOpen
	}

	model := r.Model
	if model == "" {
		model = c.cfg.Model
	}
	stream := false
	req := &api.GenerateRequest{
		Model:  model,
		Prompt: r.Prompt,
		System: r.System,
		Stream: &stream,
	}
	if r.JSON {
		req.Format = json.RawMessage(`"json"`)
	}
	for _, img := range r.Images {
		req.Images = append(req.Images, api.ImageData(img))
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		ctxReq, cancel := c.withTimeout(ctx)
		var sb strings.Builder
		start := time.Now()
		err := c.api.Generate(ctxReq, req, func(resp api.GenerateResponse) error {
			sb.WriteString(resp.Response)
			return nil
		})
		cancel()

		if err == nil {
			c.breaker.Success()
			meta := map[string]any{"model": model, "latency_ms": time.Since(start).Milliseconds()}
			return GenerateResult{Text: sb.String(), Meta: meta}, nil
		}

		if ctx.Err() != nil {
			return empty, ctx.Err()
		}
		lastErr = err
		c.breaker.Failure()
		logger.Warn("ollama: generate attempt failed", slog.String("model", model), slog.Int("attempt", attempt+1), slog.String("error", err.Error()))

		if attempt == c.cfg.Retries {
			break
		}
		if !c.breaker.Allow() {
			return empty, ErrCircuitOpen
		}
		select {
		case <-ctx.Done():
			return empty, ctx.Err()
		case <-time.After(c.cfg.Backoff * time.Duration(attempt+1)):
		}
	}

	return empty, fmt.Errorf("generate failed after retries: %w", lastErr)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}
