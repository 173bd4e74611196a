package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/garnizeh/fixbuddy/pkg/models"
)

var errNotLoggedIn = errors.New("not logged in; run `fixbuddy login` first")

type globalOptions struct {
	server    string
	tokenPath string
	output    string
}

func defaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fixbuddy-token"
	}
	return filepath.Join(home, ".fixbuddy", "token")
}

// apiError is the server's error envelope.
type apiError struct {
	Status     int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter string `json:"-"`
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	if e.RetryAfter != "" {
		msg += ", retry after " + e.RetryAfter + "s"
	}
	return msg
}

// client is a small JSON client for the Fix-Buddy HTTP API.
type client struct {
	base  string
	token string
	http  *http.Client
}

func newClient(opts *globalOptions, needAuth bool) (*client, error) {
	c := &client{
		base: strings.TrimRight(opts.server, "/"),
		http: &http.Client{Timeout: 2 * time.Minute},
	}
	if needAuth {
		tok, err := loadToken(opts.tokenPath)
		if err != nil {
			return nil, err
		}
		c.token = tok
	}
	return c, nil
}

func loadToken(path string) (string, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", errNotLoggedIn
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	tok := strings.TrimSpace(string(b))
	if tok == "" {
		return "", errNotLoggedIn
	}
	return tok, nil
}

func saveToken(path, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	return os.WriteFile(path, []byte(token+"\n"), 0o600)
}

// do sends in as JSON and decodes a 2xx body into out.
func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode >= 300 {
		e := &apiError{Status: res.StatusCode, RetryAfter: res.Header.Get("Retry-After")}
		if json.Unmarshal(raw, e) != nil || e.Message == "" {
			e.Code = http.StatusText(res.StatusCode)
			e.Message = strings.TrimSpace(string(raw))
		}
		return e
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type diagnoseRequest struct {
	Description   string            `json:"description,omitempty"`
	ImageBase64   string            `json:"imageBase64,omitempty"`
	Experience    models.Experience `json:"experience,omitempty"`
	Tools         []string          `json:"tools,omitempty"`
	ClarifyAnswer string            `json:"clarifyAnswer,omitempty"`
}

func (c *client) signup(ctx context.Context, username, password string, exp models.Experience, tools []string) error {
	return c.do(ctx, http.MethodPost, "/api/users", map[string]any{
		"username":   username,
		"password":   password,
		"experience": exp,
		"tools":      tools,
	}, nil)
}

func (c *client) login(ctx context.Context, username, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/login", map[string]string{"username": username, "password": password}, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

func (c *client) diagnose(ctx context.Context, req diagnoseRequest) (models.DiagnosisResult, error) {
	var resp struct {
		Result models.DiagnosisResult `json:"result"`
	}
	err := c.do(ctx, http.MethodPost, "/api/agent", req, &resp)
	return resp.Result, err
}

func (c *client) listDiagnoses(ctx context.Context) ([]models.DiagnosisResult, error) {
	var resp struct {
		Diagnoses []models.DiagnosisResult `json:"diagnoses"`
	}
	err := c.do(ctx, http.MethodGet, "/api/diagnoses", nil, &resp)
	return resp.Diagnoses, err
}

func (c *client) getDiagnosis(ctx context.Context, id string) (models.DiagnosisResult, error) {
	var resp struct {
		Result models.DiagnosisResult `json:"result"`
	}
	err := c.do(ctx, http.MethodGet, "/api/diagnoses/"+url.PathEscape(id), nil, &resp)
	return resp.Result, err
}

func (c *client) deleteDiagnosis(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/diagnoses/"+url.PathEscape(id), nil, nil)
}
