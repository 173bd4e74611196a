package agent

import (
	"context"

	"github.com/garnizeh/fixbuddy/pkg/gemini"
	"github.com/garnizeh/fixbuddy/pkg/ollama"
)

// Prompt is one model call: system instruction, rendered text and an optional image.
type Prompt struct {
	System    string
	Text      string
	Image     []byte
	ImageMIME string
}

// Generator is the model capability the strategies depend on. It must return
// the model's raw text and is always asked for JSON.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, p Prompt) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, p Prompt) (string, error) { return f(ctx, p) }

type geminiGenerator struct{ c *gemini.Client }

func NewGeminiGenerator(c *gemini.Client) Generator { return geminiGenerator{c: c} }

func (g geminiGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	res, err := g.c.Generate(ctx, gemini.Request{
		System:    p.System,
		Parts:     []string{p.Text},
		Image:     p.Image,
		ImageMIME: p.ImageMIME,
		JSON:      true,
	})
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

type ollamaGenerator struct{ c *ollama.Client }

func NewOllamaGenerator(c *ollama.Client) Generator { return ollamaGenerator{c: c} }

func (g ollamaGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	req := ollama.Request{System: p.System, Prompt: p.Text, JSON: true}
	if len(p.Image) > 0 {
		req.Images = [][]byte{p.Image}
	}
	res, err := g.c.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}
