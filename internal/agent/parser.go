package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyResponse = errors.New("empty model response")
	ErrNoJSON        = errors.New("no JSON object found in response")
)

// SchemaError lists the validation failures of a model response.
type SchemaError struct {
	Schema   string
	Problems []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("response does not match schema %s: %s", e.Schema, strings.Join(e.Problems, "; "))
}

// Parser turns raw model text into strict types. The raw text is used as-is
// when it is valid JSON; otherwise the first '{' to last '}' substring is
// salvaged. The result must pass the named schema before it is decoded.
type Parser struct {
	loader  *Loader
	version string
}

func NewParser(loader *Loader, version string) *Parser {
	if version == "" {
		version = "v1"
	}
	return &Parser{loader: loader, version: version}
}

func (p *Parser) Parse(ctx context.Context, schema, raw string, dst any) error {
	j, err := cleanJSON(raw)
	if err != nil {
		return err
	}

	if p.loader != nil {
		s, ok := p.loader.GetSchema(schema, p.version)
		if !ok || s == nil {
			return fmt.Errorf("no schema found for %s", schemaKey(schema, p.version))
		}
		verrs, err := s.ValidateBytes(ctx, []byte(j))
		if err != nil {
			return fmt.Errorf("schema validate error: %w", err)
		}
		if len(verrs) > 0 {
			problems := make([]string, 0, len(verrs))
			for _, v := range verrs {
				problems = append(problems, strings.TrimSpace(v.PropertyPath+" "+v.Message))
			}
			return &SchemaError{Schema: schemaKey(schema, p.version), Problems: problems}
		}
	}

	if err := json.Unmarshal([]byte(j), dst); err != nil {
		return fmt.Errorf("json unmarshal: %w", err)
	}
	return nil
}

func cleanJSON(raw string) (string, error) {
	s := strings.TrimSpace(stripFences(raw))
	if s == "" {
		return "", ErrEmptyResponse
	}
	if json.Valid([]byte(s)) && strings.HasPrefix(s, "{") {
		return s, nil
	}

	j := extractJSON(s)
	if j == "" {
		return "", ErrNoJSON
	}
	if !json.Valid([]byte(j)) {
		return "", fmt.Errorf("%w: salvaged text is not valid JSON", ErrNoJSON)
	}
	return j, nil
}

// stripFences removes a leading ```json / ``` fence and the closing fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return s
}

// extractJSON returns the substring from the first '{' to the last '}' in the input.
func extractJSON(s string) string {
	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first == -1 || last == -1 || last < first {
		return ""
	}
	return s[first : last+1]
}
