package agent

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/garnizeh/fixbuddy/pkg/models"
)

var ErrInvalidRequest = errors.New("invalid request")

// Request is the ephemeral diagnosis input. UserID 0 means anonymous.
type Request struct {
	UserID        int64
	Description   string
	ImageBase64   string
	Experience    models.Experience
	Tools         []string
	ClarifyAnswer string
}

// ValidationError carries every rule the request broke.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

// ValidateRequest requires a description or an image and, when given, a known
// experience tier.
func ValidateRequest(r Request) error {
	var problems []string
	if strings.TrimSpace(r.Description) == "" && strings.TrimSpace(r.ImageBase64) == "" {
		problems = append(problems, "description or imageBase64 is required")
	}
	if r.Experience != "" && !models.ValidExperience(r.Experience) {
		problems = append(problems, fmt.Sprintf("experience must be one of beginner, intermediate, expert; got %q", r.Experience))
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

const defaultImageMIME = "image/jpeg"

// decodeImage accepts raw base64 or a data URL and returns the bytes and MIME type.
func decodeImage(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, "", nil
	}

	mime := defaultImageMIME
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, "", errors.New("malformed data url")
		}
		header := s[len("data:"):comma]
		if m, _, _ := strings.Cut(header, ";"); strings.HasPrefix(m, "image/") {
			mime = m
		}
		s = s[comma+1:]
	}

	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if b2, err2 := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); err2 == nil {
			return b2, mime, nil
		}
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return b, mime, nil
}
