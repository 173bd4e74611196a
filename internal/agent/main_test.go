package agent_test

import (
	"io"
	"log/slog"
	"testing"

	"go.uber.org/goleak"

	"github.com/garnizeh/fixbuddy/internal/agent"
)

func TestMain(m *testing.M) {
	agent.SetLogger(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	goleak.VerifyTestMain(m)
}
