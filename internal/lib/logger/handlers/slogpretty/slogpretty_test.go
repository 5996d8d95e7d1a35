package slogpretty_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/linemk/event-shop/internal/lib/logger/handlers/slogpretty"
)

func TestPrettyHandler(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer

	opts := slogpretty.PrettyHandlerOptions{SlogOpts: &slog.HandlerOptions{Level: slog.LevelInfo}}
	log := slog.New(opts.NewPrettyHandler(&buf)).With(slog.String("op", "test.op"))

	log.Debug("hidden")
	log.Info("order created", slog.Int64("orderID", 10), slog.Any("error", errors.New("boom")))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INFO:")
	assert.Contains(t, out, "order created")
	assert.Contains(t, out, `"op": "test.op"`)
	assert.Contains(t, out, `"orderID": 10`)
	assert.Contains(t, out, `"error": "boom"`)
}
