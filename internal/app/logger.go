package app

import (
	"io"
	"log/slog"
	"strings"

	"rrpnode/internal/config"
)

// NewLogger builds the node logger from node.log_level and node.log_format.
// An unknown level falls back to info.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Node.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.ToLower(cfg.Node.LogFormat) == "plain" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With("airnodeAddress", cfg.Node.AirnodeAddress, "stage", cfg.Node.Stage)
}
