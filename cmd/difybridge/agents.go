package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spetersoncode/difybridge/agent"
	"github.com/spetersoncode/difybridge/config"
	"github.com/spetersoncode/difybridge/server"
)

// newAgents creates one agent per configured Dify app.
func newAgents(cfg *config.Config, logger *slog.Logger) (map[string]*agent.Agent, error) {
	agents := make(map[string]*agent.Agent, len(cfg.Agents))
	for _, ac := range cfg.Agents {
		opts := []agent.Option{
			agent.WithFixEventIDs(ac.FixIDs()),
			agent.WithDebugMode(ac.DebugMode),
			agent.WithLogger(logger.With("agent_id", ac.ID)),
		}
		if ac.BaseURL != "" {
			opts = append(opts, agent.WithBaseURL(ac.BaseURL))
		}
		if ac.Timeout > 0 {
			opts = append(opts, agent.WithTimeout(ac.Timeout))
		}

		a, err := agent.New(ac.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", ac.ID, err)
		}
		agents[ac.ID] = a
	}
	return agents, nil
}

func runners(agents map[string]*agent.Agent) map[string]server.Runner {
	out := make(map[string]server.Runner, len(agents))
	for id, a := range agents {
		out[id] = a
	}
	return out
}

// newLogger builds the process logger from the server settings.
func newLogger(cfg config.ServerConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
