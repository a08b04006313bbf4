package server

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/encoding/sse"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/spetersoncode/difybridge"
	"github.com/spetersoncode/difybridge/agui"
)

// ErrorResponse is the JSON body of a rejected request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status    string   `json:"status"`
	Timestamp string   `json:"timestamp"`
	Service   string   `json:"service"`
	Version   string   `json:"version"`
	GoVersion string   `json:"go_version"`
	BasePath  string   `json:"base_path"`
	Agents    []string `json:"agents"`
}

// SendMessage runs the selected agent and streams its events as SSE.
// POST {base}/:agent_id/send-message
func (s *Server) SendMessage(c echo.Context) error {
	start := time.Now()

	runner, agentID, status, msg := s.resolve(c.Param("agent_id"))
	if runner == nil {
		s.logger.Warn("agent not resolved", "agent_id", agentID, "status", status)
		return c.JSON(status, ErrorResponse{Error: msg})
	}

	// Parse request body
	var input agui.RunAgentInput
	if err := json.NewDecoder(c.Request().Body).Decode(&input); err != nil {
		verr := difybridge.NewValidationError("invalid request body", err)
		s.logger.Warn("rejected request", "agent_id", agentID, "error", verr)
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: verr.Error()})
	}
	input.FillIDs(uuid.NewString)
	if input.ForwardedProps.User == "" && s.cfg.UserHeader != "" {
		input.ForwardedProps.User = strings.TrimSpace(c.Request().Header.Get(s.cfg.UserHeader))
	}

	// Create request-scoped logger
	log := s.logger.With(
		"agent_id", agentID,
		"run_id", input.RunID,
		"thread_id", input.ThreadID,
	)
	log.Info("request started", "message_count", len(input.Messages))

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	sseWriter := sse.NewSSEWriter()
	stream := runner.Run(ctx, &input)

	var eventCount int
	var lastError error
	for ev := range stream {
		eventCount++
		log.Debug("sending SSE event",
			"event_type", ev.Type(),
			"event_num", eventCount,
		)

		if err := sseWriter.WriteEvent(ctx, w, ev); err != nil {
			log.Error("failed to write SSE event", "error", err, "event_type", ev.Type())
			lastError = err
			cancel()
			// Let the run observe the cancellation and close its channel.
			for range stream {
			}
			break
		}
		w.Flush()
	}

	duration := time.Since(start)
	if lastError != nil {
		log.Error("request failed",
			"duration_ms", duration.Milliseconds(),
			"events_sent", eventCount,
			"error", lastError,
		)
	} else {
		log.Info("request completed",
			"duration_ms", duration.Milliseconds(),
			"events_sent", eventCount,
		)
	}
	return nil
}

// resolve picks the runner for agentID. An empty id selects the only
// configured agent.
func (s *Server) resolve(agentID string) (Runner, string, int, string) {
	if agentID == "" {
		if len(s.ids) != 1 {
			return nil, "", http.StatusBadRequest, "agent_id is required when more than one agent is configured"
		}
		agentID = s.ids[0]
	}
	runner, ok := s.agents[agentID]
	if !ok {
		return nil, agentID, http.StatusNotFound, "agent not found: " + agentID
	}
	return runner, agentID, http.StatusOK, ""
}

// Health returns service health.
// GET {base}/healthz
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Service:   ServiceName,
		Version:   difybridge.Version,
		GoVersion: runtime.Version(),
		BasePath:  s.basePath(),
		Agents:    s.ids,
	})
}
