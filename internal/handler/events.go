package handler

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/pkg/database"
	"github.com/mlyard/mlyard/internal/service"
)

// heartbeatInterval keeps idle SSE connections from being reaped by
// proxies between flushes
const heartbeatInterval = 15 * time.Second

// EventsHandler streams run lifecycle events to live subscribers
type EventsHandler struct {
	redis      *database.RedisDB
	runService *service.RunService
	logger     *zap.Logger
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(redis *database.RedisDB, runService *service.RunService, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		redis:      redis,
		runService: runService,
		logger:     logger,
	}
}

// Stream handles GET /v1/runs/:runId/events. Events published for the
// run are forwarded as server-sent events until the client disconnects.
func (h *EventsHandler) Stream(c *fiber.Ctx) error {
	runID := c.Params("runId")

	if _, err := h.runService.Get(c.Context(), runID); err != nil {
		return serviceError(c, h.logger, err, "Failed to get run")
	}

	// The subscription must outlive the request handler; the stream
	// writer below owns it.
	sub := h.redis.Subscribe(context.Background(), service.EventChannel(runID))

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer sub.Close()

		ch := sub.Channel()
		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				fmt.Fprintf(w, "data: %s\n\n", msg.Payload)
				if err := w.Flush(); err != nil {
					return
				}
			case <-heartbeat.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))

	return nil
}
