// Command agenthost runs the runtime host with a small demonstration
// agent. The real entrypoint is normally supplied by an embedding
// program; this binary shows registration, streaming, and background
// task tracking end to end.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/solhaven/agenthost/host"
	"github.com/solhaven/agenthost/internal/config"
	"github.com/solhaven/agenthost/rscope"
	"github.com/solhaven/agenthost/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("agenthost: starting",
		"listen_addr", cfg.ListenAddr,
		"debug_actions", cfg.DebugActions,
	)

	registry := tasks.NewRegistry(logger)
	srv := host.New(cfg.ListenAddr, registry, logger,
		host.WithDebugActions(cfg.DebugActions),
		host.WithBlockingLimit(cfg.MaxBlocking),
	)

	if err := srv.Register(demoHandler(registry)); err != nil {
		log.Fatalf("failed to register entrypoint: %v", err)
	}

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// demoRequest selects one of the demonstration behaviors.
type demoRequest struct {
	Stream     int    `json:"stream"`
	Background string `json:"background"`
}

// demoHandler echoes its payload. A payload with "stream": n answers
// with an SSE stream of n events; "background": name launches a
// tracked background task that holds the ping status busy for a few
// seconds.
func demoHandler(registry *tasks.Registry) host.ContextHandlerFunc {
	return func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req demoRequest
		if err := json.Unmarshal(payload, &req); err == nil {
			if req.Stream > 0 {
				return countStream(req.Stream), nil
			}
			if req.Background != "" {
				registry.Go(context.Background(), req.Background, func(ctx context.Context) error {
					time.Sleep(5 * time.Second)
					return nil
				})
				return map[string]any{"started": req.Background}, nil
			}
		}

		return map[string]any{
			"echo":       json.RawMessage(payload),
			"request_id": rscope.RequestID(ctx),
			"session_id": rscope.SessionID(ctx),
		}, nil
	}
}

func countStream(n int) host.Stream {
	return func(yield func(any, error) bool) {
		for i := range n {
			if !yield(map[string]any{"event": fmt.Sprintf("tick-%d", i)}, nil) {
				return
			}
		}
	}
}
