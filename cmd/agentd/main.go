// Command agentd runs a single agent's heartbeat loop against stdin/stdout:
// each line typed by the user is pushed onto the agent's memory and drives
// one heartbeat chain (CallAgent -> RunTool/InvalidTool -> ExitOrContinue)
// to completion. A background ticker also drives the scheduled heartbeat
// described in the memory configuration, so the agent keeps working even
// between user turns.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"continuum/internal/agent"
	"continuum/internal/config"
	"continuum/internal/llm/providers"
	"continuum/internal/memory"
	"continuum/internal/observability"
	"continuum/internal/persistence/databases"
	"continuum/internal/worker"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Obs.OTLP != "" {
		shutdown, err := observability.InitOTel(ctx, cfg.Obs)
		if err != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("otel_init_failed")
		} else {
			defer shutdown(ctx)
		}
	}

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		observability.LoggerWithTrace(ctx).Error().Err(err).Msg("agentd_exited")
		os.Exit(1)
	}
}

const defaultAgentID = "default"

func run(ctx context.Context, cfg config.Config) error {
	provider, err := providers.Build(cfg, http.DefaultClient)
	if err != nil {
		return fmt.Errorf("build llm provider: %w", err)
	}

	db, err := databases.NewManager(ctx, cfg.Databases)
	if err != nil {
		return fmt.Errorf("build database manager: %w", err)
	}
	defer db.Close()

	factory := worker.NewEngineFactory(db, provider, modelName(cfg), cfg)
	eng, err := factory(ctx, defaultAgentID)
	if err != nil {
		return fmt.Errorf("build agent engine: %w", err)
	}

	events := make(chan agent.Event, 16)
	eng.Events = events
	control := make(chan string, 1)
	eng.Control = control

	go printEvents(ctx, events)
	go scheduledHeartbeat(ctx, eng, cfg)

	return repl(ctx, eng, control)
}

func modelName(cfg config.Config) string {
	switch cfg.LLMClient.Provider {
	case "anthropic":
		return cfg.LLMClient.Anthropic.Model
	case "google":
		return cfg.LLMClient.Google.Model
	default:
		return cfg.LLMClient.OpenAI.Model
	}
}

// printEvents drains the engine's event stream and renders to_user text to
// stdout; error events are logged at error level and everything else at
// debug level.
func printEvents(ctx context.Context, events <-chan agent.Event) {
	log := observability.LoggerWithTrace(ctx)
	for ev := range events {
		switch ev.Type {
		case "to_user":
			fmt.Println(ev.Text)
		case "error":
			log.Error().Err(ev.Err).Msg("agent_event_error")
		case "halt":
			log.Debug().Str("cause", ev.Text).Msg("agent_halt")
		default:
			log.Debug().Str("type", ev.Type).Msg("agent_event")
		}
	}
}

// scheduledHeartbeat drives the agent's periodic background tick, letting
// it work through queued tasks even without a waiting user.
func scheduledHeartbeat(ctx context.Context, eng *agent.Engine, cfg config.Config) {
	interval := time.Duration(cfg.Memory.HeartbeatIntervalMinutes) * time.Minute
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				observability.LoggerWithTrace(ctx).Error().Err(err).Msg("scheduled_heartbeat_failed")
			}
		}
	}
}

// repl reads one line of user input at a time, pushes it onto the agent's
// memory, and drives the heartbeat loop until it halts.
func repl(ctx context.Context, eng *agent.Engine, control chan<- string) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("agentd ready. Type a message and press enter; Ctrl-D to exit.")

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		if line == "" {
			continue
		}
		if line == "/halt" {
			select {
			case control <- "halt":
			default:
			}
			continue
		}

		now := time.Now().UTC()
		msg := memory.NewUserMessage(line, now)
		if err := eng.Memory.PushMessage(ctx, msg); err != nil {
			return fmt.Errorf("push user message: %w", err)
		}
		if err := eng.Memory.PushChatLog(ctx, string(memory.KindUser), now, line); err != nil {
			return fmt.Errorf("push chat log: %w", err)
		}

		if err := eng.Run(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Fprintln(os.Stderr, "heartbeat loop error:", err)
		}
	}
	return scanner.Err()
}
