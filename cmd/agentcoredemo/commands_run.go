package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"goa.design/agentcore/agent"
	"goa.design/agentcore/assembler"
	"goa.design/agentcore/event"
	"goa.design/agentcore/eventsink/redis"
	"goa.design/agentcore/message"
	"goa.design/agentcore/tools"
)

func buildRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run [prompt text]",
		Short: "Run a single prompt against the configured provider",
		Long: `Run loads a YAML config describing which provider to use, builds a
single-session Agent against it, sends the given prompt, and prints the
assistant's reply as it streams in. If the config names a Redis address,
every event is also republished there for later replay.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runPrompt(cmd.Context(), cfg, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "agentcoredemo.yaml", "Path to YAML configuration file")
	return cmd
}

func runPrompt(ctx context.Context, cfg *Config, prompt string) error {
	registry := tools.NewRegistry()
	transport, err := buildTransport(cfg, registry)
	if err != nil {
		return err
	}

	a := agent.New(transport,
		agent.WithSystemPrompt(cfg.SystemPrompt),
		agent.WithModel(cfg.Model),
		agent.WithTools(registry),
	)

	var detach func()
	if cfg.Redis != nil && cfg.Redis.Addr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()
		sink := redis.NewSink(rdb)
		sessionID := cfg.SessionID
		if sessionID == "" {
			sessionID = "agentcoredemo"
		}
		detach = sink.Attach(ctx, sessionID, a, func(err error) {
			fmt.Fprintf(os.Stderr, "replay sink: %v\n", err)
		})
	}
	if detach != nil {
		defer detach()
	}

	unsub := a.Subscribe(func(ev event.AgentEvent) {
		if ev.Kind != event.KindMessageUpdate || ev.Message == nil {
			return
		}
		se, ok := ev.Message.StreamEvent.(assembler.StreamEvent)
		if !ok || se.Kind != assembler.EventTextDelta {
			return
		}
		fmt.Print(se.TextDelta)
	})
	defer unsub()

	outcome, err := a.PromptText(ctx, prompt)
	if err != nil {
		return fmt.Errorf("prompt: %w", err)
	}
	fmt.Println()
	for _, m := range outcome.Appended {
		if asst, ok := m.(message.AssistantMessage); ok && asst.StopReason != message.StopEnd {
			fmt.Fprintf(os.Stderr, "stopped: %s %s\n", asst.StopReason, asst.ErrorMessage)
		}
	}
	return nil
}
