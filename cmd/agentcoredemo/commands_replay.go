package main

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"goa.design/agentcore/agent"
	"goa.design/agentcore/event"
	"goa.design/agentcore/eventsink/redis"
)

func buildReplayCmd() *cobra.Command {
	var (
		redisAddr string
		sessionID string
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Print every buffered event for a session from Redis",
		Long: `Replay reconstructs a session's event sequence from its Redis-buffered
stream, printing each event's kind in order, without a live provider or
transport configured: the point of EmitExternal is that a controller
reconstructing UI state never touches the original run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if redisAddr == "" {
				return fmt.Errorf("--redis-addr is required")
			}
			if sessionID == "" {
				return fmt.Errorf("--session is required")
			}
			return replaySession(cmd.Context(), redisAddr, sessionID)
		},
	}
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "", "Redis address holding the buffered events")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID to replay")
	return cmd
}

func replaySession(ctx context.Context, redisAddr, sessionID string) error {
	rdb := goredis.NewClient(&goredis.Options{Addr: redisAddr})
	defer rdb.Close()

	// A replay target needs no real transport: EmitExternal bypasses Run
	// entirely, so the facade's only job here is to fan events out to
	// Subscribe consumers.
	dst := agent.New(noTransport{})
	unsub := dst.Subscribe(func(ev event.AgentEvent) {
		fmt.Printf("%s\n", ev.Kind)
	})
	defer unsub()

	sink := redis.NewSink(rdb)
	return sink.Replay(ctx, sessionID, dst)
}
