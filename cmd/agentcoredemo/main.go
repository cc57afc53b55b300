// Command agentcoredemo is a thin CLI wiring a YAML config, a providers/*
// transport, and the Agent Facade together: the core module takes no
// on-disk or CLI configuration of its own, so every flag and config field
// here lives outside it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"goa.design/agentcore/assembler"
	"goa.design/agentcore/message"
)

// noTransport satisfies turnloop.Transport for the replay command, which
// never starts a run and so never calls Stream.
type noTransport struct{}

func (noTransport) Stream(context.Context, []message.Message) (assembler.Streamer, error) {
	return nil, errors.New("agentcoredemo: replay does not support starting a run")
}

func main() {
	root := &cobra.Command{
		Use:   "agentcoredemo",
		Short: "Demo CLI for the agent core: run a prompt, or replay a buffered session",
	}
	root.AddCommand(buildRunCmd(), buildReplayCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
