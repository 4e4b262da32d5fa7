// Command agentrt hosts one agent invocation: it takes the run payload,
// compiles the agent sources, and runs the entry module against the hub.
//
// Environment variables:
//
//   - AGENTRT_CONFIG: host settings file (YAML or JSON)
//   - AGENTRT_PAYLOAD: run payload when neither --payload nor --payload-file is set
//   - AGENTRT_USER_AUTH: hub credential for the chat and models commands
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nuyoahch/agent-runtime/pkg/logger"
)

// Populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := buildRootCmd().ExecuteContext(ctx); err != nil {
		logger.L().Error("agentrt failed", "error", err)
		os.Exit(1)
	}
	_ = logger.Sync()
}

func buildRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "agentrt",
		Short:        "Compile and run a hub agent",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("AGENTRT_CONFIG"),
		"Path to the host settings file")

	root.AddCommand(
		buildRunCmd(&configPath),
		buildChatCmd(&configPath),
		buildModelsCmd(&configPath),
		buildEventsCmd(&configPath),
		buildRunsCmd(&configPath),
		buildVersionCmd(),
	)
	return root
}
