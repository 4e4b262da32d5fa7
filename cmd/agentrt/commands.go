package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func buildRunCmd(configPath *string) *cobra.Command {
	var (
		payload     string
		payloadFile string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Bootstrap a run from its payload and execute the agent",
		Example: `  agentrt run --payload-file payload.json
  AGENTRT_PAYLOAD='{"user_auth":"...","thread_id":"thread_1","base_url":"https://hub/v1","agent_ts_files_to_transpile":["agent.go"]}' agentrt run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := resolvePayload(payload, payloadFile)
			if err != nil {
				return err
			}
			return runAgent(cmd.Context(), *configPath, raw)
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "Run payload as JSON")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "Read the run payload from a JSON or YAML file")
	return cmd
}

type hubFlags struct {
	baseURL  string
	userAuth string
}

func (f *hubFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "Hub base URL")
	cmd.Flags().StringVar(&f.userAuth, "auth", "", "Hub credential (defaults to AGENTRT_USER_AUTH)")
	_ = cmd.MarkFlagRequired("base-url")
}

func buildChatCmd(configPath *string) *cobra.Command {
	var (
		hf          hubFlags
		threadID    string
		assistantID string
		model       string
	)
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Post a user message, start a run and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), cmd.OutOrStdout(), *configPath, hf, chatRequest{
				threadID:    threadID,
				assistantID: assistantID,
				model:       model,
				message:     strings.Join(args, " "),
			})
		},
	}
	hf.register(cmd)
	cmd.Flags().StringVar(&threadID, "thread", "", "Existing thread id (a new thread is created when empty)")
	cmd.Flags().StringVar(&assistantID, "assistant", "", "Assistant (agent) id to run")
	cmd.Flags().StringVar(&model, "model", "", "Model override")
	return cmd
}

func buildModelsCmd(configPath *string) *cobra.Command {
	var hf hubFlags
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models served by the hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModels(cmd.Context(), cmd.OutOrStdout(), *configPath, hf)
		},
	}
	hf.register(cmd)
	return cmd
}

func buildEventsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Print agent lifecycle events as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(cmd.Context(), cmd.OutOrStdout(), *configPath)
		},
	}
}

func buildRunsCmd(configPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs <thread-id>",
		Short: "List recorded agent invocations for a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(cmd.Context(), cmd.OutOrStdout(), *configPath, args[0], limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of invocations to show")
	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "agentrt %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
