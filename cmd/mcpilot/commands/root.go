package commands

import (
	"github.com/MEKXH/mcpilot/internal/config"
	"github.com/spf13/cobra"
)

var logLevelOverride string

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "mcpilot",
		Short:        "mcpilot - MCP-aware development assistant",
		Long:         `mcpilot connects capability servers over MCP, picks relevant context for each question and drives the model and tool loop.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return configureLogger(cfg, logLevelOverride, cmd.Name() == "chat")
		},
	}

	cmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "Override log level (debug|info|warn|error)")

	cmd.AddCommand(
		NewChatCmd(),
		NewServersCmd(),
		NewExecCmd(),
		NewClassifyCmd(),
		NewConfigCmd(),
		NewStatusCmd(),
		NewVersionCmd(),
	)

	return cmd
}
