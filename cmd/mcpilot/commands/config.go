package commands

import (
	"fmt"

	"github.com/MEKXH/mcpilot/internal/config"
	"github.com/spf13/cobra"
)

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "schema",
			Short: "Print the JSON schema of config.json",
			RunE:  runConfigSchema,
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file location",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(config.ConfigPath())
			},
		},
	)
	return cmd
}

func runConfigSchema(cmd *cobra.Command, args []string) error {
	raw, err := config.JSONSchema()
	if err != nil {
		return fmt.Errorf("render config schema: %w", err)
	}
	fmt.Println(string(raw))
	return nil
}
