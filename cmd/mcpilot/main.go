package main

import (
	"os"

	"github.com/MEKXH/mcpilot/cmd/mcpilot/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
