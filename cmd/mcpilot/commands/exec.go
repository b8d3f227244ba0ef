package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/MEKXH/mcpilot/internal/render"
	"github.com/MEKXH/mcpilot/internal/sandbox"
	"github.com/spf13/cobra"
)

var execJSON bool

func NewExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <script-file|->",
		Short: "Run a JavaScript file in the tool sandbox",
		Args:  cobra.ExactArgs(1),
		RunE:  runExec,
	}
	cmd.Flags().BoolVar(&execJSON, "json", false, "Print the full result as JSON")
	return cmd
}

func readScript(path string) (string, error) {
	if path == "-" {
		raw, err := io.ReadAll(os.Stdin)
		return string(raw), err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	return string(raw), nil
}

func runExec(cmd *cobra.Command, args []string) error {
	script, err := readScript(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := openApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	res, runErr := a.orchestrator.RunScript(ctx, script)
	if res == nil {
		return runErr
	}
	printScriptResult(res)
	if runErr != nil {
		return runErr
	}
	if !res.Success {
		return errors.New(res.Error)
	}
	return nil
}

func printScriptResult(res *sandbox.Result) {
	if execJSON {
		raw, err := json.MarshalIndent(res, "", "  ")
		if err == nil {
			fmt.Println(string(raw))
			return
		}
	}
	if res.Output != "" {
		fmt.Println(res.Output)
	}
	for _, rec := range res.Records {
		var err error
		if rec.Error != "" {
			err = errors.New(rec.Error)
		}
		fmt.Println(render.ToolFinish(rec.Name, rec.Elapsed, err))
	}
	if res.Success && res.Value != nil {
		raw, err := json.Marshal(res.Value)
		if err != nil {
			raw = []byte(fmt.Sprint(res.Value))
		}
		fmt.Println(render.Dim("=> ") + string(raw))
	}
	fmt.Println(render.Dim(fmt.Sprintf("%d tool calls in %s", len(res.ToolCalls), res.Elapsed)))
}
