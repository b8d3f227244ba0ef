package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MEKXH/mcpilot/internal/intent"
	"github.com/MEKXH/mcpilot/internal/relevance"
	"github.com/MEKXH/mcpilot/internal/render"
	"github.com/spf13/cobra"
)

var classifyJSON bool

func NewClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <query>",
		Short: "Show the intent of a query and the resources it would pull in",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runClassify,
	}
	cmd.Flags().BoolVar(&classifyJSON, "json", false, "Print intent and selection as JSON")
	return cmd
}

func runClassify(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	return withServers(func(ctx context.Context, a *app) error {
		in, selected := a.orchestrator.Plan(ctx, query)
		if classifyJSON {
			raw, err := json.MarshalIndent(struct {
				Intent    intent.Intent      `json:"intent"`
				Resources []relevance.Scored `json:"resources"`
			}{in, selected}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(raw))
			return nil
		}
		printPlan(in, selected)
		return nil
	})
}

func printPlan(in intent.Intent, selected []relevance.Scored) {
	fmt.Println(render.Header("Intent"))
	fmt.Printf("  Type:       %s (confidence %.2f)\n", in.Type, in.Confidence)
	fmt.Printf("  Complexity: %s\n", in.Complexity)
	fmt.Printf("  Domains:    %s\n", joinOrNone(in.Domains))
	fmt.Printf("  Keywords:   %s\n", joinOrNone(in.Keywords))

	fmt.Println()
	fmt.Println(render.Header("Resources"))
	if len(selected) == 0 {
		fmt.Println("  none above threshold")
		return
	}
	for _, s := range selected {
		fmt.Printf("  %.3f  %s  %s %s\n", s.Score, s.Resource.Server, s.Resource.URI,
			render.Dim(fmt.Sprintf("[%s] %s", s.Category, s.Reasoning)))
	}
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
