package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/MEKXH/mcpilot/internal/agent"
	"github.com/MEKXH/mcpilot/internal/config"
	"github.com/MEKXH/mcpilot/internal/render"
	"github.com/cloudwego/eino/schema"
	"github.com/spf13/cobra"
)

var (
	chatProvider string
	chatStream   bool
)

func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Ask a question, or start an interactive session",
		RunE:  runChat,
	}
	cmd.Flags().StringVar(&chatProvider, "provider", "", "Provider entry to use (default: providers.default)")
	cmd.Flags().BoolVar(&chatStream, "stream", false, "Print answer text as it streams instead of rendering markdown at the end")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := openApp(ctx, cfg, appOptions{Provider: chatProvider, WithModel: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := config.Watch(config.ConfigPath(), func(*config.Config) {
		a.hosts.Reset()
	}); err != nil {
		slog.Warn("config watch disabled", "error", err)
	}

	if listen := strings.TrimSpace(cfg.Metrics.Listen); listen != "" {
		srv := serveMetrics(listen, a)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	md, err := render.NewMarkdown(100)
	if err != nil {
		slog.Warn("markdown renderer unavailable", "error", err)
		md = nil
	}
	attachHooks(a.orchestrator, chatStream)

	if len(args) > 0 {
		_, err := askOnce(ctx, a.orchestrator, md, strings.Join(args, " "), nil)
		return err
	}

	fmt.Printf("mcpilot ready (provider %s). Type /new to reset, exit to quit.\n", a.provider)
	var history []*schema.Message
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "/new":
			history = nil
			fmt.Println(render.Dim("conversation reset"))
			continue
		}

		resp, err := askOnce(ctx, a.orchestrator, md, input, history)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Printf("Error: %v\n", err)
			continue
		}
		history = resp.Messages
	}
	return scanner.Err()
}

func attachHooks(o *agent.Orchestrator, stream bool) {
	if stream {
		o.OnText = func(s string) { fmt.Print(s) }
	}
	o.OnToolStart = func(name, args string) {
		fmt.Println(render.ToolStart(name))
	}
	o.OnToolFinish = func(name, result string, err error, elapsed time.Duration) {
		fmt.Println(render.ToolFinish(name, elapsed, err))
	}
}

func askOnce(ctx context.Context, o *agent.Orchestrator, md render.Renderer, query string, history []*schema.Message) (*agent.Response, error) {
	resp, err := o.Run(ctx, query, history)
	if err != nil {
		return nil, err
	}
	printResponse(resp, md, chatStream)
	return resp, nil
}

func printResponse(resp *agent.Response, md render.Renderer, streamed bool) {
	if streamed {
		fmt.Println()
	} else {
		think, main, hasThink := render.ResponseParts(resp.Text, resp.Thinking, md)
		if hasThink {
			fmt.Println(render.Think(think))
		}
		fmt.Println(main)
	}
	if resp.Warning != "" {
		fmt.Println(render.Warning(resp.Warning))
	}
}

func serveMetrics(listen string, a *app) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.exporter.Handler())
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("metrics endpoint stopped", "listen", listen, "error", err)
		}
	}()
	slog.Info("metrics endpoint listening", "listen", listen)
	return srv
}
