package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/entrepreneur-whisperer/site/server/internal/client"
	"github.com/entrepreneur-whisperer/site/server/internal/config"
)

const defaultEndpoint = "http://localhost:8080/api/assistant"

type askOptions struct {
	endpoint string
	lang     string
	convPath string
	reset    bool
}

func newAskCmd() *cobra.Command {
	opts := askOptions{}
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the assistant; without a question, start an interactive chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runAsk(ctx, opts, strings.Join(args, " "), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.endpoint, "url", envOr("ASSISTANT_URL", defaultEndpoint), "assistant endpoint")
	cmd.Flags().StringVar(&opts.lang, "lang", envOr("ASSISTANT_LANG", "fr"), "answer language (fr or en)")
	cmd.Flags().StringVar(&opts.convPath, "conversation", defaultConversationPath(), "conversation file")
	cmd.Flags().BoolVar(&opts.reset, "reset", false, "start a new conversation")
	return cmd
}

func runAsk(ctx context.Context, opts askOptions, question string, in io.Reader, out io.Writer) error {
	conv, err := client.OpenConversation(opts.convPath)
	if err != nil {
		return err
	}
	if opts.reset {
		if err := conv.Reset(); err != nil {
			return err
		}
	}

	// The server bounds each turn; the margin covers the final events.
	c := client.New(&http.Client{Timeout: config.MaxDeadline + 5*time.Second}, opts.endpoint, opts.lang)
	if strings.TrimSpace(question) != "" {
		return askOnce(ctx, c, conv, question, out)
	}

	interactive := isTerminal(in)
	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/reset":
			if err := conv.Reset(); err != nil {
				return err
			}
			fmt.Fprintln(out, "(nouvelle conversation)")
			continue
		case "/quit", "/exit":
			return nil
		}
		if err := askOnce(ctx, c, conv, line, out); err != nil {
			if ctx.Err() != nil {
				return err
			}
			// Keep the session alive; the error is already printed.
			continue
		}
	}
}

func askOnce(ctx context.Context, c *client.Client, conv *client.Conversation, question string, out io.Writer) error {
	r := newTermRenderer(out, isTerminal(out))
	res, err := c.Chat(ctx, conv, question, r)
	if err == nil {
		return nil
	}
	r.Interrupt(res.Answer)

	var apiErr *client.APIError
	var streamErr *client.StreamError
	var interrupted *client.InterruptedError
	switch {
	case errors.As(err, &apiErr):
		fmt.Fprintln(out, apiErr.Message)
	case errors.As(err, &streamErr):
		fmt.Fprintln(out, streamErr.Message)
	case errors.As(err, &interrupted):
		fmt.Fprintln(out, interrupted.Message)
	default:
		fmt.Fprintln(out, err)
	}
	return err
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func defaultConversationPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "entrepreneur-whisperer", "conversation.json")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
