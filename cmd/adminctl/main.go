package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/odyssey-erp/storefront/cmd/adminctl/cli"
	"github.com/odyssey-erp/storefront/internal/app"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if app.InTestMode() {
		return
	}
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("adminctl", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	server := flags.String("server", envOr("STOREFRONT_URL", "http://127.0.0.1:8080"), "storefront admin API base URL")
	cookie := flags.String("cookie", envOr("SESSION_COOKIE", "storefront_session"), "session cookie name")
	statePath := flags.String("state", os.Getenv("ADMINCTL_STATE"), "console state file (default: user config dir)")
	redisAddr := flags.String("redis", envOr("REDIS_ADDR", "127.0.0.1:6379"), "redis address for jobs commands")
	timeout := flags.Duration("timeout", 10*time.Second, "request timeout")
	jsonOut := flags.Bool("json", false, "print JSON output")
	if err := flags.Parse(args); err != nil {
		return cli.ExitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rest := flags.Args()
	if len(rest) > 0 && rest[0] == "jobs" {
		jc, err := cli.NewJobsCLI(*redisAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
			return cli.ExitError
		}
		defer func() { _ = jc.Close() }()
		return cli.RunJobs(ctx, jc, rest[1:], os.Stdout, os.Stderr)
	}

	console, err := cli.NewConsole(cli.Options{
		Server:     *server,
		CookieName: *cookie,
		StatePath:  *statePath,
		Timeout:    *timeout,
		JSONOutput: *jsonOut,
		Prompt:     cli.TerminalPrompt(os.Stdin, os.Stderr),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "adminctl: %v\n", err)
		return cli.ExitError
	}
	return console.Run(ctx, rest)
}
