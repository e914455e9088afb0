package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/atvirokodosprendimai/strcalc/internal/app"
	"github.com/atvirokodosprendimai/strcalc/internal/core/domain"
)

const demoInput = "1,2"

var escapes = strings.NewReplacer(`\n`, "\n", `\t`, "\t")

func main() {
	os.Exit(execute(context.Background(), os.Args, os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit code. Errors are printed
// to stderr verbatim.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newCommand()
	cmd.Writer = stdout
	cmd.ErrWriter = stderr
	if err := cmd.Run(ctx, args); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "strcalc",
		Usage: "Sum delimited strings of integers",
		Action: func(_ context.Context, c *cli.Command) error {
			sum, err := domain.Add(demoInput)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.Root().Writer, "Hello, world!,%d\n", sum)
			return err
		},
		Commands: []*cli.Command{
			addCommand(),
			serveCommand(),
		},
	}
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Print the sum of one input",
		ArgsUsage: "<input>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Fail on malformed tokens instead of returning 0",
			},
			&cli.BoolFlag{
				Name:  "raw",
				Usage: `Do not expand \n and \t escapes in the input`,
			},
		},
		Action: func(_ context.Context, c *cli.Command) error {
			if c.NArg() != 1 {
				return errors.New("add expects exactly one input argument")
			}
			input := c.Args().First()
			if !c.Bool("raw") {
				input = escapes.Replace(input)
			}

			add := domain.Add
			if c.Bool("strict") {
				add = domain.AddStrict
			}
			sum, err := add(input)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.Root().Writer, sum)
			return err
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API backed by SQLite",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: ":8080",
				Usage: "HTTP listen address",
			},
			&cli.StringFlag{
				Name:  "db-path",
				Value: "./strcalc.sqlite",
				Usage: "SQLite file path",
			},
			&cli.StringFlag{
				Name:    "bootstrap-api-key",
				Sources: cli.EnvVars("STRCALC_BOOTSTRAP_API_KEY"),
				Usage:   "Optional API key to upsert at startup",
			},
			&cli.StringFlag{
				Name:    "bootstrap-tenant",
				Value:   "default",
				Sources: cli.EnvVars("STRCALC_BOOTSTRAP_TENANT"),
				Usage:   "Tenant for bootstrap API key",
			},
			&cli.StringFlag{
				Name:    "bootstrap-key-name",
				Value:   "bootstrap",
				Sources: cli.EnvVars("STRCALC_BOOTSTRAP_KEY_NAME"),
				Usage:   "Name for bootstrap API key",
			},
			&cli.StringFlag{
				Name:    "webhook-url",
				Sources: cli.EnvVars("STRCALC_WEBHOOK_URL"),
				Usage:   "Receiver for calculation events; events are logged when empty",
			},
			&cli.StringFlag{
				Name:    "webhook-secret",
				Sources: cli.EnvVars("STRCALC_WEBHOOK_SECRET"),
				Usage:   "HMAC-SHA256 signing secret for outbound webhook requests",
			},
			&cli.FloatFlag{
				Name:    "rate-limit",
				Sources: cli.EnvVars("STRCALC_RATE_LIMIT"),
				Usage:   "Requests per second per tenant, 0 disables limiting",
			},
			&cli.IntFlag{
				Name:  "rate-burst",
				Value: 20,
				Usage: "Burst size for the per-tenant rate limit",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Sources: cli.EnvVars("STRCALC_LOG_LEVEL"),
				Usage:   "debug, info, warn or error",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			logger, err := newLogger(c.String("log-level"))
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cfg := app.Config{
				Addr:             c.String("addr"),
				DBPath:           c.String("db-path"),
				BootstrapAPIKey:  c.String("bootstrap-api-key"),
				BootstrapTenant:  c.String("bootstrap-tenant"),
				BootstrapKeyName: c.String("bootstrap-key-name"),
				WebhookURL:       c.String("webhook-url"),
				WebhookSecret:    c.String("webhook-secret"),
				RateLimit:        c.Float("rate-limit"),
				RateBurst:        int(c.Int("rate-burst")),
			}

			server, closer, err := app.NewServer(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			defer func() {
				if closeErr := closer.Close(); closeErr != nil {
					logger.Error("close resources", zap.Error(closeErr))
				}
			}()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", zap.String("addr", cfg.Addr))
				errCh <- server.ListenAndServe()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case <-ctx.Done():
				return shutdown(server)
			case sig := <-sigCh:
				logger.Info("received signal", zap.String("signal", sig.String()))
				return shutdown(server)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}
