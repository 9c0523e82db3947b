package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"overlay-studio/internal/client"
	"overlay-studio/internal/platform/config"
	"overlay-studio/internal/platform/logger"
)

// options holds the persistent flags shared by every command.
type options struct {
	api      string
	timeout  time.Duration
	logLevel string
	out      io.Writer
}

func (o *options) logger() *slog.Logger {
	return logger.NewWithWriter(os.Stderr, o.logLevel, "text")
}

func (o *options) httpClient() *http.Client {
	return &http.Client{Timeout: o.timeout}
}

func (o *options) overlays() (*client.OverlayClient, error) {
	return client.NewOverlayClient(o.api, o.httpClient(), o.logger())
}

func (o *options) streams() (*client.StreamClient, error) {
	return client.NewStreamClient(o.api, o.httpClient(), o.logger())
}

func (o *options) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{out: out}

	root := &cobra.Command{
		Use:           "overlayctl",
		Short:         "Manage video overlays and the live stream from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetContext(context.Background())

	root.PersistentFlags().StringVar(&opts.api, "api", config.GetEnv("API_BASE_URL", "http://localhost:8080"), "Base URL of the overlay server")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", config.GetEnvDuration("API_TIMEOUT", 10*time.Second), "Per-request timeout")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "error", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newListCmd(opts),
		newAddCmd(opts),
		newMoveCmd(opts),
		newResizeCmd(opts),
		newRemoveCmd(opts),
		newStreamCmd(opts),
	)
	return root
}
