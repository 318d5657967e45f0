package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hollowness-inside/hlsgrab/pkg/fetch"
	"github.com/hollowness-inside/hlsgrab/pkg/grab"
)

var (
	verbose    bool
	headers    string
	batchSize  int
	delay      time.Duration
	timeout    time.Duration
	ffmpegPath string
	logFormat  string
)

// setup builds the logger and download service from the persistent flags.
func setup(noMux bool) (*grab.Service, zerolog.Logger, error) {
	log := grab.NewLogger(os.Stderr, logFormat, verbose)

	headerMap, err := fetch.LoadHeaders(headers)
	if err != nil {
		return nil, log, err
	}

	cfg := grab.DefaultConfig()
	cfg.BatchSize = batchSize
	cfg.Delay = delay
	cfg.Timeout = timeout
	cfg.Headers = headerMap
	cfg.FFmpegPath = ffmpegPath
	cfg.NoMuxer = noMux

	return grab.New(cfg, log), log, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "hlsgrab",
		Short:         "Find, download and assemble HLS streams",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	flags.StringVar(&headers, "headers", "", "Path to a request headers file (JSON object or Name: value lines)")
	flags.IntVar(&batchSize, "batch-size", fetch.DefaultBatchSize, "Number of segments fetched concurrently")
	flags.DurationVar(&delay, "delay", fetch.DefaultDelay, "Pause between segment batches")
	flags.DurationVar(&timeout, "timeout", 0, "Timeout for each HTTP request (0 means none)")
	flags.StringVar(&ffmpegPath, "ffmpeg", "", "Path to ffmpeg executable")
	flags.StringVar(&logFormat, "log-format", "console", "Log format: console or json")

	rootCmd.AddCommand(
		classifyCmd(),
		inspectCmd(),
		downloadCmd(),
		segmentsCmd(),
		hostCmd(),
		serveCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
