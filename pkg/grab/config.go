package grab

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hollowness-inside/hlsgrab/pkg/fetch"
	"github.com/hollowness-inside/hlsgrab/pkg/mux"
)

// Config holds the tunables shared by every download.
type Config struct {
	BatchSize int
	Delay     time.Duration
	// Timeout bounds each HTTP request; zero leaves it to the transport.
	Timeout time.Duration
	Headers map[string]string

	// FFmpegPath is the muxer binary; empty means ffmpeg on PATH.
	FFmpegPath string
	// NoMuxer disables the muxing engine even when ffmpeg is installed.
	NoMuxer      bool
	ReadyTimeout time.Duration
}

// DefaultConfig returns the batch size, delay and ready timeout used when
// no flags override them.
func DefaultConfig() Config {
	return Config{
		BatchSize:    fetch.DefaultBatchSize,
		Delay:        fetch.DefaultDelay,
		ReadyTimeout: mux.DefaultReadyTimeout,
	}
}

// NewLogger builds the process logger. format "json" writes JSON lines,
// anything else a human readable console format. verbose enables debug
// output.
func NewLogger(w io.Writer, format string, verbose bool) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if !strings.EqualFold(format, "json") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
