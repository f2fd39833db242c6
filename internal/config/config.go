package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/swiftwire/swiftwire/pkg/protocol"
)

// Options holds every tunable of the receiver. It is parsed once and
// threaded into the session by value; nothing mutates it after start.
type Options struct {
	// StartPort is the first listening port; the session uses
	// [StartPort, StartPort+NumSockets).
	StartPort int
	// NumSockets is the number of parallel connections (one worker each).
	NumSockets int
	// Dir is the destination directory for received files.
	Dir string

	// BufferSize is the per-worker receive buffer size in bytes. Values
	// below protocol.MaxHeader are rounded up to a multiple of 2 KiB.
	BufferSize int
	// Backlog is the listen backlog per socket.
	Backlog int
	// MaxRetries bounds listen attempts before giving up on a port.
	MaxRetries int
	// SleepMillis is the pause between listen retries.
	SleepMillis int
	// SkipWrites drains block payloads without touching the filesystem.
	SkipWrites bool

	// TimeoutCheckIntervalMillis is the stall-watchdog sampling interval.
	// Negative disables the watchdog.
	TimeoutCheckIntervalMillis int
	// FailedTimeoutChecks is the number of consecutive zero-progress
	// samples tolerated before worker sockets are forced shut.
	FailedTimeoutChecks int

	// RunForever keeps the receiver accepting transfer after transfer.
	RunForever bool
	// Progress enables the single-line TTY progress display.
	Progress bool
	// StatusAddr, when non-empty, serves the live status endpoint.
	StatusAddr string
	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string
}

// Defaults returns the built-in option values.
func Defaults() Options {
	return Options{
		StartPort:                  22356,
		NumSockets:                 8,
		Dir:                        ".",
		BufferSize:                 256 * 1024,
		Backlog:                    1,
		MaxRetries:                 20,
		SleepMillis:                50,
		TimeoutCheckIntervalMillis: 100,
		FailedTimeoutChecks:        200,
		LogLevel:                   "info",
	}
}

// EffectiveBufferSize applies the minimum-size rule: a size below one
// maximal header is rounded up to the smallest multiple of 2 KiB that holds
// one; any larger size is used as given.
func (o Options) EffectiveBufferSize() int {
	if o.BufferSize >= protocol.MaxHeader {
		return o.BufferSize
	}
	const chunk = 2 * 1024
	return chunk * ((protocol.MaxHeader-1)/chunk + 1)
}

// SleepDuration returns the retry pause as a duration.
func (o Options) SleepDuration() time.Duration {
	return time.Duration(o.SleepMillis) * time.Millisecond
}

// TimeoutCheckInterval returns the watchdog sampling interval as a duration.
func (o Options) TimeoutCheckInterval() time.Duration {
	return time.Duration(o.TimeoutCheckIntervalMillis) * time.Millisecond
}

// Parse builds receiver options from environment variables and flags.
// Flags take precedence over environment variables.
func Parse() Options {
	return parseWithFlagSet(flag.CommandLine, os.Args[1:])
}

// parseWithFlagSet is an internal helper for testing with isolated flag sets.
func parseWithFlagSet(fs *flag.FlagSet, args []string) Options {
	opts := Defaults()

	// Environment first
	if v := os.Getenv("SWIFTWIRE_START_PORT"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			opts.StartPort = parsed
		}
	}
	if v := os.Getenv("SWIFTWIRE_NUM_SOCKETS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			opts.NumSockets = parsed
		}
	}
	if v := os.Getenv("SWIFTWIRE_DIR"); v != "" {
		opts.Dir = v
	}
	if v := os.Getenv("SWIFTWIRE_LOG_LEVEL"); v != "" {
		opts.LogLevel = v
	}

	// Flags override environment
	fs.IntVar(&opts.StartPort, "start-port", opts.StartPort, "first listening port")
	fs.IntVar(&opts.NumSockets, "num-sockets", opts.NumSockets, "number of parallel receive sockets")
	fs.StringVar(&opts.Dir, "dir", opts.Dir, "destination directory")
	fs.IntVar(&opts.BufferSize, "buffer-size", opts.BufferSize, "per-connection receive buffer bytes")
	fs.IntVar(&opts.Backlog, "backlog", opts.Backlog, "listen backlog per socket")
	fs.IntVar(&opts.MaxRetries, "max-retries", opts.MaxRetries, "listen attempts per port")
	fs.IntVar(&opts.SleepMillis, "sleep-millis", opts.SleepMillis, "pause between listen retries (ms)")
	fs.BoolVar(&opts.SkipWrites, "skip-writes", opts.SkipWrites, "drain data without writing files")
	fs.IntVar(&opts.TimeoutCheckIntervalMillis, "timeout-check-interval-millis", opts.TimeoutCheckIntervalMillis, "stall watchdog sampling interval (ms, negative disables)")
	fs.IntVar(&opts.FailedTimeoutChecks, "failed-timeout-checks", opts.FailedTimeoutChecks, "zero-progress samples tolerated before shutdown")
	fs.BoolVar(&opts.RunForever, "run-forever", opts.RunForever, "keep accepting transfers (daemon mode)")
	fs.BoolVar(&opts.Progress, "progress", opts.Progress, "show live progress on stderr")
	fs.StringVar(&opts.StatusAddr, "status-addr", opts.StatusAddr, "address for the HTTP/WS status endpoint (empty disables)")
	fs.StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "log level (debug, info, warn, error)")
	fs.Parse(args)

	if opts.NumSockets < 1 {
		opts.NumSockets = 1
	}
	return opts
}
