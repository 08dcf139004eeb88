package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultFile is where the interactive CLI logs, so records do not
// interleave with the chat transcript on stdout.
const DefaultFile = "travelagent.log"

// Options configures Init.
type Options struct {
	File   string // empty logs to stderr
	Pretty bool   // console output, ignored when File is set
	Level  string // overrides LOG_LEVEL when set
}

// Init builds the process logger. The level comes from Options.Level or the
// LOG_LEVEL environment variable (trace, debug, info, warn, error).
// The returned closer releases the log file, if any.
func Init(opts Options) (zerolog.Logger, io.Closer, error) {
	levelName := opts.Level
	if levelName == "" {
		levelName = os.Getenv("LOG_LEVEL")
	}
	level := parseLogLevel(levelName)

	var (
		output io.Writer
		closer io.Closer = nopCloser{}
	)
	switch {
	case opts.File != "":
		if dir := filepath.Dir(opts.File); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return zerolog.Logger{}, nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
			}
		}
		//nolint:gosec // G304: User-specified log file path is intentional
		file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("failed to open log file %s: %w", opts.File, err)
		}
		output, closer = file, file
	case opts.Pretty:
		output = zerolog.ConsoleWriter{Out: os.Stderr}
	default:
		output = os.Stderr
	}

	log := New(output, level)
	if opts.File != "" {
		log.Info().Str("path", opts.File).Str("level", level.String()).Msg("Logger initialized")
	} else {
		log.Debug().Bool("pretty", opts.Pretty).Str("level", level.String()).Msg("Logger initialized")
	}
	return log, closer, nil
}

// New returns a timestamped JSON logger writing to w.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
