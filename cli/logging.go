package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// setupLogging points the global logger at stderr and, when logPath isn't
// empty, appends JSON lines to logPath. The returned closer closes the log
// file.
func setupLogging(level, logPath string, stderr io.Writer) (io.Closer, error) {
	writers := []io.Writer{zerolog.ConsoleWriter{Out: stderr, NoColor: true}}
	var closer io.Closer = nopCloser{}

	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
			return nil, fmt.Errorf("can't create the log directory: %w", err)
		}
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("can't open the log file: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}

	// Log with filename and line number
	l := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Caller().Logger()

	switch level {
	case "debug":
		l = l.Level(zerolog.DebugLevel)
	case "warn":
		l = l.Level(zerolog.WarnLevel)
	case "error":
		l = l.Level(zerolog.ErrorLevel)
	default:
		l = l.Level(zerolog.InfoLevel)
	}
	log.Logger = l
	return closer, nil
}
