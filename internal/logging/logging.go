// Package logging routes the standard logger to the console and an optional
// rotating log file.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pandeptwidyaop/modbackup/internal/config"
)

// Setup configures the standard logger to write to console, which may be
// nil, and to cfg.File when set. The returned closer closes the log file.
func Setup(cfg config.LogConfig, console io.Writer) (io.Closer, error) {
	log.SetFlags(log.LstdFlags)

	var writers []io.Writer
	if console != nil {
		writers = append(writers, console)
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0750); err != nil {
			return nil, err
		}
		fileLogger := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.ShouldCompress(),
		}
		writers = append(writers, fileLogger)
		closer = fileLogger
	}

	switch len(writers) {
	case 0:
		log.SetOutput(io.Discard)
	case 1:
		log.SetOutput(writers[0])
	default:
		log.SetOutput(io.MultiWriter(writers...))
	}
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
