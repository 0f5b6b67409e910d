// Package utils
package utils

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultLogFile = "option-sim.log"

var (
	logger  zerolog.Logger
	once    sync.Once
	level   = zerolog.InfoLevel
	logFile = defaultLogFile
)

// SetupLogger configures level and file before the first GetLogger call.
// An empty file disables file output.
func SetupLogger(lvl, file string) {
	if parsed, err := zerolog.ParseLevel(strings.ToLower(lvl)); err == nil && lvl != "" {
		level = parsed
	}
	logFile = file
}

func GetLogger() *zerolog.Logger {
	once.Do(func() {
		writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}}
		if logFile != "" {
			file, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err == nil {
				writers = append(writers, file)
			}
		}
		logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
			With().Timestamp().Str("app", "option-sim").Logger().
			Level(level)
	})
	return &logger
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return GetLogger().With().Str("component", name).Logger()
}
