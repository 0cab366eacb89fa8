package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

const (
	FileName      = "stash.log"
	maxSizeMB     = 10
	maxBackups    = 30
	maxAgeDays    = 90
	consoleLayout = "15:04:05"
)

type Options struct {
	// Dir holds the rotated log file. Empty logs to the console only.
	Dir     string
	Verbose bool
	Console io.Writer
	NoColor bool
}

type Logger struct {
	zerolog.Logger
	file *lj.Logger
}

func New(opts Options) *Logger {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: consoleLayout,
		NoColor:    opts.NoColor,
	}}

	var file *lj.Logger
	if opts.Dir != "" {
		file = &lj.Logger{
			Filename:   filepath.Join(opts.Dir, FileName),
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   true,
		}
		writers = append(writers, file)
	}

	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339

	return &Logger{
		Logger: zerolog.New(zerolog.MultiLevelWriter(writers...)).
			Level(level).
			With().
			Timestamp().
			Logger(),
		file: file,
	}
}

// Path returns the log file location, or an empty string when logging to
// the console only.
func (l *Logger) Path() string {
	if l.file == nil {
		return ""
	}
	return l.file.Filename
}

func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
