package config

import (
	"fmt"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
	"io"
	"os"
	"strings"
)

// LoggingLvl is the logging level of the tunnel
type LoggingLvl uint

const (
	// LogLvlErr only log error msg
	LogLvlErr LoggingLvl = iota
	// LogLvlInfo logs error + info msg
	LogLvlInfo
	// LogLvlDebug logs error + info + debug msg
	LogLvlDebug
	// LogLvlTrace also logs every packet verdict
	LogLvlTrace
)

// ParseLoggingLvl converts a level name into a LoggingLvl
func ParseLoggingLvl(s string) (LoggingLvl, error) {
	switch strings.ToLower(s) {
	case "error", "err":
		return LogLvlErr, nil
	case "info":
		return LogLvlInfo, nil
	case "debug":
		return LogLvlDebug, nil
	case "trace":
		return LogLvlTrace, nil
	default:
		return LogLvlInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// NewLogger creates a Logger with the specified log level. When file is not
// empty, logs go to a size rotated file instead of the console.
func NewLogger(logl LoggingLvl, file string) (*zerolog.Logger, error) {
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	if file != "" {
		out = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
	}
	logger := zerolog.New(out).Level(logLvlToZerologLvl(logl)).With().Timestamp().Logger()
	return &logger, nil
}

func logLvlToZerologLvl(l LoggingLvl) zerolog.Level {
	switch l {
	case LogLvlErr:
		return zerolog.ErrorLevel
	case LogLvlInfo:
		return zerolog.InfoLevel
	case LogLvlDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}
