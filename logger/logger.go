package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where and how verbosely the loggers write.
type Options struct {
	Level string
	File  string
}

var (
	InfoLogger  = newLogger(os.Stdout, logrus.InfoLevel)
	WarnLogger  = newLogger(os.Stdout, logrus.WarnLevel)
	ErrorLogger = newLogger(os.Stderr, logrus.ErrorLevel)
	DebugLogger = newLogger(os.Stdout, logrus.DebugLevel)
)

func newLogger(out io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return l
}

// InitLoggers rebuilds the package loggers. When a file is configured every logger
// also writes to a rotating log file.
func InitLoggers(opts Options) {
	var file io.Writer
	if opts.File != "" {
		file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
	}

	writer := func(std io.Writer) io.Writer {
		if file == nil {
			return std
		}
		return io.MultiWriter(std, file)
	}

	InfoLogger = newLogger(writer(os.Stdout), logrus.InfoLevel)
	WarnLogger = newLogger(writer(os.Stdout), logrus.WarnLevel)
	ErrorLogger = newLogger(writer(os.Stderr), logrus.ErrorLevel)

	debugLevel := logrus.InfoLevel
	if lvl, err := logrus.ParseLevel(opts.Level); err == nil && lvl >= logrus.DebugLevel {
		debugLevel = lvl
	}
	DebugLogger = newLogger(writer(os.Stdout), debugLevel)

	InfoLogger.Info("Loggers initialized")
}
