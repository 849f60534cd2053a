package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.999999999Z07:00"})
	if lvl, err := logrus.ParseLevel(os.Getenv("STUDLY_LOG_LEVEL")); err == nil {
		l.SetLevel(lvl)
	}
	return l
}

// SetLevel changes the minimum level; unknown names are ignored.
func SetLevel(level string) {
	if lvl, err := logrus.ParseLevel(strings.TrimSpace(level)); err == nil {
		logger.SetLevel(lvl)
	}
}

// SetOutput redirects log output, mostly for tests.
func SetOutput(w io.Writer) { logger.SetOutput(w) }

func Log(level, msg string, fields map[string]any) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.WithFields(logrus.Fields(fields)).Log(lvl, msg)
}

func Debug(msg string, fields map[string]any) { Log("debug", msg, fields) }
func Info(msg string, fields map[string]any)  { Log("info", msg, fields) }
func Warn(msg string, fields map[string]any)  { Log("warning", msg, fields) }
func Error(msg string, fields map[string]any) { Log("error", msg, fields) }
