package logging

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

func init() {
	Log = logrus.New()
	Log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})
	Log.SetOutput(os.Stdout)
	Log.SetLevel(logrus.InfoLevel)
}

// SetLevel parses a level name such as "debug" or "warn" and applies it to Log
func SetLevel(name string) error {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return err
	}
	Log.SetLevel(level)
	return nil
}

// WithTrace returns an entry tagged with the mail trace id, or "unknown" when none is set
func WithTrace(traceID string) *logrus.Entry {
	if traceID == "" {
		traceID = "unknown"
	}
	return Log.WithField("trace_id", traceID)
}
