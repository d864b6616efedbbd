// Package logging provides the leveled logger used across a run.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// DefaultLevel is used when no level is configured.
const DefaultLevel = "info"

// Logger is the subset of logrus the pipeline needs.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	WithField(key string, value any) Logger
}

type entry struct {
	*logrus.Entry
}

func (e entry) WithField(key string, value any) Logger {
	return entry{e.Entry.WithField(key, value)}
}

// New returns a text logger writing to w at the named level.
func New(w io.Writer, level string) (Logger, error) {
	if level == "" {
		level = DefaultLevel
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableLevelTruncation: true})
	return entry{logrus.NewEntry(l)}, nil
}

// Discard returns a logger that drops everything.
func Discard() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return entry{logrus.NewEntry(l)}
}
