// Package logging configures the process wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup sets the level and output of the standard logger. When file is not
// empty log lines are written to both stderr and the file; the returned
// closer releases the file.
func Setup(level, file string) (io.Closer, error) {
	return setup(logrus.StandardLogger(), os.Stderr, level, file)
}

func setup(l *logrus.Logger, stderr io.Writer, level, file string) (io.Closer, error) {
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if file == "" {
		l.SetOutput(stderr)
		return nopCloser{}, nil
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l.SetOutput(io.MultiWriter(stderr, f))
	return f, nil
}
