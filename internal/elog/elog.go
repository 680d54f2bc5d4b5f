// Package elog wires the server's logging through a single package-level
// logrus logger, the way the teacher package wires fs.Infof/fs.Debugf
// through one shared sink. Host errno detail is only ever attached at
// Debug level (spec.md §7: "Host-side errno is logged in debug mode
// only; never leaked to the wire").
package elog

import (
	"os"

	"github.com/sirupsen/logrus"
)

var log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		DisableColors:   false,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetDebug toggles debug-level logging on (-v flag).
func SetDebug(on bool) {
	if on {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
}

// Infof logs at info level.
func Infof(format string, args ...interface{}) {
	log.Infof(format, args...)
}

// Debugf logs at debug level; this is where host errno / frame dumps go.
func Debugf(format string, args ...interface{}) {
	log.Debugf(format, args...)
}

// Warnf logs at warn level.
func Warnf(format string, args ...interface{}) {
	log.Warnf(format, args...)
}

// Errorf logs at error level.
func Errorf(format string, args ...interface{}) {
	log.Errorf(format, args...)
}

// WithFields returns an entry carrying structured context (drive, opcode,
// seq, mac, ...), mirroring the field-tagged style the teacher's own
// logging call sites lean on.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return log.WithFields(fields)
}
