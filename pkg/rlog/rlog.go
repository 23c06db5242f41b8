// Package rlog is the structured-logging entry point for the reliability
// engine: the same Debug/Info/Warn/Error/Success/Fatal vocabulary the
// project has always logged with, now backed by logrus fields instead of
// ad-hoc ANSI color codes.
package rlog

import (
	"os"

	"github.com/sirupsen/logrus"
)

var std = logrus.New()

func init() {
	std.SetOutput(os.Stdout)
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05"})
	std.SetLevel(logrus.InfoLevel)
}

// SetLevel sets the minimum log level by name: "debug", "info", "warn",
// "error".
func SetLevel(name string) {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return
	}
	std.SetLevel(level)
}

// Fields is a shorthand alias for attaching structured context to a log
// line, e.g. rlog.Info(rlog.Fields{"addr": addr}, "connection added").
type Fields = logrus.Fields

// Debug logs at debug level with optional structured fields.
func Debug(fields Fields, msg string) { std.WithFields(logrus.Fields(fields)).Debug(msg) }

// Info logs at info level with optional structured fields.
func Info(fields Fields, msg string) { std.WithFields(logrus.Fields(fields)).Info(msg) }

// Warn logs at warn level with optional structured fields.
func Warn(fields Fields, msg string) { std.WithFields(logrus.Fields(fields)).Warn(msg) }

// Error logs at error level with optional structured fields.
func Error(fields Fields, msg string) { std.WithFields(logrus.Fields(fields)).Error(msg) }

// Success is Info under a distinct name, kept for call sites that want to
// mark a positive lifecycle event (bind succeeded, identity linked) the way
// this project always has.
func Success(fields Fields, msg string) { std.WithFields(logrus.Fields(fields)).Info(msg) }

// Fatal logs at fatal level and terminates the process, matching the
// project's long-standing "Fatal logs and exits" contract.
func Fatal(fields Fields, msg string) { std.WithFields(logrus.Fields(fields)).Fatal(msg) }
