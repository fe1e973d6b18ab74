// SPDX-License-Identifier: MIT

// Package log is the ambient logging facade used throughout this module.
// It keeps the same call shape as a hand-rolled stdlib logger (Debugf,
// Infof, Warnf, Errorf, Fatalf) so call sites read exactly as they would
// against the standard library, but is backed by charmbracelet/log, which
// gives us leveled filtering, timestamps and TTY-aware coloring for free
// instead of reimplementing them.
package log

import (
	"os"

	charm "github.com/charmbracelet/log"
)

var base = charm.NewWithOptions(os.Stderr, charm.Options{
	ReportTimestamp: true,
	TimeFormat:      "15:04:05.000",
})

// SetLevel sets the global minimum level. Accepts "debug", "info", "warn",
// "error"; unrecognized values fall back to info.
func SetLevel(levelStr string) {
	lvl, err := charm.ParseLevel(levelStr)
	if err != nil {
		lvl = charm.InfoLevel
	}
	base.SetLevel(lvl)
}

// With returns a sub-logger carrying the given key/value pairs on every
// subsequent call, mirroring charmbracelet/log's structured fields.
func With(keyvals ...interface{}) *charm.Logger {
	return base.With(keyvals...)
}

func Debugf(format string, args ...interface{}) { base.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { base.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { base.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { base.Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { base.Fatalf(format, args...) }

func Debug(args ...interface{}) { base.Debug(args...) }
func Info(args ...interface{})  { base.Info(args...) }
func Warn(args ...interface{})  { base.Warn(args...) }
func Error(args ...interface{}) { base.Error(args...) }
func Fatal(args ...interface{}) { base.Fatal(args...) }
