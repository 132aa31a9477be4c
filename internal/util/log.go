// Package util provides logging and media statistics shared by every package.
package util

import (
	"fmt"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by the pterm default logger (stderr).

func LogDebug(format string, args ...any) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...any) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogSuccess(format string, args ...any) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...any) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...any) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// DebugEnabled reports whether debug messages are currently printed.
func DebugEnabled() bool {
	return pterm.DefaultLogger.Level <= pterm.LogLevelDebug
}

// Scope prefixes every message with a component name, e.g. "[coordinator] ...".
type Scope string

func (s Scope) Debugf(format string, args ...any) {
	LogDebug("[%s] %s", string(s), fmt.Sprintf(format, args...))
}

func (s Scope) Infof(format string, args ...any) {
	LogInfo("[%s] %s", string(s), fmt.Sprintf(format, args...))
}

func (s Scope) Warnf(format string, args ...any) {
	LogWarning("[%s] %s", string(s), fmt.Sprintf(format, args...))
}

func (s Scope) Errorf(format string, args ...any) {
	LogError("[%s] %s", string(s), fmt.Sprintf(format, args...))
}
