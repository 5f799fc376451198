package stackgen

import (
	"os"

	ethlog "github.com/ethereum/go-ethereum/log"
)

// Package-wide debug switch for verbose logging across the builder, layout
// generator, and code transform. Default is off to keep logs clean unless
// explicitly enabled by tests or callers.
var debugLogsEnabled = false

func init() {
	if v := os.Getenv("STACKGEN_DEBUG"); v == "1" || v == "true" {
		debugLogsEnabled = true
	}
}

// EnableDebugLogs is the single public entrypoint for enabling verbose
// stackgen logging at runtime, e.g. from a CLI flag.
func EnableDebugLogs(on bool) { debugLogsEnabled = on }

func shouldLog() bool { return debugLogsEnabled }

// debugWarn emits a warning only if debug logging is enabled.
func debugWarn(msg string, ctx ...interface{}) {
	if shouldLog() {
		ethlog.Warn(msg, ctx...)
	}
}

// debugInfo emits info only if debug logging is enabled.
func debugInfo(msg string, ctx ...interface{}) {
	if shouldLog() {
		ethlog.Info(msg, ctx...)
	}
}
