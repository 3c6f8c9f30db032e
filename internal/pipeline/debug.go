package pipeline

import (
	"io"
	"log"
)

var debugLogger *log.Logger

// SetDebugWriter configures the debug stream for the pipeline engine: stage
// lifecycle, hand-off decisions, joint-termination votes. Pass nil to disable.
func SetDebugWriter(w io.Writer) {
	if w == nil {
		debugLogger = nil
		return
	}
	debugLogger = log.New(w, "[pipeline] ", log.LstdFlags|log.Lmicroseconds)
}

// debugf logs to the debug stream (high-frequency engine telemetry).
func debugf(format string, args ...interface{}) {
	if debugLogger != nil {
		debugLogger.Printf(format, args...)
	}
}
