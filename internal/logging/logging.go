// Package logging provides the small env-gated debug logger used
// throughout clipperd: gate on an environment variable, write to
// stderr with a bracketed component prefix.
package logging

import (
	"fmt"
	"os"
)

func debugEnabled() bool {
	val := os.Getenv("CLIPPER_DEBUG")
	return val == "1" || val == "true"
}

// Debugf logs to stderr, prefixed with component, only when
// CLIPPER_DEBUG is set.
func Debugf(component, format string, args ...interface{}) {
	if debugEnabled() {
		fmt.Fprintf(os.Stderr, "[%s] "+format+"\n", append([]interface{}{component}, args...)...)
	}
}

// Infof always logs to stderr, prefixed with component. Used for
// startup/shutdown and fatal-path messages that operators need
// regardless of the debug flag.
func Infof(component, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "[%s] "+format+"\n", append([]interface{}{component}, args...)...)
}
