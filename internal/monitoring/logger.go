// Package monitoring holds the process-wide diagnostic logger shared by the
// pipeline stages and their collaborators.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf.
// Stages report degraded-but-handled conditions through it; tests mute it
// with SetLogger(nil).
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil mutes it.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed routes Printf calls through Logf with a fixed prefix. It
// satisfies the logger interfaces of libraries that log on our behalf.
type Prefixed string

func (p Prefixed) Printf(format string, v ...interface{}) {
	Logf(string(p)+format, v...)
}

// Verbose reports false: library chatter stays off.
func (Prefixed) Verbose() bool { return false }
