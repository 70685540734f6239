package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	blue   = "\x1b[34m"
	yellow = "\x1b[33m"
	red    = "\x1b[31m"
	green  = "\x1b[32m"
	reset  = "\x1b[0m"
)

// Level orders log severities; messages below the configured level are dropped.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu     sync.Mutex
	out    io.Writer = os.Stdout
	level            = LevelInfo
	colors           = true
)

// SetOutput redirects log output. Colors are disabled for anything that is not stdout/stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	colors = w == os.Stdout || w == os.Stderr
}

// SetLevel sets the minimum level that is written.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// ParseLevel maps LOG_LEVEL values ("debug", "info", "warn", "error") to a Level.
// Unknown values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR", "ERR":
		return LevelError
	default:
		return LevelInfo
	}
}

func prefix(name string) string {
	var color string
	switch name {
	case "DEBUG":
		color = blue
	case "INFO":
		color = green
	case "WARNING":
		color = yellow
	case "ERROR":
		color = red
	default:
		color = reset
	}
	ts := time.Now().Format("2006-01-02T15:04:05")
	if !colors {
		return fmt.Sprintf("[%s] - %s - ", name, ts)
	}
	return fmt.Sprintf("[%s%s%s] - %s - ", color, name, reset, ts)
}

func write(l Level, name, format string, a ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if l < level {
		return
	}
	fmt.Fprintf(out, "%s%s\n", prefix(name), fmt.Sprintf(format, a...))
}

func Debugf(format string, a ...interface{}) {
	write(LevelDebug, "DEBUG", format, a...)
}

func Infof(format string, a ...interface{}) {
	write(LevelInfo, "INFO", format, a...)
}

func Warnf(format string, a ...interface{}) {
	write(LevelWarn, "WARNING", format, a...)
}

func Errorf(format string, a ...interface{}) {
	write(LevelError, "ERROR", format, a...)
}

func Fatalf(format string, a ...interface{}) {
	Errorf(format, a...)
	os.Exit(1)
}
