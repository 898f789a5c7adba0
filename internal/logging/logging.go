// Package logging provides a minimal level-gated logger shared by every
// component of the indexing and search pipeline.
package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	currentLevel Level
	levelOnce    sync.Once
)

func initLevel() {
	levelOnce.Do(func() {
		if debug := os.Getenv("DEBUG"); debug != "" {
			switch strings.ToLower(debug) {
			case "1", "true", "yes", "on":
				currentLevel = LevelDebug
				return
			}
		}

		switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
		case "debug":
			currentLevel = LevelDebug
		case "warn", "warning":
			currentLevel = LevelWarn
		case "error":
			currentLevel = LevelError
		default:
			currentLevel = LevelInfo
		}
	})
}

// GetLevel returns the currently configured log level.
func GetLevel() Level {
	initLevel()
	return currentLevel
}

func IsDebugEnabled() bool { return GetLevel() <= LevelDebug }

func Debug(format string, args ...interface{}) {
	if GetLevel() <= LevelDebug {
		log.Printf("[DEBUG] "+format, args...)
	}
}

func Info(format string, args ...interface{}) {
	if GetLevel() <= LevelInfo {
		log.Printf("[INFO] "+format, args...)
	}
}

func Warn(format string, args ...interface{}) {
	if GetLevel() <= LevelWarn {
		log.Printf("[WARN] "+format, args...)
	}
}

func Error(format string, args ...interface{}) {
	if GetLevel() <= LevelError {
		log.Printf("[ERROR] "+format, args...)
	}
}

func Fatal(format string, args ...interface{}) {
	log.Fatalf("[FATAL] "+format, args...)
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}

// Component is a logger prefixed with a subsystem name (e.g. "indexer",
// "sync", "decoder"). The layered indexer and scheduler each carry one so log
// lines stay attributable to a single video/folder task even when many run
// concurrently.
type Component struct {
	name string
}

// For returns a Component-scoped logger for the given subsystem name.
func For(name string) Component {
	return Component{name: name}
}

func (c Component) Debug(format string, args ...interface{}) { Debug("[%s] "+format, append([]interface{}{c.name}, args...)...) }
func (c Component) Info(format string, args ...interface{})  { Info("[%s] "+format, append([]interface{}{c.name}, args...)...) }
func (c Component) Warn(format string, args ...interface{})  { Warn("[%s] "+format, append([]interface{}{c.name}, args...)...) }
func (c Component) Error(format string, args ...interface{}) { Error("[%s] "+format, append([]interface{}{c.name}, args...)...) }
