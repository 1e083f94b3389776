package cmn

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

// Level is a verbosity threshold, in the glog-derived style the teacher
// uses: a single package-global logger gated by an atomic level rather than
// a full structured-logging dependency.
type Level int32

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
	LevelVerbose
)

var (
	logLevel  int32 = int32(LevelInfo)
	stdLogger       = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)
)

// SetLogLevel adjusts the package-global verbosity threshold.
func SetLogLevel(l Level) { atomic.StoreInt32(&logLevel, int32(l)) }

func enabled(l Level) bool { return Level(atomic.LoadInt32(&logLevel)) >= l }

func Infof(format string, args ...interface{}) {
	if enabled(LevelInfo) {
		stdLogger.Printf("I "+format, args...)
	}
}

func Warningf(format string, args ...interface{}) {
	if enabled(LevelWarning) {
		stdLogger.Printf("W "+format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if enabled(LevelError) {
		stdLogger.Printf("E "+format, args...)
	}
}

// V reports whether verbose logging at level is currently enabled, mirroring
// glog's V(level) gate used to avoid formatting costs on hot paths.
func V(level Level) bool { return enabled(level) }

func Fatalf(format string, args ...interface{}) {
	stdLogger.Printf("F "+format, args...)
	panic(fmt.Sprintf(format, args...))
}
