// Package gplog centralizes the per-subsystem loggers used across the
// daemon, following the same registry pattern lnd uses for its own
// subsystem loggers: every package pulls its named logger at init time.
// The loggers write to stderr from the start; the daemon's main sets
// their level once the --debuglevel flag has been parsed.
package gplog

import (
	"os"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// subsystem tags, used as the logger prefix. SetLevel (and so the
// --debuglevel flag) applies one level to all of them.
const (
	SubsystemReactor     = "RCTR"
	SubsystemAPIFront    = "APIF"
	SubsystemSwarmFront  = "SWRM"
	SubsystemPeerStore   = "PSTR"
	SubsystemGitRepo     = "GITR"
	SubsystemCorrelation = "CORR"
	SubsystemConfig      = "CONF"
)

var (
	backendLog = btclog.NewBackend(logWriter{})

	loggers = map[string]btclog.Logger{
		SubsystemReactor:     backendLog.Logger(SubsystemReactor),
		SubsystemAPIFront:    backendLog.Logger(SubsystemAPIFront),
		SubsystemSwarmFront:  backendLog.Logger(SubsystemSwarmFront),
		SubsystemPeerStore:   backendLog.Logger(SubsystemPeerStore),
		SubsystemGitRepo:     backendLog.Logger(SubsystemGitRepo),
		SubsystemCorrelation: backendLog.Logger(SubsystemCorrelation),
		SubsystemConfig:      backendLog.Logger(SubsystemConfig),
	}

	logRotator *rotator.Rotator
)

// logWriter wraps stderr (and, once InitLogRotator is called, a rotating
// file) so btclog's backend can write to both.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stderr.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

// Logger returns the named subsystem logger. Panics on an unknown name,
// since the set of subsystems is fixed at compile time.
func Logger(subsystem string) btclog.Logger {
	logger, ok := loggers[subsystem]
	if !ok {
		panic("gplog: unknown subsystem " + subsystem)
	}
	return logger
}

// SetLevel sets the log level for every known subsystem.
func SetLevel(levelStr string) {
	level, ok := btclog.LevelFromString(levelStr)
	if !ok {
		return
	}
	for _, logger := range loggers {
		logger.SetLevel(level)
	}
}

// InitLogRotator initializes the rotating log file at the given path. It
// must be called at most once, during daemon startup.
func InitLogRotator(logFile string, maxRolls int) error {
	r, err := rotator.New(logFile, 10*1024, false, maxRolls)
	if err != nil {
		return err
	}
	logRotator = r
	return nil
}

// Flush flushes the log rotator, if one was initialized. Deferred from
// main the same way lnd defers backendLog.Flush().
func Flush() {
	if logRotator != nil {
		logRotator.Close()
	}
}
