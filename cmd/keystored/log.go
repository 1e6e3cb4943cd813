package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/AlexZinkM/local-keystore/internal/accountstore"
	"github.com/AlexZinkM/local-keystore/internal/handler"
	"github.com/AlexZinkM/local-keystore/internal/keystore"
	"github.com/AlexZinkM/local-keystore/internal/secretstore"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

const (
	logFilename    = "keystored.log"
	maxLogFileSize = 10 * 1024 // KB
	maxLogFiles    = 3
)

// logWriter writes to stdout and, once initLogRotator ran, to the rotator
type logWriter struct {
	rotatorPipe *io.PipeWriter
}

func (w *logWriter) Write(b []byte) (int, error) {
	os.Stdout.Write(b)
	if w.rotatorPipe != nil {
		w.rotatorPipe.Write(b)
	}
	return len(b), nil
}

var (
	logOutput  = &logWriter{}
	backendLog = btclog.NewBackend(logOutput)

	// logRotator should be closed on shutdown
	logRotator *rotator.Rotator

	kstdLog = backendLog.Logger("KSTD")
	kstrLog = backendLog.Logger("KSTR")
	acctLog = backendLog.Logger("ACCT")
	secsLog = backendLog.Logger("SECS")
	httpLog = backendLog.Logger("HTTP")
)

func init() {
	keystore.UseLogger(kstrLog)
	accountstore.UseLogger(acctLog)
	secretstore.UseLogger(secsLog)
	handler.UseLogger(httpLog)
}

var subsystemLoggers = map[string]btclog.Logger{
	"KSTD": kstdLog,
	"KSTR": kstrLog,
	"ACCT": acctLog,
	"SECS": secsLog,
	"HTTP": httpLog,
}

// initLogRotator starts writing logs to logDir in addition to stdout
func initLogRotator(logDir string) error {
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	r, err := rotator.New(filepath.Join(logDir, logFilename), maxLogFileSize, false, maxLogFiles)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}

	pr, pw := io.Pipe()
	go r.Run(pr)

	logOutput.rotatorPipe = pw
	logRotator = r
	return nil
}

// setLogLevels sets every subsystem to level. Unknown levels mean info.
func setLogLevels(level string) {
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		lvl = btclog.LevelInfo
	}
	for _, logger := range subsystemLoggers {
		logger.SetLevel(lvl)
	}
}
