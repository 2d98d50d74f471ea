// Package logger provides centralized logging using arbor.
package logger

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

var (
	globalLogger arbor.ILogger
	loggerMutex  sync.RWMutex
)

// Options configures the global logger.
type Options struct {
	Level      string // trace, debug, info, warn, error
	Format     string // "text" or "json"
	TimeFormat string
	LogDir     string // when set, a rotating file writer is added
	FileName   string // log file name inside LogDir
	MaxSizeMB  int
	MaxBackups int
}

// GetLogger returns the global logger instance.
// If Setup() hasn't been called yet, returns a fallback console logger.
func GetLogger() arbor.ILogger {
	loggerMutex.RLock()
	if globalLogger != nil {
		loggerMutex.RUnlock()
		return globalLogger
	}
	loggerMutex.RUnlock()

	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	if globalLogger == nil {
		globalLogger = arbor.NewLogger().WithConsoleWriter(writerConfig(Options{}, models.LogWriterTypeConsole, ""))
	}
	return globalLogger
}

// Setup configures and installs the global logger.
func Setup(opts Options) arbor.ILogger {
	log := arbor.NewLogger()

	if opts.LogDir != "" {
		if err := os.MkdirAll(opts.LogDir, 0755); err == nil {
			name := opts.FileName
			if name == "" {
				name = "agentcore.log"
			}
			log = log.WithFileWriter(writerConfig(opts, models.LogWriterTypeFile, filepath.Join(opts.LogDir, name)))
		}
	}

	log = log.WithConsoleWriter(writerConfig(opts, models.LogWriterTypeConsole, ""))

	level := opts.Level
	if level == "" {
		level = "info"
	}
	log = log.WithLevelFromString(level)

	loggerMutex.Lock()
	globalLogger = log
	loggerMutex.Unlock()

	return log
}

// writerConfig creates a writer configuration with the configured preferences.
func writerConfig(opts Options, writerType models.LogWriterType, filename string) models.WriterConfiguration {
	timeFormat := opts.TimeFormat
	if timeFormat == "" {
		timeFormat = "15:04:05.000"
	}

	outputType := models.OutputFormatJSON
	if opts.Format == "text" {
		outputType = models.OutputFormatLogfmt
	}

	var maxSize int64 = 100 * 1024 * 1024
	if opts.MaxSizeMB > 0 {
		maxSize = int64(opts.MaxSizeMB) * 1024 * 1024
	}

	maxBackups := 5
	if opts.MaxBackups > 0 {
		maxBackups = opts.MaxBackups
	}

	return models.WriterConfiguration{
		Type:       writerType,
		FileName:   filename,
		TimeFormat: timeFormat,
		OutputType: outputType,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}
}
