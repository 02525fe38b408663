package logger

import (
	"gopkg.in/natefinch/lumberjack.v2"
)

// newRotatingFile returns a size-rotated log file. Rotated files are named
// after the log file with a timestamp and are removed after MaxAge days.
func newRotatingFile(cfg Config) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:  cfg.File,
		MaxSize:   cfg.MaxSize,
		MaxAge:    cfg.MaxAge,
		Compress:  cfg.Compress,
		LocalTime: true,
	}
}
