// Package logger holds the process-wide charmbracelet logger. Everything
// goes to a rotating file under the config directory; --debug adds stderr.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/julianstephens/streak/internal/constants"
)

// Rotation limits for the log file.
const (
	maxSizeMB  = 10
	maxBackups = 3
	maxAgeDays = 28
)

// Logger is nil until Init or SetOutput; the helpers below drop messages
// until then.
var Logger *log.Logger

type Config struct {
	Debug     bool
	ConfigDir string
}

// Path is where Init writes the log for a config directory.
func Path(configDir string) string {
	return filepath.Join(configDir, "logs", constants.AppName+".log")
}

func Init(cfg Config) error {
	path := Path(cfg.ConfigDir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	level := log.WarnLevel
	if cfg.Debug {
		level = log.DebugLevel
	}
	Logger = log.NewWithOptions(writerFor(path, cfg.Debug), log.Options{
		ReportCaller:    cfg.Debug,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          constants.AppName,
	})
	return nil
}

func writerFor(path string, debug bool) io.Writer {
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	if !debug {
		return file
	}
	return io.MultiWriter(os.Stderr, file)
}

// SetOutput sends everything from debug up to w.
func SetOutput(w io.Writer) {
	Logger = log.NewWithOptions(w, log.Options{
		Level:  log.DebugLevel,
		Prefix: constants.AppName,
	})
}

func logAt(level log.Level, msg string, keyvals []interface{}) {
	if l := Logger; l != nil {
		l.Log(level, msg, keyvals...)
	}
}

func Debug(msg string, keyvals ...interface{}) { logAt(log.DebugLevel, msg, keyvals) }

func Info(msg string, keyvals ...interface{}) { logAt(log.InfoLevel, msg, keyvals) }

func Warn(msg string, keyvals ...interface{}) { logAt(log.WarnLevel, msg, keyvals) }

func Error(msg string, keyvals ...interface{}) { logAt(log.ErrorLevel, msg, keyvals) }
