package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const (
	ServiceName = "shadowscan"
	Version     = "1.0.0"
)

type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
	// FileLocation enables a rotated log file next to the console output.
	FileLocation string `json:"file_location" yaml:"file_location" mapstructure:"file_location"`
	MaxSize      int    `json:"max_size" yaml:"max_size" mapstructure:"max_size"`
	MaxBackups   int    `json:"max_backups" yaml:"max_backups" mapstructure:"max_backups"`
	MaxAge       int    `json:"max_age" yaml:"max_age" mapstructure:"max_age"`
	Compress     bool   `json:"compress" yaml:"compress" mapstructure:"compress"`
	// Quiet drops console output. It is ignored when no file is configured.
	Quiet        bool `json:"quiet" yaml:"quiet" mapstructure:"quiet"`
	ReportCaller bool `json:"report_caller" yaml:"report_caller" mapstructure:"report_caller"`
}

// Logger owns the scan process log: console plus an optional rotated file.
// Components receive the embedded *logrus.Logger or a child from
// WithComponent.
type Logger struct {
	*logrus.Logger

	mu   sync.Mutex
	file *lumberjack.Logger
	base logrus.Fields
}

func NewLogger(cfg LogConfig) (*Logger, error) {
	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if cfg.Level == "" {
		level, err = logrus.InfoLevel, nil
	}
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	l := &Logger{
		Logger: logrus.New(),
		base: logrus.Fields{
			"service": ServiceName,
			"version": Version,
			"host":    hostname(),
		},
	}
	l.SetLevel(level)
	l.SetFormatter(formatterFor(cfg.Format))
	if cfg.ReportCaller {
		l.SetReportCaller(true)
	}

	var sinks []io.Writer
	if cfg.FileLocation != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FileLocation), 0o755); err != nil {
			return nil, fmt.Errorf("log directory: %w", err)
		}
		l.file = &lumberjack.Logger{
			Filename:   cfg.FileLocation,
			MaxSize:    max(1, cfg.MaxSize),
			MaxBackups: max(0, cfg.MaxBackups),
			MaxAge:     max(0, cfg.MaxAge),
			Compress:   cfg.Compress,
			LocalTime:  true,
		}
		sinks = append(sinks, l.file)
	}
	if !cfg.Quiet || l.file == nil {
		sinks = append(sinks, os.Stderr)
	}
	l.SetOutput(io.MultiWriter(sinks...))
	l.AddHook(fieldsHook(l.base))
	return l, nil
}

func formatterFor(format string) logrus.Formatter {
	short := func(f *runtime.Frame) (string, string) {
		fn := f.Function
		if i := strings.LastIndex(fn, "/"); i >= 0 {
			fn = fn[i+1:]
		}
		return fn, fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
	}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return &logrus.JSONFormatter{
			TimestampFormat:  time.RFC3339Nano,
			CallerPrettyfier: short,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "severity",
				logrus.FieldKeyMsg:   "message",
			},
		}
	}
	return &logrus.TextFormatter{
		FullTimestamp:    true,
		TimestampFormat:  time.TimeOnly,
		CallerPrettyfier: short,
	}
}

// WithComponent returns a logger sharing this one's output, level and
// formatter that stamps every entry with component and fields.
func (l *Logger) WithComponent(component string, fields logrus.Fields) *logrus.Logger {
	child := &logrus.Logger{
		Out:          l.Out,
		Formatter:    l.Formatter,
		Hooks:        make(logrus.LevelHooks),
		Level:        l.GetLevel(),
		ExitFunc:     os.Exit,
		ReportCaller: l.ReportCaller,
	}
	extra := logrus.Fields{"component": component}
	for k, v := range l.base {
		extra[k] = v
	}
	for k, v := range fields {
		extra[k] = v
	}
	child.AddHook(fieldsHook(extra))
	return child
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ConsoleLogger is the fallback used when the configured logger cannot be
// built, e.g. for an unwritable log file.
func ConsoleLogger(level string) *Logger {
	l, err := NewLogger(LogConfig{Level: level})
	if err != nil {
		l, _ = NewLogger(LogConfig{})
	}
	return l
}

// fieldsHook adds static fields without overriding per-entry ones.
type fieldsHook logrus.Fields

func (h fieldsHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h fieldsHook) Fire(e *logrus.Entry) error {
	for k, v := range h {
		if _, ok := e.Data[k]; !ok {
			e.Data[k] = v
		}
	}
	return nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
