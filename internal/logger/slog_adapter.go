package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// SlogLogger writes through a log/slog handler. Masking happens in the
// handler's ReplaceAttr hook, so attributes bound with With are covered
// as well as per-call ones.
type SlogLogger struct {
	logger *slog.Logger
	// out is nil for loggers derived with With
	out *outputs
}

// outputs owns the writers that must be synced and closed
type outputs struct {
	mu      sync.Mutex
	closers []io.Closer
}

// NewSlogLogger 建立 slog logger
func NewSlogLogger(config Config) (*SlogLogger, error) {
	sanitizer := NewSanitizer()
	if config.MaskPersonalData {
		sanitizer = NewPersonalDataSanitizer()
	}
	for _, p := range config.MaskPatterns {
		if err := sanitizer.AddRule(p, MaskReplacement); err != nil {
			return nil, fmt.Errorf("log mask pattern %q: %w", p, err)
		}
	}

	w, out, err := openOutputs(config)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level:       config.Level.slogLevel(),
		ReplaceAttr: sanitizer.ReplaceAttr,
	}

	var handler slog.Handler
	if config.Format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &SlogLogger{logger: slog.New(handler), out: out}, nil
}

// openOutputs resolves the configured targets into a single writer
func openOutputs(config Config) (io.Writer, *outputs, error) {
	out := &outputs{}
	var writers []io.Writer

	for _, o := range config.Outputs {
		switch o.Type {
		case OutputStdout, OutputStderr:
			w := o.Writer
			if w == nil {
				w = os.Stdout
				if o.Type == OutputStderr {
					w = os.Stderr
				}
			} else if c, ok := w.(io.Closer); ok && !isStdStream(w) {
				out.closers = append(out.closers, c)
			}
			writers = append(writers, w)

		case OutputFile:
			if !config.File.Enabled {
				continue
			}
			fw, err := newRotatingFile(config.File)
			if err != nil {
				out.close()
				return nil, nil, fmt.Errorf("failed to create file writer: %w", err)
			}
			writers = append(writers, fw)
			out.closers = append(out.closers, fw)
		}
	}

	switch len(writers) {
	case 0:
		return os.Stdout, out, nil
	case 1:
		return writers[0], out, nil
	default:
		return io.MultiWriter(writers...), out, nil
	}
}

func isStdStream(w io.Writer) bool {
	return w == os.Stdout || w == os.Stderr
}

// newRotatingFile 建立 lumberjack 檔案 writer
func newRotatingFile(config FileConfig) (*lumberjack.Logger, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("log file path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   config.Path,
		MaxSize:    config.MaxSizeMB,
		MaxAge:     config.MaxAgeDays,
		MaxBackups: config.MaxBackups,
		Compress:   config.Compress,
	}, nil
}

// sync fsyncs outputs backed by files; lumberjack writes through
func (o *outputs) sync() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var errs []error
	for _, c := range o.closers {
		if f, ok := c.(*os.File); ok {
			if err := f.Sync(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// close is idempotent
func (o *outputs) close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var errs []error
	for _, c := range o.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	o.closers = nil
	return errors.Join(errs...)
}

func (l *SlogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *SlogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *SlogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *SlogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// With returns a logger carrying args on every record. It shares the
// parent's outputs but does not own them.
func (l *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{logger: l.logger.With(args...)}
}

// Sync flushes file outputs
func (l *SlogLogger) Sync() error {
	if l.out == nil {
		return nil
	}
	return l.out.sync()
}

// Shutdown closes the outputs; safe to call more than once
func (l *SlogLogger) Shutdown() error {
	if l.out == nil {
		return nil
	}
	return l.out.close()
}
