package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LegacyLogger 舊版 logger（使用 fmt.Fprintf，用於回退）
//
// Lines look like "[2006-01-02 15:04:05 INFO] msg key=value".
type LegacyLogger struct {
	mu     *sync.RWMutex
	level  *Level
	out    io.Writer
	errOut io.Writer
	fields []any
	now    func() time.Time
}

// NewLegacyLogger 建立 legacy logger
func NewLegacyLogger() *LegacyLogger {
	return NewLegacyLoggerTo(os.Stdout, os.Stderr)
}

// NewLegacyLoggerTo writes debug/info to out and warn/error to errOut
func NewLegacyLoggerTo(out, errOut io.Writer) *LegacyLogger {
	level := LevelInfo
	return &LegacyLogger{
		mu:     &sync.RWMutex{},
		level:  &level,
		out:    out,
		errOut: errOut,
		now:    time.Now,
	}
}

// SetLevel 設定日誌級別
func (l *LegacyLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.level = level
}

// shouldLog 判斷是否應該記錄
func (l *LegacyLogger) shouldLog(level Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= *l.level
}

func (l *LegacyLogger) write(w io.Writer, level Level, msg string, args []any) {
	if !l.shouldLog(level) {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s %s] %s", l.now().Format("2006-01-02 15:04:05"), strings.ToUpper(level.String()), msg)
	all := append(append([]any{}, l.fields...), args...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(&b, " %v=%v", all[i], all[i+1])
	}
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	io.WriteString(w, b.String())
}

// Debug 記錄 debug 級別日誌
func (l *LegacyLogger) Debug(msg string, args ...any) {
	l.write(l.out, LevelDebug, msg, args)
}

// Info 記錄 info 級別日誌
func (l *LegacyLogger) Info(msg string, args ...any) {
	l.write(l.out, LevelInfo, msg, args)
}

// Warn 記錄 warn 級別日誌
func (l *LegacyLogger) Warn(msg string, args ...any) {
	l.write(l.errOut, LevelWarn, msg, args)
}

// Error 記錄 error 級別日誌
func (l *LegacyLogger) Error(msg string, args ...any) {
	l.write(l.errOut, LevelError, msg, args)
}

// With 建立帶 context 的子 logger（共用 level 與輸出）
func (l *LegacyLogger) With(args ...any) Logger {
	child := *l
	child.fields = append(append([]any{}, l.fields...), args...)
	return &child
}

// Sync 強制 flush
func (l *LegacyLogger) Sync() error {
	return nil
}

// Shutdown 優雅關閉
func (l *LegacyLogger) Shutdown() error {
	return nil
}
