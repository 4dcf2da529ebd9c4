package logger

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

// Sanitizer masks secrets, and optionally personal data, before a record
// is written.
//
// 限制：只處理字串與 error 值；slice、struct 等其他型別原樣輸出。
type Sanitizer struct {
	mu    sync.RWMutex
	rules []SanitizeRule
}

// SanitizeRule rewrites every match of Pattern with Replacement
type SanitizeRule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

var sensitiveKeys = []string{
	"password", "passwd", "pwd",
	"token", "secret", "api_key", "apikey",
	"credential", "auth",
}

// NewSanitizer masks passwords, tokens and API keys only. File paths are
// left alone.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{rules: secretRules()}
}

// NewPersonalDataSanitizer also masks home directories and e-mail addresses
func NewPersonalDataSanitizer() *Sanitizer {
	return &Sanitizer{rules: append(secretRules(), personalDataRules()...)}
}

func secretRules() []SanitizeRule {
	return []SanitizeRule{
		{regexp.MustCompile(`(?i)(password|passwd|pwd)=\S+`), "$1=***"},
		{regexp.MustCompile(`(?i)token=\S+`), "token=***"},
		{regexp.MustCompile(`(?i)bearer\s+\S+`), "bearer ***"},
		{regexp.MustCompile(`(?i)api[_-]?key=\S+`), "api_key=***"},
	}
}

func personalDataRules() []SanitizeRule {
	return []SanitizeRule{
		// Windows 使用者目錄，含 UNC 路徑
		{regexp.MustCompile(`(?i)[A-Z]:\\Users\\[^\\]+`), "***:\\Users\\***"},
		{regexp.MustCompile(`(?i)\\\\[^\\]+\\[^\\]+\\Users\\[^\\]+`), "\\\\***\\***\\Users\\***"},

		// Unix 家目錄
		{regexp.MustCompile(`/home/[^/]+`), "/home/***"},
		{regexp.MustCompile(`/Users/[^/]+`), "/Users/***"},

		// e-mail: keep up to three leading characters
		{regexp.MustCompile(`([a-zA-Z0-9._%+-]{1,3})[a-zA-Z0-9._%+-]*@`), "$1***@"},
	}
}

// Sanitize applies every rule to input
func (s *Sanitizer) Sanitize(input string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rule := range s.rules {
		input = rule.Pattern.ReplaceAllString(input, rule.Replacement)
	}
	return input
}

// ReplaceAttr is the slog.HandlerOptions hook. The value of a sensitive
// key is masked outright; any other string or error value, the message
// included, goes through the rules.
func (s *Sanitizer) ReplaceAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 {
		switch a.Key {
		case slog.TimeKey, slog.LevelKey, slog.SourceKey:
			return a
		}
	}

	var value string
	switch a.Value.Kind() {
	case slog.KindString:
		value = a.Value.String()
	case slog.KindAny:
		err, ok := a.Value.Any().(error)
		if !ok {
			return a
		}
		value = err.Error()
	default:
		return a
	}

	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, maskValue(value))
	}
	return slog.String(a.Key, s.Sanitize(value))
}

// AddRule 新增自訂過濾規則
func (s *Sanitizer) AddRule(pattern string, replacement string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, SanitizeRule{Pattern: re, Replacement: replacement})
	return nil
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, k := range sensitiveKeys {
		if strings.Contains(key, k) {
			return true
		}
	}
	return false
}

// maskValue keeps the first character, and the last one for long values
func maskValue(value string) string {
	switch {
	case len(value) <= 2:
		return "***"
	case len(value) <= 8:
		return value[:1] + "***"
	default:
		return value[:1] + "***" + value[len(value)-1:]
	}
}
