// scrubber.go redacts secrets and personal data from reports before they
// leave the process.

package report

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/strongdm/crashkit/pkg/crashkit"
)

// ScrubberConfig controls scrubbing behavior.
type ScrubberConfig struct {
	// SensitiveKeys contains extra substrings that mark an annotation key as
	// sensitive, matched case-insensitively.
	SensitiveKeys []string

	// MaxMessageSize is the maximum length for messages (default: 4096).
	MaxMessageSize int

	// MaxStackTraceSize is the maximum length for rendered traces (default: 32768).
	MaxStackTraceSize int

	// MaxValueSize is the maximum length for one annotation value (default: 1024).
	MaxValueSize int

	// ScrubMessages enables secret and PII redaction in messages (default: true).
	ScrubMessages bool

	// NormalizePaths replaces user-specific directories in traces and file
	// labels (default: true).
	NormalizePaths bool
}

// DefaultScrubberConfig returns production-safe defaults.
func DefaultScrubberConfig() ScrubberConfig {
	return ScrubberConfig{
		MaxMessageSize:    4096,
		MaxStackTraceSize: 32768,
		MaxValueSize:      1024,
		ScrubMessages:     true,
		NormalizePaths:    true,
	}
}

const (
	redacted        = "[REDACTED]"
	truncatedMarker = "...[TRUNCATED]"
)

var messageScrubPatterns = []*regexp.Regexp{
	// API keys and tokens
	regexp.MustCompile(`(?i)(api[_-]?key|token)[=:\s]+['"]?[\w\-\.]+['"]?`),
	regexp.MustCompile(`(?i)(authorization|bearer)[=:\s]+['"]?[\w\-\.]+['"]?[\s]+['"]?[\w\-\.]+['"]?`),
	regexp.MustCompile(`(?i)sk-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`(?i)ghp_[a-zA-Z0-9]{36}`),
	regexp.MustCompile(`(?i)github_pat_[a-zA-Z0-9_]{22,}`),
	regexp.MustCompile(`(?i)xox[baprs]-[a-zA-Z0-9\-]{10,}`),
	regexp.MustCompile(`(?i)eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),

	// Credentials
	regexp.MustCompile(`(?i)(password|passwd|secret|credential)[=:\s]+['"]?[^\s'",]+['"]?`),
	regexp.MustCompile(`(?i)(server|data source)=[^;]+;[^"']*(pwd|password)=[^;]+`),

	// PII
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),
}

var sensitiveKeyPatterns = []string{
	"token",
	"key",
	"secret",
	"password",
	"credential",
	"auth",
	"passwd",
}

var pathNormalizationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/home/[^/]+/`),
	regexp.MustCompile(`/Users/[^/]+/`),
	regexp.MustCompile(`(?i)C:\\Users\\[^\\]+\\`),
	regexp.MustCompile(`/tmp/[^/]+/`),
}

// Scrubber redacts sensitive data from reports.
type Scrubber struct {
	cfg           ScrubberConfig
	sensitiveKeys []string
}

// NewScrubber creates a scrubber. Zero size limits fall back to the defaults.
func NewScrubber(cfg ScrubberConfig) *Scrubber {
	def := DefaultScrubberConfig()
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.MaxStackTraceSize <= 0 {
		cfg.MaxStackTraceSize = def.MaxStackTraceSize
	}
	if cfg.MaxValueSize <= 0 {
		cfg.MaxValueSize = def.MaxValueSize
	}

	keys := append([]string(nil), sensitiveKeyPatterns...)
	for _, k := range cfg.SensitiveKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, strings.ToLower(k))
		}
	}
	return &Scrubber{cfg: cfg, sensitiveKeys: keys}
}

// ScrubMessage truncates msg and redacts secrets and PII in it.
func (s *Scrubber) ScrubMessage(msg string) string {
	return s.redact(truncateWithMarker(msg, s.cfg.MaxMessageSize))
}

func (s *Scrubber) redact(text string) string {
	if !s.cfg.ScrubMessages {
		return text
	}
	for _, pattern := range messageScrubPatterns {
		text = pattern.ReplaceAllString(text, redacted)
	}
	return text
}

// ScrubKeys returns a copy of keys. Values under sensitive keys are replaced,
// the rest are scrubbed like messages and truncated. Stack trace annotations
// are scrubbed as traces.
func (s *Scrubber) ScrubKeys(keys map[string]string) map[string]string {
	if keys == nil {
		return nil
	}
	result := make(map[string]string, len(keys))
	for key, value := range keys {
		switch {
		case strings.HasSuffix(key, "stack trace"):
			result[key] = s.ScrubStackTrace(s.redact(value))
		case s.isSensitiveKey(key):
			result[key] = redacted
		default:
			result[key] = truncateWithMarker(s.redact(value), s.cfg.MaxValueSize)
		}
	}
	return result
}

// ScrubStackTrace normalizes paths and limits trace size.
func (s *Scrubber) ScrubStackTrace(trace string) string {
	if trace == "" {
		return trace
	}
	trace = s.normalizePaths(trace)
	return truncateWithMarker(trace, s.cfg.MaxStackTraceSize)
}

// ScrubThrowable returns a scrubbed deep copy of t. Messages are scrubbed
// and file labels normalized; class names, methods and line numbers are kept.
func (s *Scrubber) ScrubThrowable(t *crashkit.Throwable) *crashkit.Throwable {
	if t == nil {
		return nil
	}

	chain := t.Chain()
	copies := make([]*crashkit.Throwable, len(chain))
	for i, cur := range chain {
		frames := make([]crashkit.StackFrame, len(cur.Frames))
		for j, f := range cur.Frames {
			f.FileLabel = s.normalizePaths(f.FileLabel)
			frames[j] = f
		}
		copies[i] = &crashkit.Throwable{
			Message: s.ScrubMessage(cur.Message),
			Frames:  frames,
		}
		if i > 0 {
			copies[i-1].Cause = copies[i]
		}
	}
	return copies[0]
}

// ScrubBreadcrumbs returns a copy of crumbs with scrubbed messages.
func (s *Scrubber) ScrubBreadcrumbs(crumbs []Breadcrumb) []Breadcrumb {
	if crumbs == nil {
		return nil
	}
	result := make([]Breadcrumb, len(crumbs))
	for i, c := range crumbs {
		c.Message = s.ScrubMessage(c.Message)
		result[i] = c
	}
	return result
}

// ScrubUser redacts the user's email unless messages are left unscrubbed.
func (s *Scrubber) ScrubUser(u User) User {
	if s.cfg.ScrubMessages && u.Email != "" {
		u.Email = redacted
	}
	return u
}

func (s *Scrubber) normalizePaths(text string) string {
	if !s.cfg.NormalizePaths {
		return text
	}
	for _, pattern := range pathNormalizationPatterns {
		text = pattern.ReplaceAllString(text, "/[PATH]/")
	}
	return text
}

func (s *Scrubber) isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range s.sensitiveKeys {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}

// truncateWithMarker truncates a string and appends a truncation marker.
func truncateWithMarker(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen <= len(truncatedMarker) {
		return truncatedMarker[:maxLen]
	}
	return Truncate(s, maxLen-len(truncatedMarker)) + truncatedMarker
}

// Truncate returns the longest prefix of s that fits in n bytes without
// splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if n >= len(s) {
		return s
	}
	if n <= 0 {
		return ""
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
