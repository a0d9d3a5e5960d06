// Package security provides validation, sanitization, and limits for the jobs package.
package security

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jdziat/simple-tube-jobs/pkg/core"
)

// Security limits and configuration
const (
	// MaxJobNameLength is the maximum length for job names. Job names double
	// as tube names, which beanstalkd caps at 200 bytes.
	MaxJobNameLength = 200

	// MaxEnvelopeSize is the maximum encoded envelope size in bytes
	// (beanstalkd's default max-job-size).
	MaxEnvelopeSize = 65535

	// MaxErrorMessageLength is the maximum length for logged error messages
	MaxErrorMessageLength = 4096

	// MaxStackLines is the number of stack lines kept in error log lines
	MaxStackLines = 24

	// MinTTR is the smallest time-to-run a broker grants
	MinTTR = time.Second
)

// validTubeName matches the characters beanstalkd accepts in tube names
var validTubeName = regexp.MustCompile(`^[A-Za-z0-9+/;.$_()][A-Za-z0-9\-+/;.$_()]*$`)

// ValidateJobName validates a job name. Any non-empty name within the
// length limit is accepted.
func ValidateJobName(name string) error {
	if name == "" {
		return core.ErrInvalidJobName
	}
	if len(name) > MaxJobNameLength {
		return core.ErrJobNameTooLong
	}
	return nil
}

// ValidateTubeName validates a name against beanstalkd's tube-name rules.
func ValidateTubeName(name string) error {
	if err := ValidateJobName(name); err != nil {
		return err
	}
	if !validTubeName.MatchString(name) {
		return core.ErrInvalidJobName
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for logging
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// TrimStack reduces a runtime/debug stack dump to the frames that belong
// to user code: the goroutine header, runtime internals and panic plumbing
// are dropped, and at most MaxStackLines lines are kept.
func TrimStack(stack []byte) []string {
	if len(stack) == 0 {
		return nil
	}

	lines := strings.Split(strings.TrimSpace(string(stack)), "\n")
	kept := make([]string, 0, MaxStackLines)

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "goroutine ") {
			continue
		}
		// Function lines are followed by their file:line location.
		if isInternalFrame(line) {
			i++
			continue
		}
		kept = append(kept, line)
		if len(kept) >= MaxStackLines {
			break
		}
	}
	return kept
}

func isInternalFrame(fn string) bool {
	return strings.HasPrefix(fn, "runtime.") ||
		strings.HasPrefix(fn, "runtime/debug.") ||
		strings.HasPrefix(fn, "panic(")
}

// ClampTTR ensures a time-to-run is at least MinTTR
func ClampTTR(d time.Duration) time.Duration {
	if d < MinTTR {
		return MinTTR
	}
	return d
}
