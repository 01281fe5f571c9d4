package logging

import (
	"regexp"
	"strings"
)

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(token|api[_-]?key|secret|password|bearer)([=:\s]+)["']?([^\s"'&]+)`),
	// Telegram puts the bot token in the path.
	regexp.MustCompile(`/bot(\d+:[A-Za-z0-9_-]+)`),
}

// MaskSecret keeps the first and last two characters of a credential.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

// Redact masks credentials that appear in free text such as error messages
// and URLs.
func Redact(s string) string {
	s = secretPatterns[0].ReplaceAllStringFunc(s, func(m string) string {
		sub := secretPatterns[0].FindStringSubmatch(m)
		return sub[1] + sub[2] + MaskSecret(sub[3])
	})
	return secretPatterns[1].ReplaceAllStringFunc(s, func(m string) string {
		return "/bot" + MaskSecret(strings.TrimPrefix(m, "/bot"))
	})
}

// RedactError returns err with Redact applied to its message. The original
// chain is kept for errors.Is.
func RedactError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if red := Redact(msg); red != msg {
		return &redactedError{msg: red, err: err}
	}
	return err
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }
