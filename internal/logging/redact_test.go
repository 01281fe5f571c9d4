package logging

import (
	"errors"
	"strings"
	"testing"
)

func TestMaskSecret(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"short", "****"},
		{"abcdefghij", "ab******ij"},
	}
	for _, tt := range tests {
		if got := MaskSecret(tt.in); got != tt.want {
			t.Errorf("MaskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedact(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		secret string
	}{
		{"query token", "GET /api/alerts?token=abcdef123456&x=1 failed", "abcdef123456"},
		{"bearer header", "invalid Bearer eyJhbGciOiJIUzI1NiJ9", "eyJhbGciOiJIUzI1NiJ9"},
		{"telegram url", `Post "https://api.telegram.org/bot123456:AAEhBP0av28_x/sendMessage": dial tcp`, "123456:AAEhBP0av28_x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Redact(tt.in)
			if strings.Contains(got, tt.secret) {
				t.Errorf("Redact() leaked secret: %s", got)
			}
		})
	}

	if got := Redact("no secrets here"); got != "no secrets here" {
		t.Errorf("Redact() changed clean text: %q", got)
	}
}

func TestRedactErrorKeepsChain(t *testing.T) {
	base := errors.New("dial https://api.telegram.org/bot42:XYZabcdefgh/sendMessage")
	err := RedactError(base)
	if strings.Contains(err.Error(), "42:XYZabcdefgh") {
		t.Errorf("error leaked token: %v", err)
	}
	if !errors.Is(err, base) {
		t.Error("redacted error lost its chain")
	}
	clean := errors.New("timeout")
	if RedactError(clean) != clean {
		t.Error("clean error was wrapped")
	}
	if RedactError(nil) != nil {
		t.Error("nil error was wrapped")
	}
}
