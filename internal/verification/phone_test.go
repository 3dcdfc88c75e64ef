package verification

import (
	"testing"

	"github.com/hitoshi/jobboard/internal/model"
)

func TestFormatE164(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"10桁は+1を付与", "(555) 123-4567", "+15551234567"},
		{"先頭1の11桁", "1-555-123-4567", "+15551234567"},
		{"先頭1以外の11桁", "44 7911 123456", "+447911123456"},
		{"既に+付き", "+1 555 123 4567", "+15551234567"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatE164(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("FormatE164(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatE164_Invalid(t *testing.T) {
	for _, input := range []string{"", "12345", "123456789012", "abc-def-ghij"} {
		_, err := FormatE164(input)
		if !model.HasCode(err, model.ErrCodeInvalidPhone) {
			t.Errorf("FormatE164(%q): expected INVALID_PHONE, got %v", input, err)
		}
	}
}

func TestNewCode_Format(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := newCode()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("code length = %d, want 6 (%q)", len(code), code)
		}
		if digitsOnly(code) != code {
			t.Fatalf("code must be digits only: %q", code)
		}
	}
}

func TestNewToken_Format(t *testing.T) {
	token, err := newToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(token) != 64 {
		t.Fatalf("token length = %d, want 64", len(token))
	}
	for _, r := range token {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			t.Fatalf("unexpected character %q in token", r)
		}
	}
}

// TestDeriveLevel は確認済みチャネルの組み合わせごとのレベルを検証する。
func TestDeriveLevel(t *testing.T) {
	tests := []struct {
		phone, email, linkedIn bool
		want                   model.VerificationLevel
	}{
		{false, false, false, model.LevelNone},
		{false, false, true, model.LevelNone},
		{true, false, false, model.LevelBasic},
		{false, true, true, model.LevelBasic},
		{true, true, false, model.LevelEnhanced},
		{true, true, true, model.LevelComplete},
	}
	for _, tt := range tests {
		if got := DeriveLevel(tt.phone, tt.email, tt.linkedIn); got != tt.want {
			t.Errorf("DeriveLevel(%v, %v, %v) = %s, want %s", tt.phone, tt.email, tt.linkedIn, got, tt.want)
		}
	}
}
