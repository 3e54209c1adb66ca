package auth

import (
	"strconv"
	"testing"
)

func TestGenerateOTPCode_ProducesSixDigits(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := generateOTPCode()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("code = %q, want 6 digits", code)
		}
		n, err := strconv.Atoi(code)
		if err != nil {
			t.Fatalf("code %q is not numeric: %v", code, err)
		}
		// 先頭が0になることはない
		if n < 100000 || n > 999999 {
			t.Fatalf("code %d out of range [100000, 999999]", n)
		}
	}
}

func TestGenerateSessionToken_Is64HexChars(t *testing.T) {
	token, err := generateSessionToken()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(token) != 64 {
		t.Errorf("token length = %d, want 64", len(token))
	}
	for _, r := range token {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			t.Fatalf("token contains non-hex character %q", r)
		}
	}
}

func TestGenerateSessionToken_IsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := generateSessionToken()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token generated: %s", token)
		}
		seen[token] = true
	}
}

func TestValidOTPShape(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"123456", true},
		{"000000", true},
		{"12345", false},
		{"1234567", false},
		{"12345a", false},
		{"12 456", false},
		{"", false},
		{"１２３４５６", false}, // 全角数字は不可
	}

	for _, tt := range tests {
		if got := validOTPShape(tt.code); got != tt.want {
			t.Errorf("validOTPShape(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
