// ABOUTME: Tests for recovery code generation and normalization
// ABOUTME: Checks format, alphabet, and that all input variants match the stored hash

package passkey

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestGenerateRecoveryCode_Format(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := generateRecoveryCode()
		if err != nil {
			t.Fatalf("generateRecoveryCode failed: %v", err)
		}
		if len(code) != recoveryCodeLength+1 {
			t.Fatalf("code %q has length %d, want %d", code, len(code), recoveryCodeLength+1)
		}
		if code[5] != '-' {
			t.Errorf("code %q missing separator at position 5", code)
		}
		for _, r := range strings.ReplaceAll(code, "-", "") {
			if !strings.ContainsRune(recoveryCodeAlphabet, r) {
				t.Errorf("code %q contains %q, not in alphabet", code, r)
			}
		}
	}
}

func TestNormalizeRecoveryCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"AB2DE-FGHJK", "AB2DEFGHJK"},
		{"ab2de-fghjk", "AB2DEFGHJK"},
		{"AB2DE FGHJK", "AB2DEFGHJK"},
		{"  ab2defghjk  ", "AB2DEFGHJK"},
	}
	for _, tt := range tests {
		if got := normalizeRecoveryCode(tt.in); got != tt.want {
			t.Errorf("normalizeRecoveryCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGenerateRecoveryCodes_HashesMatchVariants(t *testing.T) {
	plain, hashes, err := generateRecoveryCodes(2)
	if err != nil {
		t.Fatalf("generateRecoveryCodes failed: %v", err)
	}
	if len(plain) != 2 || len(hashes) != 2 {
		t.Fatalf("got %d codes and %d hashes, want 2 each", len(plain), len(hashes))
	}

	// The stored hash matches the dashed, undashed, and lowercase forms
	variants := []string{
		plain[0],
		strings.ReplaceAll(plain[0], "-", ""),
		strings.ToLower(plain[0]),
	}
	for _, v := range variants {
		if err := bcrypt.CompareHashAndPassword([]byte(hashes[0]), []byte(normalizeRecoveryCode(v))); err != nil {
			t.Errorf("variant %q does not match stored hash: %v", v, err)
		}
	}

	// And never matches the other code
	if err := bcrypt.CompareHashAndPassword([]byte(hashes[0]), []byte(normalizeRecoveryCode(plain[1]))); err == nil {
		t.Error("hash for code 0 matched code 1")
	}
}
