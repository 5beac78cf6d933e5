// ABOUTME: Recovery code generation, formatting, and normalization
// ABOUTME: Codes use an alphabet without ambiguous characters and are stored only as bcrypt hashes

package passkey

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Alphabet excludes 0, O, 1, I, and L so codes survive being read aloud
// or copied by hand.
const recoveryCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const recoveryCodeLength = 10

// generateRecoveryCode produces one code formatted XXXXX-XXXXX.
func generateRecoveryCode() (string, error) {
	max := big.NewInt(int64(len(recoveryCodeAlphabet)))
	buf := make([]byte, recoveryCodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = recoveryCodeAlphabet[n.Int64()]
	}
	return string(buf[:5]) + "-" + string(buf[5:]), nil
}

// generateRecoveryCodes produces count codes and their bcrypt hashes.
// Hashes are computed over the normalized form, so a presented code
// matches regardless of dashes, spaces, or case.
func generateRecoveryCodes(count int) (plain []string, hashes []string, err error) {
	plain = make([]string, count)
	hashes = make([]string, count)
	for i := 0; i < count; i++ {
		code, err := generateRecoveryCode()
		if err != nil {
			return nil, nil, fmt.Errorf("generating recovery code: %w", err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(normalizeRecoveryCode(code)), bcrypt.DefaultCost)
		if err != nil {
			return nil, nil, fmt.Errorf("hashing recovery code: %w", err)
		}
		plain[i] = code
		hashes[i] = string(hash)
	}
	return plain, hashes, nil
}

// normalizeRecoveryCode maps user input to the canonical comparison form:
// uppercase with dashes and spaces stripped.
func normalizeRecoveryCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	return strings.ReplaceAll(code, " ", "")
}
