// Package cryptox holds the hashing primitives used for credentials:
// bcrypt for passwords, blake3 for persisted session tokens, and
// numeric one-time codes.
package cryptox

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/bcrypt"
)

// OtpLength is the number of digits in a credential-change code.
const OtpLength = 6

// PasswordCost is the bcrypt work factor. Tests lower it.
var PasswordCost = bcrypt.DefaultCost

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: empty password", common.ErrValidation)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// VerifyPassword reports whether password matches hash. A malformed hash
// is treated as a mismatch.
func VerifyPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// HashToken returns the hex blake3 digest of a session token. Only the digest
// is stored, so a leaked users table does not leak live sessions.
func HashToken(token string) string {
	sum := blake3.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TokenMatches compares token against a stored digest in constant time.
func TokenMatches(storedHash, token string) bool {
	if storedHash == "" || token == "" {
		return false
	}
	got := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(got), []byte(storedHash)) == 1
}

// NewOtp returns a fresh numeric code of OtpLength digits.
func NewOtp() (string, error) {
	code, err := common.MakeRandDigits(OtpLength)
	if err != nil {
		return "", errors.Join(common.ErrorInternal, err)
	}
	return code, nil
}
