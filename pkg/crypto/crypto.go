package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"math/big"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// MinGeneratedPasswordLength is the shortest password GenerateStrongPassword will produce.
const MinGeneratedPasswordLength = 12

const (
	upperCaseLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerCaseLetters = "abcdefghijklmnopqrstuvwxyz"
	digits           = "0123456789"
	specialChars     = "!@#$%^&*()-_=+[]{}|;:',.<>?"
)

// ErrPasswordTooShort is returned when a generated password would be weaker than the policy allows.
var ErrPasswordTooShort = errors.New("crypto: generated password must be at least 12 characters")

// HashPassword returns a bcrypt hash of the supplied password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares the hashed password with the plaintext candidate.
func VerifyPassword(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}

// GenerateToken returns a random URL-safe token of the requested byte length.
func GenerateToken(length int) (string, error) {
	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// GenerateStrongPassword builds a random password containing at least one
// upper case letter, lower case letter, digit and special character.
func GenerateStrongPassword(length int) (string, error) {
	if length < MinGeneratedPasswordLength {
		return "", ErrPasswordTooShort
	}

	password := make([]byte, 0, length)
	for _, set := range []string{upperCaseLetters, lowerCaseLetters, digits, specialChars} {
		ch, err := randomChar(set)
		if err != nil {
			return "", err
		}
		password = append(password, ch)
	}

	all := upperCaseLetters + lowerCaseLetters + digits + specialChars
	for len(password) < length {
		ch, err := randomChar(all)
		if err != nil {
			return "", err
		}
		password = append(password, ch)
	}

	// Fisher-Yates so the guaranteed classes are not always at the front.
	for i := len(password) - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return "", err
		}
		password[i], password[j] = password[j], password[i]
	}

	return string(password), nil
}

func randomChar(set string) (byte, error) {
	idx, err := randomIndex(len(set))
	if err != nil {
		return 0, err
	}
	return set[idx], nil
}

func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// IsStrongPassword reports whether password has at least six characters and
// mixes lower case, upper case, digits and at least one other symbol.
func IsStrongPassword(password string) bool {
	if len([]rune(password)) < 6 {
		return false
	}

	var lower, upper, digit, other bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			other = true
		}
	}
	return lower && upper && digit && other
}
