package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("Sup3r$ecret")
	require.NoError(t, err)

	require.True(t, VerifyPassword(hash, "Sup3r$ecret"))
	require.False(t, VerifyPassword(hash, "incorrect"))
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken(32)
	require.NoError(t, err)
	b, err := GenerateToken(32)
	require.NoError(t, err)

	require.NotEqual(t, a, b)
	require.Len(t, a, 43)
}

func TestGenerateStrongPassword(t *testing.T) {
	for i := 0; i < 50; i++ {
		password, err := GenerateStrongPassword(16)
		require.NoError(t, err)
		require.Len(t, password, 16)

		require.True(t, strings.ContainsAny(password, upperCaseLetters))
		require.True(t, strings.ContainsAny(password, lowerCaseLetters))
		require.True(t, strings.ContainsAny(password, digits))
		require.True(t, strings.ContainsAny(password, specialChars))
	}
}

func TestGenerateStrongPasswordRejectsShortLength(t *testing.T) {
	_, err := GenerateStrongPassword(8)
	require.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestIsStrongPassword(t *testing.T) {
	require.True(t, IsStrongPassword("Site#2025"))
	require.False(t, IsStrongPassword("Ab1!"), "too short")
	require.False(t, IsStrongPassword("site#2025"), "missing upper case")
	require.False(t, IsStrongPassword("SITE#2025"), "missing lower case")
	require.False(t, IsStrongPassword("Site#Plan"), "missing digit")
	require.False(t, IsStrongPassword("Site2025"), "missing symbol")

	generated, err := GenerateStrongPassword(12)
	require.NoError(t, err)
	require.True(t, IsStrongPassword(generated))
}
