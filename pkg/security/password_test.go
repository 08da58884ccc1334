package security_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hopl-labs/hopl-backend/pkg/config"
	"github.com/hopl-labs/hopl-backend/pkg/security"
)

func testPasswordConfig() config.PasswordConfig {
	return config.PasswordConfig{
		ArgonMemoryKB:    32768,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := security.HashPassword("very-secure-password", testPasswordConfig())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=32768,t=1,p=1$"))

	ok, err := security.VerifyPassword("very-secure-password", hash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = security.VerifyPassword("bogus-password", hash)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	_, err := security.HashPassword("", testPasswordConfig())
	require.ErrorIs(t, err, security.ErrPasswordEmpty)
}

func TestVerifyPasswordBadHash(t *testing.T) {
	hash, err := security.HashPassword("very-secure-password", testPasswordConfig())
	require.NoError(t, err)

	bad := []string{
		"not-a-hash",
		strings.Replace(hash, "argon2id", "argon2i", 1),
		strings.Replace(hash, "v=19", "v=16", 1),
		strings.Replace(hash, "t=1", "t=0", 1),
		strings.Replace(hash, "m=32768", "m=lots", 1),
		hash[:strings.LastIndex(hash, "$")] + "$!!!",
	}
	for _, encoded := range bad {
		_, err := security.VerifyPassword("very-secure-password", encoded)
		require.ErrorIs(t, err, security.ErrInvalidHash, encoded)
	}
}

func TestHashPasswordClampsCosts(t *testing.T) {
	hash, err := security.HashPassword("very-secure-password", config.PasswordConfig{ArgonMemoryKB: 1, ArgonTime: 0})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=8,t=1,p=1$"), hash)

	ok, err := security.VerifyPassword("very-secure-password", hash)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNeedsRehash(t *testing.T) {
	cfg := testPasswordConfig()
	hash, err := security.HashPassword("very-secure-password", cfg)
	require.NoError(t, err)
	require.False(t, security.NeedsRehash(hash, cfg))

	stronger := cfg
	stronger.ArgonTime = 3
	require.True(t, security.NeedsRehash(hash, stronger))
	require.True(t, security.NeedsRehash("garbage", cfg))
}

func TestValidatePassword(t *testing.T) {
	cases := map[string]bool{
		"":                        false,
		"        ":                false,
		"short":                   false,
		"long-enough":             true,
		strings.Repeat("x", 129): false,
	}
	for input, valid := range cases {
		err := security.ValidatePassword(input)
		if valid {
			require.NoError(t, err, "input %q", input)
		} else {
			require.Error(t, err, "input %q", input)
		}
	}
}
