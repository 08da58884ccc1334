package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"

	"github.com/hopl-labs/hopl-backend/pkg/config"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

var (
	ErrPasswordEmpty = errors.New("password cannot be empty")
	ErrInvalidHash   = errors.New("invalid argon2id hash")
)

var b64 = base64.RawStdEncoding

// phc is an argon2id hash in the $argon2id$v=19$m=..,t=..,p=..$salt$key form.
type phc struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func (h phc) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.memory, h.time, h.threads, b64.EncodeToString(h.salt), b64.EncodeToString(h.key))
}

func (h phc) derive(password string) []byte {
	return argon2.IDKey([]byte(password), h.salt, h.time, h.memory, h.threads, uint32(len(h.key)))
}

func parsePHC(encoded string) (phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return phc{}, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return phc{}, ErrInvalidHash
	}

	var h phc
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.memory, &h.time, &h.threads); err != nil {
		return phc{}, ErrInvalidHash
	}
	if h.time == 0 || h.threads == 0 {
		return phc{}, ErrInvalidHash
	}

	var err error
	if h.salt, err = b64.DecodeString(parts[4]); err != nil {
		return phc{}, ErrInvalidHash
	}
	if h.key, err = b64.DecodeString(parts[5]); err != nil || len(h.key) == 0 {
		return phc{}, ErrInvalidHash
	}
	return h, nil
}

// costs clamps configured argon2 costs into a range that cannot lock up the API.
type costs struct {
	memory, time    uint32
	threads         uint8
	saltLen, keyLen int
}

func costsFrom(cfg config.PasswordConfig) costs {
	return costs{
		memory:  uint32(min(max(cfg.ArgonMemoryKB, 8), 512*1024)),
		time:    uint32(min(max(cfg.ArgonTime, 1), 10)),
		threads: uint8(min(max(cfg.ArgonParallelism, 1), 255)),
		saltLen: min(max(cfg.ArgonSaltLen, 8), 64),
		keyLen:  min(max(cfg.ArgonKeyLen, 16), 64),
	}
}

// HashPassword derives a fresh argon2id hash with a random salt.
func HashPassword(password string, cfg config.PasswordConfig) (string, error) {
	if password == "" {
		return "", ErrPasswordEmpty
	}
	c := costsFrom(cfg)
	h := phc{memory: c.memory, time: c.time, threads: c.threads, salt: make([]byte, c.saltLen), key: make([]byte, c.keyLen)}
	if _, err := rand.Read(h.salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	h.key = h.derive(password)
	return h.String(), nil
}

// VerifyPassword compares in constant time using the costs stored in encoded.
func VerifyPassword(password, encoded string) (bool, error) {
	h, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(h.key, h.derive(password)) == 1, nil
}

// NeedsRehash reports whether encoded was produced with costs other than cfg's.
// Unparseable hashes always need one.
func NeedsRehash(encoded string, cfg config.PasswordConfig) bool {
	h, err := parsePHC(encoded)
	if err != nil {
		return true
	}
	c := costsFrom(cfg)
	return h.memory != c.memory || h.time != c.time || h.threads != c.threads || len(h.key) != c.keyLen
}

// ValidatePassword enforces the registration length policy, counted in runes.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	switch {
	case strings.TrimSpace(password) == "":
		return ErrPasswordEmpty
	case n < MinPasswordLength:
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	case n > MaxPasswordLength:
		return fmt.Errorf("password must be at most %d characters", MaxPasswordLength)
	}
	return nil
}
