package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/liftlog-io/liftlog/internal/config"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordTooLong is bcrypt's 72-byte input limit.
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// Hasher turns passwords into salted one-way hashes. Verify never returns an
// error: a malformed stored hash simply does not match.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// NewHasher picks the algorithm named in cfg.
func NewHasher(cfg config.AuthConfig) (Hasher, error) {
	switch cfg.PasswordAlgorithm {
	case "", "bcrypt":
		return NewBcryptHasher(cfg.BcryptCost), nil
	case "argon2id":
		return NewArgon2Hasher(), nil
	}
	return nil, fmt.Errorf("unknown password algorithm %q", cfg.PasswordAlgorithm)
}

// BcryptHasher hashes with bcrypt at a fixed cost.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher falls back to bcrypt.DefaultCost when cost is out of range.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(b), nil
}

func (h *BcryptHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Argon2Hasher stores hashes in the PHC string format:
// $argon2id$v=19$m=<KiB>,t=<iterations>,p=<threads>$<salt>$<key>
type Argon2Hasher struct {
	memory     uint32
	iterations uint32
	threads    uint8
	saltLen    int
	keyLen     uint32
}

// NewArgon2Hasher uses 64 MiB, one pass and four lanes.
func NewArgon2Hasher() *Argon2Hasher {
	return &Argon2Hasher{memory: 64 * 1024, iterations: 1, threads: 4, saltLen: 16, keyLen: 32}
}

var b64 = base64.RawStdEncoding

func (h *Argon2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2: read salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, h.iterations, h.memory, h.threads, h.keyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.memory, h.iterations, h.threads, b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

func (h *Argon2Hasher) Verify(password, hash string) bool {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false
	}
	if memory == 0 || iterations == 0 || threads == 0 {
		return false
	}

	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := b64.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false
	}

	got := argon2.IDKey([]byte(password), salt, iterations, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
