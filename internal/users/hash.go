package users

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordBytes is the shortest password Hash accepts.
const MinPasswordBytes = 10

var (
	ErrPasswordTooShort = errors.New("password must be at least 10 bytes")
	ErrUnknownHash      = errors.New("unrecognized password hash")
)

// HashParams are the argon2id cost parameters for new hashes.
type HashParams struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultHashParams follows the OWASP argon2id baseline.
func DefaultHashParams() HashParams {
	return HashParams{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (p HashParams) validate() error {
	switch {
	case p.Memory < 8*1024:
		return errors.New("hash memory must be >= 8192 KB")
	case p.Time < 1:
		return errors.New("hash time must be >= 1")
	case p.Parallelism < 1:
		return errors.New("hash parallelism must be >= 1")
	case p.SaltLength < 16:
		return errors.New("hash salt length must be >= 16")
	case p.KeyLength < 16:
		return errors.New("hash key length must be >= 16")
	}
	return nil
}

// Hasher produces argon2id PHC strings. It also verifies bcrypt hashes
// imported from older user tables and reports them for upgrade.
type Hasher struct {
	params HashParams
}

func NewHasher(p HashParams) (*Hasher, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &Hasher{params: p}, nil
}

// Hash encodes password as $argon2id$v=19$m=..,t=..,p=..$salt$key.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < MinPasswordBytes {
		return "", ErrPasswordTooShort
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.Memory, h.params.Time, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks password against encoded. upgrade is true when the match
// used bcrypt or weaker argon2 parameters than the current ones.
func (h *Hasher) Verify(password, encoded string) (ok, upgrade bool, err error) {
	if isBcrypt(encoded) {
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, false, nil
		}
		if err != nil {
			return false, false, fmt.Errorf("%w: %v", ErrUnknownHash, err)
		}
		return true, true, nil
	}

	phc, err := parsePHC(encoded)
	if err != nil {
		return false, false, err
	}
	key := argon2.IDKey([]byte(password), phc.salt, phc.time, phc.memory, phc.parallelism, uint32(len(phc.key)))
	if subtle.ConstantTimeCompare(key, phc.key) != 1 {
		return false, false, nil
	}

	weaker := phc.memory < h.params.Memory ||
		phc.time < h.params.Time ||
		phc.parallelism < h.params.Parallelism ||
		uint32(len(phc.key)) != h.params.KeyLength
	return true, weaker, nil
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

type phcHash struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parsePHC(encoded string) (*phcHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, ErrUnknownHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, fmt.Errorf("%w: argon2 version", ErrUnknownHash)
	}

	var out phcHash
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &out.memory, &out.time, &out.parallelism); err != nil {
		return nil, fmt.Errorf("%w: parameters", ErrUnknownHash)
	}
	if out.memory < 8*1024 || out.time < 1 || out.parallelism < 1 {
		return nil, fmt.Errorf("%w: parameters", ErrUnknownHash)
	}

	var err error
	if out.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(out.salt) < 16 {
		return nil, fmt.Errorf("%w: salt", ErrUnknownHash)
	}
	if out.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(out.key) == 0 {
		return nil, fmt.Errorf("%w: key", ErrUnknownHash)
	}
	return &out, nil
}
