package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/agaseke/agaseke-backend/pkg/config"
	"golang.org/x/crypto/argon2"
)

// ErrInvalidHash signals a stored credential that is not a PHC-formatted
// Argon2id string.
var ErrInvalidHash = errors.New("invalid argon2id hash")

const argonPrefix = "$argon2id$"

var b64 = base64.RawStdEncoding

// argonCost is the tunable part of a hash. Salt and key lengths are read back
// from the encoded values, so only these three live in the parameter segment.
type argonCost struct {
	memoryKB uint32
	passes   uint32
	threads  uint8
}

func (c argonCost) derive(secret string, salt []byte, keyLen uint32) []byte {
	return argon2.IDKey([]byte(secret), salt, c.passes, c.memoryKB, c.threads, keyLen)
}

// HashPassword derives an Argon2id key for password with a fresh salt and
// returns it in the $argon2id$v=19$m=..,t=..,p=..$salt$key form.
func HashPassword(password string, cfg config.PasswordConfig) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	cost := argonCost{
		memoryKB: uint32(bounded(cfg.ArgonMemoryKB, 8, 512*1024)),
		passes:   uint32(bounded(cfg.ArgonTime, 1, 10)),
		threads:  uint8(bounded(cfg.ArgonParallelism, 1, 255)),
	}
	salt := make([]byte, bounded(cfg.ArgonSaltLen, 8, 64))
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := cost.derive(password, salt, uint32(bounded(cfg.ArgonKeyLen, 16, 64)))

	var sb strings.Builder
	sb.WriteString(argonPrefix)
	fmt.Fprintf(&sb, "v=%d$m=%d,t=%d,p=%d$", argon2.Version, cost.memoryKB, cost.passes, cost.threads)
	sb.WriteString(b64.EncodeToString(salt))
	sb.WriteByte('$')
	sb.WriteString(b64.EncodeToString(key))
	return sb.String(), nil
}

// VerifyPassword reports whether password derives the key stored in encoded.
// An empty password never matches; a malformed hash is an error.
func VerifyPassword(password, encoded string) (bool, error) {
	cost, salt, key, err := parseArgon(encoded)
	if err != nil {
		return false, err
	}
	if password == "" {
		return false, nil
	}
	derived := cost.derive(password, salt, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, derived) == 1, nil
}

func parseArgon(encoded string) (argonCost, []byte, []byte, error) {
	rest, ok := strings.CutPrefix(encoded, argonPrefix)
	if !ok {
		return argonCost{}, nil, nil, ErrInvalidHash
	}
	segments := strings.Split(rest, "$")
	if len(segments) != 4 {
		return argonCost{}, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(segments[0], "v=%d", &version); err != nil || version != argon2.Version {
		return argonCost{}, nil, nil, ErrInvalidHash
	}
	var cost argonCost
	if n, err := fmt.Sscanf(segments[1], "m=%d,t=%d,p=%d", &cost.memoryKB, &cost.passes, &cost.threads); err != nil || n != 3 {
		return argonCost{}, nil, nil, ErrInvalidHash
	}
	if cost.memoryKB == 0 || cost.passes == 0 || cost.threads == 0 {
		return argonCost{}, nil, nil, ErrInvalidHash
	}

	salt, saltErr := b64.DecodeString(segments[2])
	key, keyErr := b64.DecodeString(segments[3])
	if saltErr != nil || keyErr != nil || len(salt) == 0 || len(key) == 0 {
		return argonCost{}, nil, nil, ErrInvalidHash
	}
	return cost, salt, key, nil
}

func bounded(value, lo, hi int) int {
	return min(max(value, lo), hi)
}
