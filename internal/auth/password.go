package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// hashParams are the Argon2id cost parameters embedded in every stored
// hash. Verification honors whatever a hash carries, so these can be
// raised later without invalidating existing credentials.
type hashParams struct {
	memoryKiB  uint32
	iterations uint32
	lanes      uint8
}

// currentHashParams is what new hashes are minted with: 64 MiB, three
// passes, one lane (the OWASP Argon2id baseline).
var currentHashParams = hashParams{
	memoryKiB:  64 * 1024,
	iterations: 3,
	lanes:      1,
}

const (
	passwordSaltLen = 16
	passwordKeyLen  = 32
)

// HashPassword derives an Argon2id hash of the password and encodes it
// in PHC form ($argon2id$v=19$m=...,t=...,p=...$salt$key). Input bounds
// are enforced here as well as at the promotion boundary: a hash must
// never be minted from a password the rest of the system would reject.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", &ValidationError{Field: "password", Reason: "must not be empty"}
	}
	if len(password) > MaxPasswordLength {
		return "", &ValidationError{
			Field:  "password",
			Reason: fmt.Sprintf("must be at most %d characters", MaxPasswordLength),
		}
	}

	salt := make([]byte, passwordSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := deriveKey(password, salt, currentHashParams, passwordKeyLen)

	return encodePHC(currentHashParams, salt, key), nil
}

// VerifyPassword re-derives the key under the parameters stored in the
// hash and compares in constant time. A false result with nil error
// means the password simply did not match; an error means the stored
// hash itself is unusable.
func VerifyPassword(password, encodedHash string) (bool, error) {
	params, salt, key, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	candidate := deriveKey(password, salt, params, uint32(len(key))) //nolint:gosec // G115: key length always fits uint32

	return subtle.ConstantTimeCompare(key, candidate) == 1, nil
}

func deriveKey(password string, salt []byte, params hashParams, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), salt, params.iterations, params.memoryKiB, params.lanes, keyLen)
}

func encodePHC(params hashParams, salt, key []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		params.memoryKiB, params.iterations, params.lanes,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

// parsePHC splits a stored hash back into its parameters, salt and key.
// Only argon2id at the library's current version is accepted.
func parsePHC(encoded string) (params hashParams, salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 { //nolint:mnd // PHC format has exactly 6 $-delimited parts
		return params, nil, nil, fmt.Errorf("malformed password hash")
	}
	algorithm, versionPart, costPart, saltPart, keyPart := parts[1], parts[2], parts[3], parts[4], parts[5]

	if algorithm != "argon2id" {
		return params, nil, nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}

	var version int
	if _, scanErr := fmt.Sscanf(versionPart, "v=%d", &version); scanErr != nil {
		return params, nil, nil, fmt.Errorf("parsing hash version: %w", scanErr)
	}
	if version != argon2.Version {
		return params, nil, nil, fmt.Errorf("unsupported argon2 version %d", version)
	}

	if _, scanErr := fmt.Sscanf(costPart, "m=%d,t=%d,p=%d", &params.memoryKiB, &params.iterations, &params.lanes); scanErr != nil {
		return params, nil, nil, fmt.Errorf("parsing hash parameters: %w", scanErr)
	}
	if params.memoryKiB == 0 || params.iterations == 0 || params.lanes == 0 {
		return params, nil, nil, fmt.Errorf("zero-cost hash parameters")
	}

	salt, err = base64.RawStdEncoding.DecodeString(saltPart)
	if err != nil {
		return params, nil, nil, fmt.Errorf("decoding salt: %w", err)
	}
	key, err = base64.RawStdEncoding.DecodeString(keyPart)
	if err != nil {
		return params, nil, nil, fmt.Errorf("decoding key: %w", err)
	}
	if len(salt) == 0 || len(key) == 0 {
		return params, nil, nil, fmt.Errorf("empty salt or key")
	}

	return params, salt, key, nil
}
