package push

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/roach88/pushsub/internal/model"
)

// maxModePrefix bounds the readable mode prefix of a token.
const maxModePrefix = 20

// Hash algorithms accepted by NewTokenGenerator.
const (
	HashSHA1   = "sha1"
	HashSHA256 = "sha256"
	HashSHA512 = "sha512"
)

// TokenGenerator derives verify tokens from a secret, a subscription's
// persisted ID and a mode.
//
// Token format: mode[:20] + hex(H(secret || id || mode)). The mode prefix is
// diagnostic only; Validate always re-derives the full value.
//
// Thread-safety: TokenGenerator is immutable and safe for concurrent use.
type TokenGenerator struct {
	secret  []byte
	newHash func() hash.Hash
}

// NewTokenGenerator creates a generator for the given secret and hash
// algorithm. An empty algorithm selects sha256.
func NewTokenGenerator(secret []byte, algorithm string) (*TokenGenerator, error) {
	var h func() hash.Hash
	switch algorithm {
	case "", HashSHA256:
		h = sha256.New
	case HashSHA1:
		h = sha1.New
	case HashSHA512:
		h = sha512.New
	default:
		return nil, fmt.Errorf("unsupported token hash %q", algorithm)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("token secret must not be empty")
	}
	return &TokenGenerator{
		secret:  append([]byte(nil), secret...),
		newHash: h,
	}, nil
}

// Generate returns the verify token for sub and mode.
// Returns a precondition error if sub has not been persisted.
func (g *TokenGenerator) Generate(sub model.Subscription, mode model.Mode) (string, error) {
	if sub.ID == "" {
		return "", NewPreconditionError("subscription must be saved before generating token")
	}
	return g.derive(sub.ID, mode), nil
}

// Validate reports whether token is the one Generate would return for sub
// and mode. The comparison runs in constant time.
func (g *TokenGenerator) Validate(sub model.Subscription, mode model.Mode, token string) bool {
	if sub.ID == "" || token == "" {
		return false
	}
	expected := g.derive(sub.ID, mode)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(token)) == 1
}

func (g *TokenGenerator) derive(id string, mode model.Mode) string {
	m := string(mode)
	h := g.newHash()
	h.Write(g.secret)
	h.Write([]byte(id))
	h.Write([]byte(m))

	prefix := m
	if len(prefix) > maxModePrefix {
		prefix = prefix[:maxModePrefix]
	}
	return prefix + hex.EncodeToString(h.Sum(nil))
}
