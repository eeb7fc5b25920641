// Package cryptox derives identity key material from a passphrase.
package cryptox

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/subtle"

	"github.com/dmitrijs2005/roomchat/internal/common"
	"golang.org/x/crypto/argon2"
)

// SaltSize is the length of the per-install salt.
const SaltSize = 16

const verifierDomain = "roomchat/identity-verifier/v1"

// NewSalt returns a fresh random salt.
func NewSalt() []byte {
	return common.GenerateRandByteArray(SaltSize)
}

// DeriveSeed stretches passphrase with argon2id into an ed25519 seed.
func DeriveSeed(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, ed25519.SeedSize)
}

// MakeVerifier returns a value that confirms a seed without revealing it.
func MakeVerifier(seed []byte) []byte {
	h := sha256.New()
	h.Write([]byte(verifierDomain))
	h.Write(seed)
	return h.Sum(nil)
}

// CheckVerifier compares in constant time.
func CheckVerifier(seed, verifier []byte) bool {
	return subtle.ConstantTimeCompare(MakeVerifier(seed), verifier) == 1
}
