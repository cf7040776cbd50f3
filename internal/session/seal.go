package session

import (
	"crypto/rand"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/alljoynjs/ajcore/internal/corerr"
)

// Authentication-suite key derivation parameters, per spec §4.H's
// enableSecurity path: a peer's session key is derived from the shared
// passphrase negotiated during authentication, not sent in the clear.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// DeriveSessionKey derives a 32-byte key from an authentication passphrase
// and salt using Argon2id.
func DeriveSessionKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// GenerateSalt returns a random 16-byte salt for a new authentication
// handshake.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, corerr.Wrap(corerr.KindResources, "session.GenerateSalt", err)
	}
	return salt, nil
}

// SealAuthPayload encrypts an authentication-suite payload under the
// peer's derived session key using XChaCha20-Poly1305, returning
// nonce||ciphertext.
func SealAuthPayload(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindInvalid, "session.SealAuthPayload", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, corerr.Wrap(corerr.KindResources, "session.SealAuthPayload", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// OpenAuthPayload decrypts a payload produced by SealAuthPayload.
func OpenAuthPayload(key, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindInvalid, "session.OpenAuthPayload", err)
	}
	nonceSize := aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, corerr.New(corerr.KindInvalid, "session.OpenAuthPayload")
	}
	nonce, msg := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, msg, nil)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindInvalid, "session.OpenAuthPayload", err)
	}
	return plaintext, nil
}
