package httpcache

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	scryptN   = 32768
	scryptR   = 8
	scryptP   = 1
	keyLength = 32
	nonceSize = 12
)

// hashKey converts a cache key to its SHA-256 hex representation. Applied
// to every key before it reaches a backend, so a backend never observes
// plaintext URIs.
func hashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// initEncryption derives an AES-256-GCM cipher from passphrase via scrypt.
func initEncryption(passphrase string) (cipher.AEAD, error) {
	salt := sha256.Sum256([]byte("httpcache-securecache-salt-v1"))
	key, err := scrypt.Key([]byte(passphrase), salt[:], scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}

// encrypt encrypts data using AES-256-GCM, with the nonce prepended to the
// returned ciphertext.
func encrypt(gcm cipher.AEAD, data []byte) ([]byte, error) {
	if gcm == nil {
		return data, nil
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, data, nil), nil
}

// decrypt reverses encrypt, expecting the nonce prepended to the ciphertext.
func decrypt(gcm cipher.AEAD, data []byte) ([]byte, error) {
	if gcm == nil {
		return data, nil
	}
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return plaintext, nil
}

// encryptedCodec decorates an EntryCodec with AES-256-GCM encryption of
// the serialized bytes, so encryption composes with Storage's CAS the same
// way compresscache's wrappers do: it never sees a CacheEntry, only bytes.
type encryptedCodec struct {
	inner EntryCodec
	gcm   cipher.AEAD
}

// NewEncryptedCodec wraps inner so every encoded entry is encrypted with a
// key derived from passphrase, and every decoded entry is decrypted first.
func NewEncryptedCodec(inner EntryCodec, passphrase string) (EntryCodec, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("httpcache: encryption passphrase must not be empty")
	}
	gcm, err := initEncryption(passphrase)
	if err != nil {
		return nil, err
	}
	return &encryptedCodec{inner: inner, gcm: gcm}, nil
}

func (c *encryptedCodec) Encode(e *CacheEntry) ([]byte, error) {
	data, err := c.inner.Encode(e)
	if err != nil {
		return nil, err
	}
	return encrypt(c.gcm, data)
}

func (c *encryptedCodec) Decode(data []byte) (*CacheEntry, error) {
	plain, err := decrypt(c.gcm, data)
	if err != nil {
		return nil, err
	}
	return c.inner.Decode(plain)
}
