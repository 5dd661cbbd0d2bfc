package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"
)

const (
	secretKeyEnv  = "FWBLOCK_SECRET_KEY"
	SealedPrefix  = "enc:"
	hkdfInfo      = "fwblock settings secret v1"
	derivedKeyLen = 32
)

var (
	cipherOnce sync.Once
	cipherInst cipher.AEAD
	cipherErr  error
)

func getCipher() (cipher.AEAD, error) {
	cipherOnce.Do(func() {
		rawKey := strings.TrimSpace(os.Getenv(secretKeyEnv))
		if rawKey == "" {
			cipherErr = errors.New("secret key not set: " + secretKeyEnv)
			return
		}

		key, err := deriveKey(rawKey)
		if err != nil {
			cipherErr = fmt.Errorf("derive secret key: %w", err)
			return
		}

		block, err := aes.NewCipher(key)
		if err != nil {
			cipherErr = fmt.Errorf("create cipher: %w", err)
			return
		}

		gcm, err := cipher.NewGCM(block)
		if err != nil {
			cipherErr = fmt.Errorf("create gcm: %w", err)
			return
		}

		cipherInst = gcm
	})

	return cipherInst, cipherErr
}

// deriveKey stretches the configured key material to an AES-256 key. Base64
// input is decoded first.
func deriveKey(raw string) ([]byte, error) {
	secret := []byte(raw)
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil && len(decoded) > 0 {
		secret = decoded
	}

	key := make([]byte, derivedKeyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, err
	}
	return key, nil
}

// Seal encrypts plain and returns it with the "enc:" prefix.
func Seal(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}

	gcm, err := getCipher()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	cipherText := gcm.Seal(nil, nonce, []byte(plain), nil)
	payload := append(nonce, cipherText...)

	return SealedPrefix + base64.StdEncoding.EncodeToString(payload), nil
}

// Open returns the plain value of a sealed secret. Values without the prefix
// are returned unchanged.
func Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := getCipher()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) <= nonceSize {
		return "", errors.New("ciphertext too short")
	}

	plain, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt ciphertext: %w", err)
	}

	return string(plain), nil
}

func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

func ResetCipherForTests() {
	cipherOnce = sync.Once{}
	cipherInst = nil
	cipherErr = nil
}
