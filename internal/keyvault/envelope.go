/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package keyvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	nonceSize  = 16
	tagSize    = 16
	keySize    = 32
	iterations = 100_000
)

var (
	// ErrDecryptionFailed covers every way an envelope can fail to open:
	// malformed text, wrong master secret, or a tampered ciphertext.
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrEmptySecret      = errors.New("master secret cannot be empty")
)

// Encrypt seals plaintext under a key derived from masterSecret and returns
// the envelope hex(salt):hex(nonce):hex(tag):hex(ciphertext).
func Encrypt(plaintext []byte, masterSecret string) (string, error) {
	if masterSecret == "" {
		return "", ErrEmptySecret
	}
	if len(plaintext) == 0 {
		return "", fmt.Errorf("plaintext cannot be empty")
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	gcm, err := newGCM(deriveKey(masterSecret, salt))
	if err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return strings.Join([]string{
		hex.EncodeToString(salt),
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, ":"), nil
}

// Decrypt opens an envelope produced by Encrypt. Any failure returns
// ErrDecryptionFailed and no plaintext.
func Decrypt(envelope, masterSecret string) ([]byte, error) {
	if masterSecret == "" {
		return nil, ErrEmptySecret
	}

	parts := strings.Split(envelope, ":")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: envelope must have 4 parts, got %d", ErrDecryptionFailed, len(parts))
	}

	decoded := make([][]byte, len(parts))
	for i, p := range parts {
		b, err := hex.DecodeString(p)
		if err != nil {
			return nil, fmt.Errorf("%w: part %d is not hex", ErrDecryptionFailed, i)
		}
		decoded[i] = b
	}
	salt, nonce, tag, ciphertext := decoded[0], decoded[1], decoded[2], decoded[3]

	if len(salt) == 0 || len(nonce) != nonceSize || len(tag) != tagSize {
		return nil, fmt.Errorf("%w: malformed envelope", ErrDecryptionFailed)
	}

	gcm, err := newGCM(deriveKey(masterSecret, salt))
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// ValidateFormat reports whether candidate looks like a raw secp256k1 private
// key: 64 hex characters, optionally prefixed with 0x.
func ValidateFormat(candidate string) bool {
	key := strings.TrimPrefix(strings.TrimSpace(candidate), "0x")
	if len(key) != 64 {
		return false
	}
	_, err := hex.DecodeString(key)
	return err == nil
}

func deriveKey(masterSecret string, salt []byte) []byte {
	return pbkdf2.Key([]byte(masterSecret), salt, iterations, keySize, sha512.New)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
