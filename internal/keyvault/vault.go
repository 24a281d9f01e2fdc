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
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fbsobreira/gotron-sdk/pkg/address"
)

// Vault binds the process-wide master secret so callers never handle it.
type Vault struct {
	masterSecret string
}

func NewVault(masterSecret string) (*Vault, error) {
	if masterSecret == "" {
		return nil, ErrEmptySecret
	}
	return &Vault{masterSecret: masterSecret}, nil
}

// Seal validates and encrypts a raw private key for storage.
func (v *Vault) Seal(privateKeyHex string) (string, error) {
	if !ValidateFormat(privateKeyHex) {
		return "", fmt.Errorf("invalid private key format")
	}
	return Encrypt([]byte(normalizeKey(privateKeyHex)), v.masterSecret)
}

// Open decrypts a stored envelope. The caller owns the returned bytes and
// should Zero them once signing is done.
func (v *Vault) Open(envelope string) ([]byte, error) {
	return Decrypt(envelope, v.masterSecret)
}

// Rotate re-seals an envelope under another vault's secret.
func (v *Vault) Rotate(envelope string, next *Vault) (string, error) {
	plaintext, err := v.Open(envelope)
	if err != nil {
		return "", err
	}
	defer Zero(plaintext)
	return Encrypt(plaintext, next.masterSecret)
}

func (v *Vault) String() string { return "keyvault.Vault{masterSecret: [REDACTED]}" }

// ParseKey converts hex key material into an ECDSA private key without
// copying it into an immutable string. The caller still owns privateKeyHex
// and should release the key with ZeroKey.
func ParseKey(privateKeyHex []byte) (*ecdsa.PrivateKey, error) {
	trimmed := bytes.TrimSpace(privateKeyHex)
	trimmed = bytes.TrimPrefix(trimmed, []byte("0x"))

	raw := make([]byte, hex.DecodedLen(len(trimmed)))
	defer Zero(raw)
	if _, err := hex.Decode(raw, trimmed); err != nil {
		return nil, fmt.Errorf("invalid private key: malformed hex encoding")
	}

	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// ZeroKey wipes the private scalar of key in place.
func ZeroKey(key *ecdsa.PrivateKey) {
	if key == nil || key.D == nil {
		return
	}
	words := key.D.Bits()
	for i := range words {
		words[i] = 0
	}
	key.D.SetInt64(0)
}

// AddressOf returns the base58 TRON address controlled by key.
func AddressOf(key *ecdsa.PrivateKey) string {
	return address.PubkeyToAddress(*key.Public().(*ecdsa.PublicKey)).String()
}

// DeriveAddress returns the TRON address for a hex private key.
func DeriveAddress(privateKeyHex string) (string, error) {
	key, err := ParseKey([]byte(privateKeyHex))
	if err != nil {
		return "", err
	}
	defer ZeroKey(key)
	return AddressOf(key), nil
}

// GenerateMasterSecret returns a random 256-bit secret, hex encoded.
func GenerateMasterSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate master secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Zero overwrites b in place.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func normalizeKey(k string) string {
	return strings.TrimPrefix(strings.TrimSpace(k), "0x")
}
