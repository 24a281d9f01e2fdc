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

package gateway

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
	"google.golang.org/protobuf/proto"
)

// SignTransaction signs tx in place and returns its transaction id.
func SignTransaction(tx *core.Transaction, key *ecdsa.PrivateKey) (string, error) {
	hash, err := rawDataHash(tx)
	if err != nil {
		return "", err
	}

	signature, err := crypto.Sign(hash, key)
	if err != nil {
		return "", fmt.Errorf("failed to sign: %w", err)
	}
	tx.Signature = [][]byte{signature}

	return hex.EncodeToString(hash), nil
}

// TransactionId is the hex sha256 of the transaction's raw data.
func TransactionId(tx *core.Transaction) (string, error) {
	hash, err := rawDataHash(tx)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(hash), nil
}

// SignerAddress recovers the address that signed tx.
func SignerAddress(tx *core.Transaction) (string, error) {
	if len(tx.Signature) == 0 {
		return "", fmt.Errorf("no signature found")
	}
	hash, err := rawDataHash(tx)
	if err != nil {
		return "", err
	}
	pub, err := crypto.SigToPub(hash, tx.Signature[0])
	if err != nil {
		return "", fmt.Errorf("failed to recover public key: %w", err)
	}
	return address.PubkeyToAddress(*pub).String(), nil
}

// ValidateAddress checks that addr is a base58check TRON mainnet address.
func ValidateAddress(addr string) error {
	if len(addr) != 34 || addr[0] != 'T' {
		return fmt.Errorf("address must be 34 characters starting with T")
	}
	if _, err := address.Base58ToAddress(addr); err != nil {
		return fmt.Errorf("address is not valid base58check: %w", err)
	}
	return nil
}

func rawDataHash(tx *core.Transaction) ([]byte, error) {
	if tx == nil || tx.RawData == nil {
		return nil, fmt.Errorf("transaction has no raw data")
	}
	raw, err := proto.Marshal(tx.RawData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw data: %w", err)
	}
	hash := sha256.Sum256(raw)
	return hash[:], nil
}
