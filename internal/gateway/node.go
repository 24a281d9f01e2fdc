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
	"errors"
	"math/big"

	"tron-payout-go/internal/models"

	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
)

var (
	ErrRPCTimeout     = errors.New("rpc call timed out")
	ErrRPCUnavailable = errors.New("rpc endpoint unavailable")
	// ErrAccountNotFound is returned for addresses that have never been activated on chain.
	ErrAccountNotFound = errors.New("account not found")
	// ErrBroadcastRejected is returned when a node refuses a signed transaction.
	ErrBroadcastRejected = errors.New("transaction rejected by node")
)

// Node is one TRON full node connection.
type Node interface {
	Endpoint() string
	BlockNumber() (int64, error)
	AccountBalance(address string) (int64, error)
	AccountResources(address string) (models.ResourceSnapshot, error)
	TokenBalance(address, contract string) (*big.Int, error)
	BuildNativeTransfer(from, to string, amountSun int64) (*core.Transaction, error)
	BuildTokenTransfer(from, to, contract string, amount *big.Int, feeLimitSun int64) (*core.Transaction, error)
	Broadcast(tx *core.Transaction) error
	Close()
}

// Dialer opens a Node for an endpoint.
type Dialer func(endpoint models.NodeEndpoint) (Node, error)

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying; Call returns it on first sight.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
