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
	"fmt"
	"math/big"
	"strings"

	"tron-payout-go/internal/models"

	"github.com/fbsobreira/gotron-sdk/pkg/client"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/api"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// TronNode is a Node backed by the gotron-sdk gRPC client.
type TronNode struct {
	endpoint string
	client   *client.GrpcClient
}

// DialTron is the production Dialer.
func DialTron(endpoint models.NodeEndpoint) (Node, error) {
	grpcClient := client.NewGrpcClient(endpoint.Url)
	if endpoint.ApiKey != "" {
		grpcClient.SetAPIKey(endpoint.ApiKey)
	}

	if err := grpcClient.Start(grpc.WithTransportCredentials(insecure.NewCredentials())); err != nil {
		return nil, fmt.Errorf("failed to start grpc client for %s: %w", endpoint.Url, err)
	}

	return &TronNode{endpoint: endpoint.Url, client: grpcClient}, nil
}

func (n *TronNode) Endpoint() string { return n.endpoint }

func (n *TronNode) BlockNumber() (int64, error) {
	block, err := n.client.GetNowBlock()
	if err != nil {
		return 0, err
	}
	if block == nil || block.BlockHeader == nil || block.BlockHeader.RawData == nil {
		return 0, fmt.Errorf("empty block header from %s", n.endpoint)
	}
	return block.BlockHeader.RawData.Number, nil
}

func (n *TronNode) AccountBalance(address string) (int64, error) {
	account, err := n.client.GetAccount(address)
	if err != nil {
		if isAccountNotFound(err) {
			return 0, Permanent(ErrAccountNotFound)
		}
		return 0, err
	}
	return account.Balance, nil
}

// AccountResources folds the free daily bandwidth allowance into the staked
// bandwidth figures.
func (n *TronNode) AccountResources(address string) (models.ResourceSnapshot, error) {
	res, err := n.client.GetAccountResource(address)
	if err != nil {
		if isAccountNotFound(err) {
			return models.ResourceSnapshot{}, Permanent(ErrAccountNotFound)
		}
		return models.ResourceSnapshot{}, err
	}
	return resourceSnapshot(res), nil
}

func resourceSnapshot(res *api.AccountResourceMessage) models.ResourceSnapshot {
	energyRemaining := res.EnergyLimit - res.EnergyUsed
	if energyRemaining < 0 {
		energyRemaining = 0
	}
	bandwidthLimit := res.FreeNetLimit + res.NetLimit
	bandwidthUsed := res.FreeNetUsed + res.NetUsed
	bandwidthRemaining := bandwidthLimit - bandwidthUsed
	if bandwidthRemaining < 0 {
		bandwidthRemaining = 0
	}
	return models.ResourceSnapshot{
		Energy: models.ResourceUsage{
			Limit:     res.EnergyLimit,
			Used:      res.EnergyUsed,
			Remaining: energyRemaining,
		},
		Bandwidth: models.ResourceUsage{
			Limit:     bandwidthLimit,
			Used:      bandwidthUsed,
			Remaining: bandwidthRemaining,
		},
	}
}

func (n *TronNode) TokenBalance(address, contract string) (*big.Int, error) {
	balance, err := n.client.TRC20ContractBalance(address, contract)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return big.NewInt(0), nil
	}
	return balance, nil
}

func (n *TronNode) BuildNativeTransfer(from, to string, amountSun int64) (*core.Transaction, error) {
	tx, err := n.client.Transfer(from, to, amountSun)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return unwrapExtention(tx)
}

func (n *TronNode) BuildTokenTransfer(from, to, contract string, amount *big.Int, feeLimitSun int64) (*core.Transaction, error) {
	tx, err := n.client.TRC20Send(from, to, contract, amount, feeLimitSun)
	if err != nil {
		return nil, fmt.Errorf("failed to create token transaction: %w", err)
	}
	return unwrapExtention(tx)
}

func unwrapExtention(tx *api.TransactionExtention) (*core.Transaction, error) {
	if tx == nil || tx.Transaction == nil {
		return nil, fmt.Errorf("transaction creation returned empty result")
	}
	if tx.Result != nil && tx.Result.Code != api.Return_SUCCESS {
		return nil, Permanent(fmt.Errorf("transaction creation failed: %s", string(tx.Result.Message)))
	}
	return tx.Transaction, nil
}

// Broadcast submits a signed transaction. A duplicate report means an
// earlier attempt already landed, which counts as success.
func (n *TronNode) Broadcast(tx *core.Transaction) error {
	result, err := n.client.Broadcast(tx)
	if result != nil && result.Code == api.Return_DUP_TRANSACTION_ERROR {
		zap.L().Info("Transaction already known to node", zap.String("endpoint", n.endpoint))
		return nil
	}
	if err != nil {
		if result != nil && !result.Result {
			return Permanent(fmt.Errorf("%w: %s: %s", ErrBroadcastRejected, result.Code, string(result.Message)))
		}
		return fmt.Errorf("failed to broadcast: %w", err)
	}
	if result == nil || !result.Result {
		msg := ""
		if result != nil {
			msg = string(result.Message)
		}
		return Permanent(fmt.Errorf("%w: %s", ErrBroadcastRejected, msg))
	}
	return nil
}

func (n *TronNode) Close() {
	n.client.Stop()
}

func isAccountNotFound(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "account not found")
}
