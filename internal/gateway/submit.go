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
	"context"
	"crypto/ecdsa"
	"sync"

	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
)

// Caller runs fn against the current node with the gateway's retry policy.
type Caller interface {
	Call(ctx context.Context, op string, fn func(ctx context.Context, n Node) error) error
}

var _ Caller = (*Gateway)(nil)

// Fetch runs read through c and returns the value of the attempt that
// succeeded. An attempt abandoned on timeout never publishes its value.
func Fetch[T any](ctx context.Context, c Caller, op string, read func(n Node) (T, error)) (T, error) {
	var (
		mu     sync.Mutex
		result T
	)
	err := c.Call(ctx, op, func(attemptCtx context.Context, n Node) error {
		v, err := read(n)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		if err := attemptCtx.Err(); err != nil {
			return err
		}
		result = v
		return nil
	})

	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// Submit builds, signs and broadcasts one transaction and returns its id.
// The transaction is built and signed exactly once, before any broadcast;
// retries rebroadcast the same signed bytes so the retry loop can never
// produce a second payment.
func Submit(ctx context.Context, c Caller, op string, key *ecdsa.PrivateKey, build func(n Node) (*core.Transaction, error)) (string, error) {
	tx, err := Fetch(ctx, c, op+"_build", build)
	if err != nil {
		return "", err
	}
	txId, err := SignTransaction(tx, key)
	if err != nil {
		return "", err
	}

	err = c.Call(ctx, op, func(_ context.Context, n Node) error {
		return n.Broadcast(tx)
	})
	if err != nil {
		return "", err
	}
	return txId, nil
}
