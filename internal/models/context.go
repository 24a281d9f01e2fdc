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

package models

import "context"

type transferContextKey struct{}

// TransferContext carries the order being paid out through context so
// lower layers can tag their logs and metrics without widening their signatures.
type TransferContext struct {
	OrderId string
	Attempt int // zero-based attempt index
}

// WithTransferContext attaches order data to a context.
func WithTransferContext(ctx context.Context, tc *TransferContext) context.Context {
	return context.WithValue(ctx, transferContextKey{}, tc)
}

// GetTransferContext retrieves order data from context, or nil if absent.
func GetTransferContext(ctx context.Context) *TransferContext {
	tc, _ := ctx.Value(transferContextKey{}).(*TransferContext)
	return tc
}

// OrderIdFromContext returns the order id carried by ctx, or "" if none.
func OrderIdFromContext(ctx context.Context) string {
	if tc := GetTransferContext(ctx); tc != nil {
		return tc.OrderId
	}
	return ""
}
