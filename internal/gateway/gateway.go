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
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"tron-payout-go/internal/metrics"
	"tron-payout-go/internal/models"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// GatewayState is the ordered endpoint list and the node currently in use.
type GatewayState struct {
	mu        sync.RWMutex
	endpoints []models.NodeEndpoint
	current   int
	node      Node
}

func (s *GatewayState) snapshot() (Node, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.node, s.current
}

// Gateway serializes access to TRON nodes behind bounded retries.
type Gateway struct {
	state        *GatewayState
	dialer       Dialer
	limiter      *rate.Limiter
	callTimeout  time.Duration
	probeTimeout time.Duration
	maxAttempts  int
	retryDelay   time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

func New(cfg models.GatewayConfig, dialer Dialer) (*Gateway, error) {
	var endpoints []models.NodeEndpoint
	for _, ep := range cfg.Nodes {
		if ep.Enabled {
			endpoints = append(endpoints, ep)
		}
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no enabled rpc endpoints configured")
	}
	// lower priority value is probed first
	sort.SliceStable(endpoints, func(i, j int) bool {
		return endpoints[i].Priority < endpoints[j].Priority
	})

	if dialer == nil {
		dialer = DialTron
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Gateway{
		state:        &GatewayState{endpoints: endpoints, current: -1},
		dialer:       dialer,
		limiter:      rate.NewLimiter(limit, burst),
		callTimeout:  cfg.CallTimeout,
		probeTimeout: cfg.ProbeTimeout,
		maxAttempts:  cfg.MaxAttempts,
		retryDelay:   cfg.RetryDelay,
		sleep:        sleepContext,
	}, nil
}

// Init probes endpoints in priority order and keeps the first that answers.
func (g *Gateway) Init(ctx context.Context) error {
	return g.Reinitialize(ctx)
}

// Reinitialize re-runs endpoint selection. The previous node is closed once a
// replacement is live; if none answers the old node is kept.
func (g *Gateway) Reinitialize(ctx context.Context) error {
	g.state.mu.RLock()
	endpoints := g.state.endpoints
	g.state.mu.RUnlock()

	for i, ep := range endpoints {
		node, err := g.probe(ctx, ep)
		if err != nil {
			zap.L().Warn("RPC endpoint probe failed",
				zap.String("name", ep.Name),
				zap.String("url", ep.Url),
				zap.Error(err))
			continue
		}

		g.state.mu.Lock()
		old := g.state.node
		g.state.node = node
		g.state.current = i
		g.state.mu.Unlock()

		if old != nil && old != node {
			old.Close()
		}

		metrics.SetRPCEndpoint(ep.Name)
		zap.L().Info("RPC endpoint selected",
			zap.String("name", ep.Name),
			zap.String("url", ep.Url),
			zap.Int("priority", ep.Priority))
		return nil
	}

	return fmt.Errorf("%w: none of %d endpoints answered", ErrRPCUnavailable, len(endpoints))
}

func (g *Gateway) probe(ctx context.Context, ep models.NodeEndpoint) (Node, error) {
	probeCtx, cancel := context.WithTimeout(ctx, g.probeTimeout)
	defer cancel()

	type dialResult struct {
		node Node
		err  error
	}
	done := make(chan dialResult, 1)
	go func() {
		node, err := g.dialer(ep)
		if err != nil {
			done <- dialResult{err: err}
			return
		}
		if _, err := node.BlockNumber(); err != nil {
			node.Close()
			done <- dialResult{err: err}
			return
		}
		done <- dialResult{node: node}
	}()

	select {
	case r := <-done:
		return r.node, r.err
	case <-probeCtx.Done():
		// close whatever the late dial produces
		go func() {
			if r := <-done; r.node != nil {
				r.node.Close()
			}
		}()
		return nil, ErrRPCTimeout
	}
}

// Current returns the endpoint in use, or "" before Init succeeds.
func (g *Gateway) Current() string {
	node, _ := g.state.snapshot()
	if node == nil {
		return ""
	}
	return node.Endpoint()
}

// Ping runs a single cheap read against the current node.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.Call(ctx, "ping", func(_ context.Context, n Node) error {
		_, err := n.BlockNumber()
		return err
	})
}

// Call runs fn against the current node. Each attempt is bounded by the call
// timeout; failed attempts back off attempt*retryDelay. Endpoints are never
// switched mid-call.
func (g *Gateway) Call(ctx context.Context, op string, fn func(ctx context.Context, n Node) error) error {
	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		node, _ := g.state.snapshot()
		if node == nil {
			lastErr = ErrRPCUnavailable
		} else {
			start := time.Now()
			lastErr = g.attempt(ctx, node, fn)
			metrics.ObserveRPC(op, time.Since(start), lastErr)
		}

		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		if isPermanent(lastErr) {
			return fmt.Errorf("%s: %w", op, lastErr)
		}

		zap.L().Warn("RPC call failed",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", g.maxAttempts),
			zap.Error(lastErr))

		if attempt < g.maxAttempts {
			if err := g.sleep(ctx, time.Duration(attempt)*g.retryDelay); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
	}

	if errors.Is(lastErr, ErrRPCTimeout) || errors.Is(lastErr, ErrRPCUnavailable) {
		return fmt.Errorf("%s failed after %d attempts: %w", op, g.maxAttempts, lastErr)
	}
	return fmt.Errorf("%s failed after %d attempts: %w: %w", op, g.maxAttempts, ErrRPCUnavailable, lastErr)
}

func (g *Gateway) attempt(ctx context.Context, node Node, fn func(ctx context.Context, n Node) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(attemptCtx, node)
	}()

	select {
	case err := <-done:
		return err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrRPCTimeout
	}
}

// Close releases the current node.
func (g *Gateway) Close() {
	g.state.mu.Lock()
	defer g.state.mu.Unlock()
	if g.state.node != nil {
		g.state.node.Close()
		g.state.node = nil
		g.state.current = -1
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
