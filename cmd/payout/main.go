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

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tron-payout-go/internal/common"
	"tron-payout-go/internal/config"
	"tron-payout-go/internal/listener"
	"tron-payout-go/internal/metrics"

	"go.uber.org/zap"
)

func startMetricsServer(addr string) *http.Server {
	metrics.MustRegister()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("Metrics server stopped", zap.Error(err))
		}
	}()

	zap.L().Info("Serving metrics", zap.String("addr", addr))
	return server
}

func main() {
	metricsAddr := flag.String("metrics", "", "Address to serve Prometheus metrics on (overrides METRICS_ADDR)")
	noRefresh := flag.Bool("no-refresh", false, "Disable the periodic wallet refresh loop")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting TRON Payout Engine")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	addr := cfg.Metrics.Addr
	if *metricsAddr != "" {
		addr = *metricsAddr
	}
	var metricsServer *http.Server
	if addr != "" {
		metricsServer = startMetricsServer(addr)
	}

	refreshInterval := cfg.Listener.WalletRefreshInterval
	if *noRefresh {
		refreshInterval = 0
	}

	l := listener.NewPayoutListener(listener.PayoutListenerConfig{
		Orders:                services.Payouts,
		OrderSource:           services.DbService,
		Wallets:               services.Wallets,
		Gateway:               services.Gateway,
		PollingInterval:       cfg.Listener.PollingInterval,
		WalletRefreshInterval: refreshInterval,
		PendingOrderGrace:     cfg.Listener.PendingOrderGrace,
	})
	if err := l.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start listener", zap.Error(err))
	}

	zap.L().Info("Payout engine running")
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		l.Stop()
		services.Orchestrator.Stop()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Payout engine stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("Failed to stop metrics server", zap.Error(err))
		}
	}
}
