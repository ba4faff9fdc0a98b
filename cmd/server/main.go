/*
 * Copyright 2025 Author(s) of Guardrail Gateway
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
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
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/modelguard/guardrail-gateway/pkg/api"
	"github.com/modelguard/guardrail-gateway/pkg/appconsts"
	"github.com/modelguard/guardrail-gateway/pkg/client"
	"github.com/modelguard/guardrail-gateway/pkg/config"
	"github.com/modelguard/guardrail-gateway/pkg/logging"
	"github.com/modelguard/guardrail-gateway/pkg/metrics"
	"github.com/modelguard/guardrail-gateway/pkg/orchestrator"
	"github.com/modelguard/guardrail-gateway/pkg/resilience"
)

// newRootCmd creates the main command. Configuration comes entirely from
// the environment (plus an optional .env file); a parse failure exits
// non-zero before the server binds.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   appconsts.Name,
		Short: "Low-latency guardrail gateway for LLM safety validation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Missing .env is fine; real deployments set the environment directly.
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logLevel := logging.ParseLevel(cfg.LogLevel)
			if cfg.Debug {
				logLevel = logging.ParseLevel("debug")
			}
			logging.Init(logLevel, os.Stdout, cfg.LogFormat)
			log := logging.GetLogger().With("service", appconsts.Name)

			log.Info("guardrail_gateway_starting",
				"host", cfg.Host,
				"port", cfg.Port,
				"models", cfg.ModelNames(),
				"model_timeout", cfg.ModelTimeout,
				"cb_failure_threshold", cfg.CBFailureThreshold,
				"retry_enabled", cfg.RetryEnabled,
			)

			metrics.InitModelLabels(cfg.ModelNames())

			pool := client.NewPool(cfg.Backends, client.PoolSettings{
				ConnectTimeout: cfg.ModelConnectTimeout,
				RequestTimeout: cfg.ModelTimeout,
				MaxConnections: cfg.MaxConnections,
				MaxIdlePerHost: cfg.MaxIdlePerHost,
			})
			breakers := resilience.NewRegistry(resilience.Settings{
				FailureThreshold: cfg.CBFailureThreshold,
				RecoveryTimeout:  cfg.CBRecoveryTimeout,
				SuccessThreshold: cfg.CBSuccessThreshold,
			})
			caller := orchestrator.NewCaller(pool, breakers, orchestrator.RetryPolicy{
				Enabled:     cfg.RetryEnabled,
				MaxAttempts: cfg.RetryMaxAttempts,
				Wait:        cfg.RetryWait,
			}, log)
			orch := orchestrator.New(cfg.ModelNames(), caller, log)
			prober := api.NewProber(pool, cfg.ModelNames(), cfg.ProbeInterval)
			server := api.NewServer(orch, breakers, prober, log)

			httpServer := &http.Server{
				Addr:              cfg.Addr(),
				Handler:           server.Router(),
				ReadHeaderTimeout: 3 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			serveErr := make(chan error, 1)
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
			}()

			select {
			case err := <-serveErr:
				log.Error("server_failed", "error", err.Error())
				return err
			case <-ctx.Done():
			}

			log.Info("guardrail_gateway_shutting_down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				log.Error("graceful_shutdown_failed", "error", err.Error())
			}
			prober.Stop()
			pool.Shutdown()
			log.Info("shutdown_complete")
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version and exit.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", appconsts.Name, appconsts.Version)
		},
	}
	rootCmd.AddCommand(versionCmd)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
