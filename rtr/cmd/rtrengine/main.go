// Copyright 2026 The Routeguard Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/routeguard/routeguard/pkg/ipc"
	"github.com/routeguard/routeguard/pkg/log"
	"github.com/routeguard/routeguard/pkg/private/serrors"
	"github.com/routeguard/routeguard/rtr"
	"github.com/routeguard/routeguard/rtr/config"
	"github.com/routeguard/routeguard/rtr/sessions"
)

// supervisorFD is the control channel descriptor inherited from the
// supervising parent when no socket path is configured.
const supervisorFD = 3

func main() {
	var configFile string
	cmd := &cobra.Command{
		Use:           "rtrengine",
		Short:         "Routeguard RTR distribution engine",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configFile)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "Configuration file (required)")
	if err := cmd.MarkFlagRequired("config"); err != nil {
		panic(err)
	}
	if err := cmd.Execute(); err != nil {
		log.Error("Fatal error", "err", err)
		log.Flush()
		os.Exit(1)
	}
	log.Flush()
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := log.Setup(cfg.Logging); err != nil {
		return serrors.Wrap("setting up logging", err)
	}
	defer log.HandlePanic()

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = log.CtxWith(ctx, log.New("element_id", cfg.RTR.ID))

	supervisor, err := openSupervisor(cfg.RTR.SupervisorSocket)
	if err != nil {
		return err
	}

	registry := sessions.NewRegistry(nil)
	defer registry.Close()
	engine := &rtr.Engine{
		Supervisor:     supervisor,
		Sessions:       registry,
		ExpireInterval: time.Duration(cfg.RTR.ExpireIntervalSeconds) * time.Second,
	}

	g, errCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer log.HandlePanic()
		return engine.Run(errCtx)
	})

	if cfg.Metrics.Prometheus != "" {
		r := chi.NewRouter()
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
		}))
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(cfg.RTR.ID + ": routeguard RTR engine\n"))
		})
		r.Get("/sessions", func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			engine.Status(w)
		})
		r.Handle("/metrics", promhttp.Handler())
		server := &http.Server{
			Addr:    cfg.Metrics.Prometheus,
			Handler: r,
		}
		log.Info("Exposing status and metrics", "addr", cfg.Metrics.Prometheus)
		g.Go(func() error {
			defer log.HandlePanic()
			err := server.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return serrors.Wrap("serving status endpoint", err)
			}
			return nil
		})
		g.Go(func() error {
			defer log.HandlePanic()
			<-errCtx.Done()
			return server.Close()
		})
	}

	if err := g.Wait(); err != nil {
		return serrors.Join(err, ctx.Err())
	}
	return nil
}

// openSupervisor establishes the control channel to the supervising
// parent: either by dialing the configured socket or by adopting the
// inherited descriptor.
func openSupervisor(socket string) (*ipc.Conn, error) {
	if socket != "" {
		return ipc.Dial(socket)
	}
	return ipc.FromFile(os.NewFile(supervisorFD, "supervisor"))
}
