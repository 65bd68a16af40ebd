// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/scenemirror/scenemirror/internal/logging"
)

// shutdownGrace bounds the drain of in-flight API requests.
const shutdownGrace = 5 * time.Second

// APIService runs the local control API under supervision. A listen
// failure returns the error to suture, which restarts with backoff.
type APIService struct {
	addr    string
	handler http.Handler
}

// NewAPIService binds handler to addr (host:port) when served.
func NewAPIService(addr string, handler http.Handler) *APIService {
	return &APIService{addr: addr, handler: handler}
}

// Serve implements suture.Service.
func (s *APIService) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("api listen %s: %w", s.addr, err)
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	logging.Info().Str("addr", s.addr).Msg("control api listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("api shutdown incomplete")
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *APIService) String() string { return "control-api" }

// ServiceFunc adapts a plain function to suture.Service.
type ServiceFunc struct {
	Name string
	Run  func(ctx context.Context) error
}

// Serve implements suture.Service.
func (f ServiceFunc) Serve(ctx context.Context) error { return f.Run(ctx) }

func (f ServiceFunc) String() string { return f.Name }
