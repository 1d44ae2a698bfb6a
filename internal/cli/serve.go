// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeranaias/forgechat/internal/config"
	"github.com/jeranaias/forgechat/internal/server"
)

// shutdownGrace bounds how long in-flight proxy requests may run after a
// termination signal.
const shutdownGrace = 10 * time.Second

// HandleServe handles `forgechat serve`: the provider proxy standalone,
// serving until interrupted. Chat surfaces on other terminals can point at
// it via proxy.origin instead of starting their own.
func HandleServe(args Args) error {
	p := NewArgParser(args.Raw)

	port, err := p.FlagInt("port", config.Global().Proxy.Port)
	if err != nil {
		return &UsageError{Message: err.Error()}
	}

	srv := server.NewServer(port)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	if !args.Quiet {
		fmt.Printf("forgechat proxy listening on http://127.0.0.1:%d\n", srv.Port())
		fmt.Println(DimStyle.Render("POST /api/anthropic · /api/google · /api/local · GET /health"))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case sig := <-sigCh:
		if !args.Quiet {
			fmt.Printf("\nreceived %s, shutting down\n", sig)
		}
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
