package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/fastprodman/vmpay-authorizer/internal/api"
	"github.com/fastprodman/vmpay-authorizer/internal/infra/logging"
	"github.com/fastprodman/vmpay-authorizer/internal/infra/metrics"
	"github.com/fastprodman/vmpay-authorizer/internal/repos/orders/memory"
	"github.com/fastprodman/vmpay-authorizer/internal/services/authorizer"
	"github.com/fastprodman/vmpay-authorizer/internal/vmachine"
	"github.com/fastprodman/vmpay-authorizer/pkg/envconf"
	"github.com/fastprodman/vmpay-authorizer/pkg/shutdownqueue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	cfg := new(apiConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	err = cfg.finalize()
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logging.Setup(cfg.LogFormat, cfg.LogLevel)

	queue := shutdownqueue.New(slog.Default())

	shutdown := func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		return queue.Shutdown(shutdownCtx)
	}

	defer func() {
		serr := shutdown()
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	if cfg.Vmachine.InsecureSkipVerify {
		slog.Warn("TLS certificate verification is disabled for the vending service",
			"endpoint", cfg.Vmachine.Endpoint)
	}

	// --- Infra ---
	reg := metrics.New()

	httpClient := vmachine.NewHTTPClient(cfg.Vmachine.Timeout, cfg.Vmachine.InsecureSkipVerify)
	queue.Add("vmachine http client", func(context.Context) error {
		httpClient.CloseIdleConnections()
		return nil
	})

	vm := vmachine.New(cfg.Vmachine,
		vmachine.WithHTTPClient(httpClient),
		vmachine.WithLogger(slog.Default()),
		vmachine.WithMetrics(reg),
	)

	svc := authorizer.New(vm, memory.New(), reg)

	// --- HTTP server ---
	srv := api.NewServer(cfg.Port, api.NewRouter(svc, cfg.APIKey, reg), cfg.Vmachine.Timeout)

	queue.Add("http server", func(c context.Context) error {
		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("shutdown srv: %w", err)
		}

		return nil
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return shutdown()
	})

	slog.Info("API started",
		"port", cfg.Port,
		"vmachine_endpoint", cfg.Vmachine.Endpoint,
		"vmachine_wsdl", cfg.Vmachine.WSDL,
		"routes", api.Routes(),
	)

	return g.Wait()
}
