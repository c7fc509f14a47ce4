package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/unishare/unishare-sw/internal/gateway"
	"github.com/unishare/unishare-sw/internal/logger"
	"github.com/unishare/unishare-sw/internal/web"
	"github.com/unishare/unishare-sw/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Install the current cache generation and serve the gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	logger.Infof("Starting UniShare SW gateway %s", version)
	origin, err := cfg.OriginURL()
	if err != nil {
		return err
	}
	storage, err := openStorage(cfg, false)
	if err != nil {
		return err
	}
	defer storage.Close()

	fetcher := web.NewFetcher(origin, web.Options{
		Timeout:     cfg.FetchTimeout,
		MaxBodySize: cfg.MaxBodySize,
		Parallelism: cfg.FetchParallelism,
		UserAgent:   "unishare-sw/" + version,
	})
	w, err := worker.New(storage, fetcher, worker.Config{Version: cfg.CacheVersion, Origin: origin})
	if err != nil {
		return err
	}
	reg := worker.NewRegistration()
	// Until a worker activates every request is proxied to the origin.
	go func() {
		if err := reg.Register(ctx, w); err != nil {
			logger.Errorf("register %s: %v", w.Version(), err)
		}
	}()

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: gateway.New(origin, reg, storage),
	}
	errc := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s, origin %s", cfg.Addr, origin)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Infof("Shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Warnf("shutdown: %v", err)
		}
	}
	w.Wait()
	return nil
}
