package main

import (
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/unishare/unishare-sw/internal/cache"
	"github.com/unishare/unishare-sw/internal/config"
	"github.com/unishare/unishare-sw/internal/logger"
)

func main() {
	if err := logger.InitFromEnv(); err != nil {
		panic(err)
	}
	defer logger.Close()

	var cfg config.Config
	if err := config.ParseEnv(&cfg); err != nil {
		panic(err)
	}
	sock := defaultString(cfg.CacheSocket, config.DefaultSocketPath())
	db := defaultString(cfg.CacheDB, config.DefaultDBPath())

	// Ensure socket dir exists and remove stale socket
	_ = os.MkdirAll(filepath.Dir(sock), 0o755)
	_ = os.MkdirAll(filepath.Dir(db), 0o755)
	_ = os.Remove(sock)

	l, err := net.Listen("unix", sock)
	if err != nil {
		panic(err)
	}
	_ = os.Chmod(sock, 0o600)

	store, err := cache.OpenBolt(db, cache.Options{})
	if err != nil {
		_ = l.Close()
		panic(err)
	}
	defer store.Close()
	logger.Infof("cache daemon serving %s on %s", db, sock)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		_ = l.Close()
	}()

	if err := cache.Serve(l, store); err != nil {
		logger.Errorf("cache daemon: %v", err)
	}
	_ = os.Remove(sock)
}

func defaultString(v, d string) string {
	if v == "" {
		return d
	}
	return v
}
