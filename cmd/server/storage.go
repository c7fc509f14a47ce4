package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/unishare/unishare-sw/internal/cache"
	"github.com/unishare/unishare-sw/internal/config"
	"github.com/unishare/unishare-sw/internal/logger"
)

const daemonBinary = "unishare-sw-cache"

// openStorage opens the Bolt file in-process, or talks to the cache daemon
// when a socket is configured, starting the daemon if it is not running.
func openStorage(cfg config.Config, readOnly bool) (cache.Storage, error) {
	if cfg.CacheSocket == "" {
		if err := os.MkdirAll(filepath.Dir(cfg.CacheDB), 0o755); err != nil {
			return nil, err
		}
		return cache.OpenBolt(cfg.CacheDB, cache.Options{ReadOnly: readOnly})
	}

	sock := cfg.CacheSocket
	logger.Infof("Attempting to connect to cache daemon at %s", sock)
	err := cache.Probe(sock, 200*time.Millisecond)
	if err == nil {
		return cache.NewClient(sock), nil
	}
	logger.Warnf("Failed to connect to cache daemon: %v, attempting to start daemon", err)
	if startErr := startCacheDaemon(); startErr != nil {
		logger.Errorf("Failed to start cache daemon: %v", startErr)
	}
	// wait for socket to appear
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err = cache.Probe(sock, 200*time.Millisecond); err == nil {
			logger.Infof("Connected to cache daemon")
			return cache.NewClient(sock), nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return nil, err
}

func startCacheDaemon() error {
	// 1) Try cache binary next to this executable
	if exePath, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exePath), daemonBinary)
		if _, statErr := os.Stat(sibling); statErr == nil {
			return spawn(sibling)
		}
	}
	// 2) Try PATH binary
	if path, err := exec.LookPath(daemonBinary); err == nil {
		return spawn(path)
	}
	return exec.ErrNotFound
}

func spawn(path string) error {
	cmd := exec.Command(path)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Env = os.Environ()
	return cmd.Start()
}
