// keystored serves the local keystore over HTTP.
// Usage: KEYSTORE_DIR=... SECRET_STORE_PATH=... go run ./cmd/keystored
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

	"github.com/AlexZinkM/local-keystore/internal/api"
	"github.com/AlexZinkM/local-keystore/internal/config"
	"github.com/AlexZinkM/local-keystore/internal/keystore"
	"github.com/AlexZinkM/local-keystore/internal/secretstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.Init(); err != nil {
		return err
	}
	cfg := config.Get()

	setLogLevels(cfg.LogLevel)
	if cfg.LogDir != "" {
		if err := initLogRotator(cfg.LogDir); err != nil {
			return err
		}
		defer logRotator.Close()
	}

	// Open the secret store
	passphrase, err := config.PromptForPassphrase("Secret store passphrase: ")
	if err != nil {
		return err
	}
	opts := secretstore.DefaultOptions()
	opts.ScryptN = cfg.ScryptN
	secrets, err := secretstore.Open(cfg.SecretStorePath, passphrase, opts)
	clear(passphrase)
	if err != nil {
		return err
	}
	defer secrets.Close()

	svc, err := keystore.New(keystore.Config{
		KeystoreDir:   cfg.KeystoreDir,
		KDFIterations: cfg.KDFIterations,
	}, secrets)
	if err != nil {
		return err
	}
	defer svc.Stop()

	router, err := api.SetupRouter(svc, cfg.DefaultChainID)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		kstdLog.Infof("Listening on %s, keystore in %s", srv.Addr, cfg.KeystoreDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		kstdLog.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}

	return nil
}
