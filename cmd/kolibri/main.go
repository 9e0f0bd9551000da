package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/kolibri-trade/kolibri/internal/config"
	"github.com/kolibri-trade/kolibri/internal/connectors/catalog"
	"github.com/kolibri-trade/kolibri/internal/connectors/registry"
	"github.com/kolibri-trade/kolibri/internal/scheduler"
	"github.com/kolibri-trade/kolibri/internal/secrets/vault"
	"github.com/kolibri-trade/kolibri/pkg/logger"
)

func main() {
	confDir := os.Getenv("KOLIBRI_CONF_DIR")
	if confDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to resolve home directory: %v", err)
		}
		confDir = filepath.Join(home, ".kolibri")
	}
	if err := os.MkdirAll(confDir, 0o700); err != nil {
		log.Fatalf("Failed to create conf directory: %v", err)
	}

	cfg, err := config.Load(confDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	sched := scheduler.New(zapLogger, scheduler.Config{CallInterval: cfg.SchedulerCallInterval})
	if err := sched.Register(prometheus.DefaultRegisterer); err != nil {
		zapLogger.Fatal("Failed to register scheduler metrics", zap.Error(err))
	}
	defer sched.Stop()

	store, err := vault.NewFileStore(cfg.ConfDir)
	if err != nil {
		zapLogger.Fatal("Failed to open secrets store", zap.Error(err))
	}
	secretsVault := vault.New(zapLogger, store, sched, vault.Config{
		BatchTimeout: cfg.DecryptBatchTimeout,
	})

	gatewayStore := registry.NewGatewayConnectionStore(cfg.GatewayConnectionsPath())
	connectorRegistry := registry.New(zapLogger, gatewayStore)
	if err := connectorRegistry.Discover(catalog.Specs()); err != nil {
		zapLogger.Fatal("Connector discovery failed", zap.Error(err))
	}
	connectorRegistry.InitializePaperTradeSettings(cfg.PaperTradeExchanges)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	firstRun, err := secretsVault.IsFirstRun()
	if err != nil {
		zapLogger.Fatal("Failed to check vault state", zap.Error(err))
	}
	if firstRun {
		fmt.Println("No master password set yet; the one you enter now becomes it.")
	}

	for {
		fmt.Print("Enter your password: ")
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			zapLogger.Fatal("Failed to read password", zap.Error(err))
		}
		ok, err := secretsVault.Login(ctx, string(password))
		if err != nil {
			zapLogger.Fatal("Login failed", zap.Error(err))
		}
		if ok {
			break
		}
		fmt.Println("Invalid password, please try again.")
	}

	if err := secretsVault.WaitUntilDecryptionDone(ctx); err != nil {
		zapLogger.Fatal("Interrupted while decrypting secrets", zap.Error(err))
	}

	zapLogger.Info("client backbone ready",
		zap.Int("connectors", len(connectorRegistry.All())),
		zap.Int("configured_secrets", len(secretsVault.AllSecrets())))

	<-ctx.Done()
	zapLogger.Info("shutting down")
}
