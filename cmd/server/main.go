// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-idbridge.
//
// go-idbridge is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeremyhahn/go-idbridge/internal/config"
	"github.com/jeremyhahn/go-idbridge/internal/rest"
	"github.com/jeremyhahn/go-idbridge/pkg/adapters/logger"
	"github.com/jeremyhahn/go-idbridge/pkg/bridge"
	"github.com/jeremyhahn/go-idbridge/pkg/credential"
	"github.com/jeremyhahn/go-idbridge/pkg/directory"
	"github.com/jeremyhahn/go-idbridge/pkg/hydra"
	"github.com/jeremyhahn/go-idbridge/pkg/ratelimit"
	"github.com/jeremyhahn/go-idbridge/pkg/session"
	"github.com/jeremyhahn/go-idbridge/pkg/storage"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "/etc/idbridge/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("go-idbridge server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	if envConfig := os.Getenv("IDBRIDGE_CONFIG"); envConfig != "" {
		*configPath = envConfig
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	log := logger.NewSlogAdapter(&logger.SlogConfig{
		Level:  logger.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
	})
	log.Info("Starting identity bridge",
		logger.String("version", version),
		logger.String("config", *configPath))

	store := buildStore(cfg)
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("Failed to close storage backend")
		}
	}()

	sessions, err := session.NewManager(session.ManagerParams{
		Store:  store,
		Secret: []byte(cfg.Session.Secret),
		TTL:    cfg.Session.TTL.Std(),
	})
	if err != nil {
		log.WithError(err).Error("Failed to create session manager")
		os.Exit(1)
	}

	credentials, err := credential.NewManager(credential.ManagerParams{
		Store: store,
		Config: &credential.Config{
			RPID:          cfg.WebAuthn.RPID,
			RPDisplayName: cfg.WebAuthn.RPDisplayName,
			RPOrigins:     cfg.WebAuthn.RPOrigins,
			ChallengeTTL:  cfg.WebAuthn.ChallengeTTL.Std(),
			TOTPIssuer:    cfg.TOTP.Issuer,
			TOTPAlgorithm: cfg.TOTP.Algorithm,
			TOTPDigits:    cfg.TOTP.Digits,
			TOTPSkew:      cfg.TOTP.Skew,
		},
	})
	if err != nil {
		log.WithError(err).Error("Failed to create credential manager")
		os.Exit(1)
	}

	dir, err := directory.NewLDAP(directory.LDAPConfig{
		URL:          cfg.LDAP.URL,
		BindDN:       cfg.LDAP.BindDN,
		BindPassword: cfg.LDAP.BindPassword,
		UserBaseDN:   cfg.LDAP.UserBaseDN,
		GroupBaseDN:  cfg.LDAP.GroupBaseDN,
	})
	if err != nil {
		log.WithError(err).Error("Failed to create LDAP directory")
		os.Exit(1)
	}

	admin, err := hydra.NewClient(hydra.Config{
		AdminURL: cfg.Hydra.AdminURL,
		Timeout:  cfg.Hydra.Timeout.Std(),
	})
	if err != nil {
		log.WithError(err).Error("Failed to create hydra admin client")
		os.Exit(1)
	}

	idp, err := bridge.New(bridge.Params{
		Admin:     admin,
		Directory: dir,
		Logger:    log,
		Config: bridge.Config{
			RememberConsent: cfg.Hydra.Remember,
			RememberFor:     cfg.Hydra.RememberFor.Std(),
		},
	})
	if err != nil {
		log.WithError(err).Error("Failed to create handshake bridge")
		os.Exit(1)
	}

	server, err := rest.NewServer(&rest.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		Sessions:     sessions,
		Credentials:  credentials,
		Bridge:       idp,
		Directory:    dir,
		Logger:       log,
		SessionTTL:   cfg.Session.TTL.Std(),
		AdminGroupDN: cfg.LDAP.AdminGroupDN,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		RateLimit: &ratelimit.Config{
			Enabled:           cfg.RateLimit.Enabled,
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
	})
	if err != nil {
		log.WithError(err).Error("Failed to create REST server")
		os.Exit(1)
	}

	shutdownCtx := setupSignalHandler()

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-shutdownCtx.Done():
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.WithError(err).Error("Server error")
	}

	shutdownTimeout, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownTimeout); err != nil {
		log.WithError(err).Error("Error during server shutdown")
		os.Exit(1)
	}

	log.Info("Server stopped successfully")
}

// buildStore selects the ephemeral state backend from configuration.
func buildStore(cfg *config.Config) storage.Backend {
	if cfg.Storage.Backend == "redis" {
		return storage.NewRedis(storage.RedisConfig{
			Addr:      cfg.Storage.Addr,
			Password:  cfg.Storage.Password,
			DB:        cfg.Storage.DB,
			KeyPrefix: cfg.Storage.KeyPrefix,
		})
	}
	return storage.NewMemory()
}

// setupSignalHandler sets up signal handling for graceful shutdown
func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		cancel()
	}()

	return ctx
}
