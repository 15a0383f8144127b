package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/syncparty/go/internal/dbconfig"
	"github.com/mcdev12/syncparty/go/internal/parties"
	"github.com/mcdev12/syncparty/go/internal/party/gateway"
	"github.com/mcdev12/syncparty/go/internal/playback"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	setupLogging()

	port := getEnv("GATEWAY_PORT", "8081")
	dbEnabled := getEnvAsBool("DB_ENABLED", true)
	gatewayConfig := loadGatewayConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		directory    gateway.Directory
		ledgerReader gateway.PlaybackReader
		ledger       *playback.Ledger
		dbCfg        dbconfig.Config
		db           *sql.DB
	)
	if dbEnabled {
		dbCfg = dbconfig.NewConfigFromEnv()
		if getEnvAsBool("DB_AUTO_MIGRATE", false) {
			if err := migrate(ctx, dbCfg); err != nil {
				log.Fatal().Err(err).Msg("failed to migrate database")
			}
		}

		var err error
		db, err = setupDatabase(ctx, dbCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		directory = parties.NewApp(parties.NewRepository(db))
		ledger = playback.NewLedger(playback.NewRepositoryFromDB(db))
		ledgerReader = ledger
	} else if gatewayConfig.RequireKnownParty {
		log.Fatal().Msg("REQUIRE_KNOWN_PARTY needs the database")
	}

	log.Info().
		Bool("database", dbEnabled).
		Str("nats_url", gatewayConfig.Bus.URL).
		Bool("require_known_party", gatewayConfig.RequireKnownParty).
		Str("port", port).
		Msg("starting party gateway")

	gatewayService, err := gateway.NewService(gatewayConfig, directory, ledgerReader)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway service")
	}

	var wg sync.WaitGroup

	// Start gateway service (bus subscription and relay)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	// Push ledger changes to live members
	if ledger != nil {
		listenerCfg := playback.DefaultListenerConfig()
		listenerCfg.DatabaseURL = dbCfg.DSN()
		listener, err := playback.NewListener(ledger, gatewayService, listenerCfg)
		if err != nil {
			log.Error().Err(err).Msg("playback listener disabled")
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := listener.Start(ctx); err != nil {
					log.Error().Err(err).Msg("playback listener failed")
				}
			}()
		}
	}

	server := setupServer(port, gatewayService)

	// Start HTTP server
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Hijacked websocket connections are not tracked by Shutdown
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	wg.Wait()

	log.Info().Msg("party gateway shutdown complete")
}
