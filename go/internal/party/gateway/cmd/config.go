package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/mcdev12/syncparty/go/internal/party/gateway"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// loadGatewayConfig reads GATEWAY_CONFIG when set, then applies environment overrides
func loadGatewayConfig() gateway.Config {
	config := gateway.DefaultConfig()
	if path := os.Getenv("GATEWAY_CONFIG"); path != "" {
		loaded, err := gateway.LoadConfig(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("failed to load gateway config")
		}
		config = loaded
	}

	config.Bus.URL = getEnv("NATS_URL", config.Bus.URL)
	config.RequireKnownParty = getEnvAsBool("REQUIRE_KNOWN_PARTY", config.RequireKnownParty)
	config.Relay.QueueSize = getEnvAsInt("RELAY_QUEUE_SIZE", config.Relay.QueueSize)
	config.Connection.SendQueueSize = getEnvAsInt("SEND_QUEUE_SIZE", config.Connection.SendQueueSize)
	return config
}

func setupLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	level, err := zerolog.ParseLevel(strings.ToLower(getEnv("LOG_LEVEL", "info")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
