package main

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/athan/internal/config"
)

// loadEnvironment reads .env when present, then the process environment,
// and configures logging from the result.
func loadEnvironment() *config.Config {
	envFileErr := godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	config.SetupLogging(cfg)

	if envFileErr == nil {
		log.Debug().Msg("loaded .env")
	}
	log.Info().
		Str("env", cfg.Environment).
		Str("addr", cfg.ServerAddress).
		Str("timezone", cfg.TimeZone.String()).
		Bool("postgres", cfg.DatabaseURL != "").
		Bool("redis", cfg.RedisAddress != "").
		Bool("mqtt", cfg.MQTTBrokerURL != "").
		Msg("configuration loaded")
	return cfg
}
