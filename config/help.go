package config

import (
	"flag"
	"fmt"
	"strings"
)

const HelpMessage = `
Ride pooling service

Usage:
  pooling --mode=<pool-service|pool-worker> [--config-path=config.yaml]

Flags:
  --mode          application mode
                    pool-service  HTTP API, passenger websocket feed, ride request consumer
                    pool-worker   expired pool reaper and price backfill
  --config-path   path to the yaml config file (default config.yaml)
  --help          show this message

Every yaml key can be overridden by its UPPER_SNAKE environment variable,
e.g. pooling.max_seats -> POOLING_MAX_SEATS.
`

func PrintHelp() {
	if HelpMessage != "" {
		fmt.Printf("%s", HelpMessage)
	} else {
		flag.Usage()
	}
}

// PrintConfig writes a human readable dump of the configuration with secrets masked.
func PrintConfig(cfg *Config) {
	if cfg == nil {
		return
	}

	var b strings.Builder
	line := func(key string, value any) {
		fmt.Fprintf(&b, "  %-28s %v\n", key, value)
	}

	b.WriteString("Configuration:\n")
	line("mode", cfg.Mode)
	line("log.level", cfg.Log.Level)
	line("storage.driver", cfg.Storage.Driver)

	line("database.host", cfg.Database.Host+":"+cfg.Database.Port)
	line("database.database", cfg.Database.Database)
	line("database.user", cfg.Database.User)
	line("database.password", mask(cfg.Database.Password))
	line("database.migrate", cfg.Database.Migrate)

	line("redis.enabled", cfg.Redis.Enabled)
	if cfg.Redis.Enabled {
		line("redis.addr", cfg.Redis.Addr)
	}
	line("rabbitmq.enabled", cfg.RabbitMQ.Enabled)
	if cfg.RabbitMQ.Enabled {
		line("rabbitmq.host", cfg.RabbitMQ.Host+":"+cfg.RabbitMQ.Port)
	}
	line("kafka.brokers", strings.Join(cfg.Kafka.Brokers, ","))

	line("services.pool_service", cfg.Services.PoolService)
	line("services.pool_worker", cfg.Services.PoolWorker)
	line("auth.enabled", cfg.Auth.Enabled)

	line("pooling.max_seats", cfg.Pooling.MaxSeats)
	line("pooling.max_luggage", cfg.Pooling.MaxLuggage)
	line("pooling.max_detour_km", cfg.Pooling.MaxDetourKm)
	line("pooling.expiry_minutes", cfg.Pooling.ExpiryMinutes)
	line("pooling.search_radius_km", cfg.Pooling.SearchRadiusKm)
	line("pooling.candidate_limit", cfg.Pooling.CandidateLimit)
	line("pooling.retry_budget", cfg.Pooling.RetryBudget)

	line("worker.reap_interval", cfg.Worker.ReapInterval)
	line("worker.backfill_interval", cfg.Worker.BackfillInterval)

	fmt.Print(b.String())
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}
