package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/Temutjin2k/ride-pooling/internal/domain/types"
	"github.com/Temutjin2k/ride-pooling/pkg/configparser"
)

// Flags
var (
	modeFlag = flag.String("mode", "", "application mode (pool-service | pool-worker)")
)

// Errors
var (
	ErrModeNotProvided = errors.New("mode flag not provided")
	ErrInvalidPooling  = errors.New("invalid pooling configuration")
)

// Config contains all configuration variables of the application
type (
	Config struct {
		Mode types.ServiceMode

		Log      LogConfig
		Storage  StorageConfig
		Database DatabaseConfig
		Redis    RedisConfig
		RabbitMQ RabbitMQConfig
		Kafka    KafkaConfig
		Services ServicesConfig
		Auth     Auth
		Pooling  PoolingConfig
		Pricing  PricingConfig
		Worker   WorkerConfig
	}

	LogConfig struct {
		Level string `env:"LOG_LEVEL" default:"INFO"`
	}

	StorageConfig struct {
		Driver types.StorageDriver `env:"STORAGE_DRIVER" default:"postgres"`
	}

	DatabaseConfig struct {
		Host     string `env:"DATABASE_HOST" default:"localhost"`
		Port     string `env:"DATABASE_PORT" default:"5432"`
		User     string `env:"DATABASE_USER" default:"pooling_user"`
		Password string `env:"DATABASE_PASSWORD" default:"pooling_pass"`
		Database string `env:"DATABASE_DATABASE" default:"pooling_db"`
		Migrate  bool   `env:"DATABASE_MIGRATE" default:"false"`

		MaxConns        int32         `env:"DATABASE_MAXCONNS" default:"20"`         // максимум открытых соединений
		MinConns        int32         `env:"DATABASE_MINCONNS" default:"2"`          // минимум соединений в пуле
		MaxConnLifetime time.Duration `env:"DATABASE_MAXCONNLIFETIME" default:"30m"` // макс. "время жизни" соединения
		MaxConnIdleTime time.Duration `env:"DATABASE_MAXCONNIDLETIME" default:"5m"`  // макс. "время простоя" соединения
	}

	RedisConfig struct {
		Enabled  bool   `env:"REDIS_ENABLED" default:"false"`
		Addr     string `env:"REDIS_ADDR" default:"localhost:6379"`
		Password string `env:"REDIS_PASSWORD"`
		DB       int    `env:"REDIS_DB" default:"0"`
		GeoKey   string `env:"REDIS_GEO_KEY" default:"pooling:pools:forming"`
	}

	RabbitMQConfig struct {
		Enabled  bool   `env:"RABBITMQ_ENABLED" default:"true"`
		Host     string `env:"RABBITMQ_HOST" default:"localhost"`
		Port     string `env:"RABBITMQ_PORT" default:"5672"`
		User     string `env:"RABBITMQ_USER" default:"guest"`
		Password string `env:"RABBITMQ_PASSWORD" default:"guest"`
	}

	KafkaConfig struct {
		Brokers []string `env:"KAFKA_BROKERS"`
		Topic   string   `env:"KAFKA_TOPIC" default:"pool-events"`
	}

	ServicesConfig struct {
		PoolService string `env:"SERVICES_POOL_SERVICE" default:"3000"`
		PoolWorker  string `env:"SERVICES_POOL_WORKER" default:"3001"`
	}

	Auth struct {
		Enabled   bool   `env:"AUTH_ENABLED" default:"false"`
		JWTSecret string `env:"AUTH_JWT_SECRET" default:"supersecretkey"`
	}

	PoolingConfig struct {
		MaxSeats       int           `env:"POOLING_MAX_SEATS" default:"4"`
		MaxLuggage     int           `env:"POOLING_MAX_LUGGAGE" default:"6"`
		MaxDetourKm    float64       `env:"POOLING_MAX_DETOUR_KM" default:"3"`
		ExpiryMinutes  int           `env:"POOLING_EXPIRY_MINUTES" default:"15"`
		SearchRadiusKm float64       `env:"POOLING_SEARCH_RADIUS_KM" default:"5"`
		CandidateLimit int           `env:"POOLING_CANDIDATE_LIMIT" default:"20"`
		RetryBudget    int           `env:"POOLING_RETRY_BUDGET" default:"3"`
		RetryBackoff   time.Duration `env:"POOLING_RETRY_BACKOFF" default:"10ms"`
	}

	PricingConfig struct {
		BaseFare        float64 `env:"PRICING_BASE_FARE" default:"300"`
		RatePerKm       float64 `env:"PRICING_RATE_PER_KM" default:"100"`
		RatePerMin      float64 `env:"PRICING_RATE_PER_MIN" default:"50"`
		LuggageFee      float64 `env:"PRICING_LUGGAGE_FEE" default:"50"`
		SharingDiscount float64 `env:"PRICING_SHARING_DISCOUNT" default:"0.15"`
		MaxDiscount     float64 `env:"PRICING_MAX_DISCOUNT" default:"0.45"`
	}

	WorkerConfig struct {
		ReapInterval     time.Duration `env:"WORKER_REAP_INTERVAL" default:"30s"`
		ReapBatch        int           `env:"WORKER_REAP_BATCH" default:"100"`
		BackfillInterval time.Duration `env:"WORKER_BACKFILL_INTERVAL" default:"1m"`
		BackfillBatch    int           `env:"WORKER_BACKFILL_BATCH" default:"200"`
	}
)

func (c DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

func (c DatabaseConfig) PoolLimits() (int32, int32, time.Duration, time.Duration) {
	return c.MaxConns, c.MinConns, c.MaxConnLifetime, c.MaxConnIdleTime
}

func (c RabbitMQConfig) GetDSN() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		c.User,
		c.Password,
		c.Host,
		c.Port,
	)
}

// Expiry is the pool TTL.
func (c PoolingConfig) Expiry() time.Duration {
	return time.Duration(c.ExpiryMinutes) * time.Minute
}

func (c PoolingConfig) Validate() error {
	var errs []error
	if c.MaxSeats < 1 {
		errs = append(errs, fmt.Errorf("max seats must be positive, got %d", c.MaxSeats))
	}
	if c.MaxLuggage < 0 {
		errs = append(errs, fmt.Errorf("max luggage must not be negative, got %d", c.MaxLuggage))
	}
	if c.MaxDetourKm <= 0 {
		errs = append(errs, fmt.Errorf("max detour must be positive, got %v", c.MaxDetourKm))
	}
	if c.ExpiryMinutes < 1 {
		errs = append(errs, fmt.Errorf("expiry must be at least one minute, got %d", c.ExpiryMinutes))
	}
	if c.SearchRadiusKm <= 0 {
		errs = append(errs, fmt.Errorf("search radius must be positive, got %v", c.SearchRadiusKm))
	}
	if c.CandidateLimit < 1 {
		errs = append(errs, fmt.Errorf("candidate limit must be positive, got %d", c.CandidateLimit))
	}
	if c.RetryBudget < 1 {
		errs = append(errs, fmt.Errorf("retry budget must be positive, got %d", c.RetryBudget))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidPooling, errors.Join(errs...))
	}
	return nil
}

func NewConfig(filepath string) (*Config, error) {
	cfg := &Config{}

	// Loading enviromental variables and parsing to config struct.
	if err := configparser.LoadAndParseYaml(filepath, cfg); err != nil {
		return nil, fmt.Errorf("failed to load and parse config: %w", err)
	}

	// Parsing flags
	if err := parseFlags(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	if err := cfg.Pooling.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseFlags(cfg *Config) error {
	if modeFlag == nil || *modeFlag == "" {
		return ErrModeNotProvided
	}

	cfg.Mode = types.ServiceMode(*modeFlag)

	return nil
}
