package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"

	DecoderLocal  = "local"
	DecoderRemote = "remote"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Bill     BillConfig
	Scan     ScanConfig
	RabbitMQ RabbitMQConfig
}

// Load reads the configuration from the environment. A .env file in the working
// directory, when present, seeds variables that are not already set.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("loading .env: %w", err)
		}
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.App.InventoryBackend {
	case BackendPostgres, BackendRedis:
	default:
		return fmt.Errorf("unsupported INVENTORY_BACKEND %q", c.App.InventoryBackend)
	}
	switch c.Scan.DecoderMode {
	case DecoderLocal:
	case DecoderRemote:
		if c.Scan.DecoderURL == "" {
			return errors.New("DECODER_URL is required when DECODER_MODE=remote")
		}
	default:
		return fmt.Errorf("unsupported DECODER_MODE %q", c.Scan.DecoderMode)
	}
	if c.Scan.MaxAttempts <= 0 {
		return errors.New("SCAN_MAX_ATTEMPTS must be positive")
	}
	return nil
}

type AppConfig struct {
	Port             string   `envconfig:"PORT" default:"8080"`
	LogLevel         string   `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat        string   `envconfig:"LOG_FORMAT" default:"console"`
	CORSOrigins      []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:8080"`
	InventoryBackend string   `envconfig:"INVENTORY_BACKEND" default:"postgres"`
}

type DBConfig struct {
	Host        string `envconfig:"DB_HOST" default:"localhost"`
	Port        string `envconfig:"DB_PORT" default:"5432"`
	User        string `envconfig:"DB_USER" default:"library_pos"`
	Password    string `envconfig:"DB_PASSWORD" default:"library_pos"`
	Name        string `envconfig:"DB_NAME" default:"library_pos"`
	SSLMode     string `envconfig:"DB_SSLMODE" default:"disable"`
	AutoMigrate bool   `envconfig:"DB_AUTO_MIGRATE" default:"true"`

	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`
}

// DSN renders the lib/pq keyword connection string.
func (d DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	URL       string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	KeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"library"`
}

type AuthConfig struct {
	JWTSecret        string        `envconfig:"JWT_SECRET" required:"true"`
	JWTIssuer        string        `envconfig:"JWT_ISSUER" default:"library-pos-backend"`
	TokenTTL         time.Duration `envconfig:"JWT_TTL" default:"12h"`
	OperatorUsername string        `envconfig:"OPERATOR_USERNAME" default:"admin"`
	// bcrypt hash of the operator password
	OperatorPasswordHash string `envconfig:"OPERATOR_PASSWORD_HASH" required:"true"`
	OperatorRole         string `envconfig:"OPERATOR_ROLE" default:"Admin"`
}

type BillConfig struct {
	RequireCustomer bool   `envconfig:"BILL_REQUIRE_CUSTOMER" default:"false"`
	DefaultCustomer string `envconfig:"BILL_DEFAULT_CUSTOMER" default:"Walk-in Customer"`
}

type ScanConfig struct {
	Interval       time.Duration `envconfig:"SCAN_INTERVAL" default:"300ms"`
	MaxAttempts    int           `envconfig:"SCAN_MAX_ATTEMPTS" default:"200"`
	MaxDuration    time.Duration `envconfig:"SCAN_MAX_DURATION" default:"90s"`
	CameraWait     time.Duration `envconfig:"SCAN_CAMERA_WAIT" default:"30s"`
	DefaultZoom    float64       `envconfig:"SCAN_DEFAULT_ZOOM" default:"2.0"`
	MinLength      int           `envconfig:"SCAN_MIN_BARCODE_LENGTH" default:"3"`
	DecoderMode    string        `envconfig:"DECODER_MODE" default:"local"`
	DecoderURL     string        `envconfig:"DECODER_URL"`
	DecoderTimeout time.Duration `envconfig:"DECODER_TIMEOUT" default:"5s"`
}

type RabbitMQConfig struct {
	URL      string `envconfig:"RABBITMQ_URL"`
	Exchange string `envconfig:"RABBITMQ_EXCHANGE" default:"library.events"`
}
