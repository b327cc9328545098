package config

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Env              string                  `env:"ENV,default=local"`
	ShutdownDuration time.Duration           `env:"SHUTDOWN_DURATION,default=30s"`
	HTTP             HTTPServerConfig        `env:",prefix=HTTP_"`
	Observability    ObservabilityHTTPConfig `env:",prefix=OBSERVABILITY_"`
	Logger           LoggerConfig            `env:",prefix=LOGGER_"`
	DB               DBConfig                `env:",prefix=DB_"`
	JWT              JWTConfig               `env:",prefix=JWT_"`
	CORS             CORSConfig              `env:",prefix=CORS_"`
	Payments         PaymentsConfig          `env:",prefix=PAYMENTS_"`
	RabbitMQ         RabbitMQConfig          `env:",prefix=RABBITMQ_"`
	Workers          WorkersConfig           `env:",prefix=WORKERS_"`
}

type HTTPServerConfig struct {
	Host         string        `env:"HOST,default=0.0.0.0"`
	Port         uint16        `env:"PORT,default=8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=15s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT,default=1m"`
}

func (c HTTPServerConfig) ADDR() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type ObservabilityHTTPConfig struct {
	Enabled      bool          `env:"ENABLED,default=true"`
	Host         string        `env:"HOST,default=127.0.0.1"`
	Port         uint16        `env:"PORT,default=8383"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT,default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT,default=1m"`
}

func (c ObservabilityHTTPConfig) ADDR() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LoggerConfig struct {
	Level  string `env:"LEVEL,default=info"`
	Pretty bool   `env:"PRETTY,default=true"`
}

// DBConfig selects postgres in production; sqlite3 is accepted for local runs.
type DBConfig struct {
	Driver       string        `env:"DRIVER,default=postgres"`
	Host         string        `env:"HOST,default=localhost"`
	Port         uint16        `env:"PORT,default=5432"`
	User         string        `env:"USER,default=dinein"`
	Password     string        `env:"PASSWORD,default=dinein"`
	Name         string        `env:"NAME,default=dinein"`
	SSLMode      string        `env:"SSLMODE,default=disable"`
	SQLitePath   string        `env:"SQLITE_PATH,default=./data/dinein.db"`
	ApplySchema  bool          `env:"APPLY_SCHEMA,default=false"`
	MaxOpenConns int           `env:"MAX_OPEN_CONNS,default=25"`
	MaxIdleConns int           `env:"MAX_IDLE_CONNS,default=5"`
	MaxLifetime  time.Duration `env:"MAX_LIFETIME,default=5m"`
}

func (c DBConfig) DSN() string {
	if c.Driver == "sqlite3" {
		return c.SQLitePath
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type JWTConfig struct {
	Secret    string        `env:"SECRET,required"`
	Issuer    string        `env:"ISSUER,default=dinein-backend"`
	AccessTTL time.Duration `env:"ACCESS_TTL,default=72h"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=http://localhost:3000,http://localhost:3001"`
}

type PaymentsConfig struct {
	Click  ClickConfig  `env:",prefix=CLICK_"`
	Payme  PaymeConfig  `env:",prefix=PAYME_"`
	Paylov PaylovConfig `env:",prefix=PAYLOV_"`

	// PendingTTL is how long a transaction may stay pending before the sweeper cancels it.
	PendingTTL time.Duration `env:"PENDING_TTL,default=30m"`
	RateLimit  struct {
		RPS   float64 `env:"RPS,default=10"`
		Burst int     `env:"BURST,default=20"`
	} `env:",prefix=RATE_LIMIT_"`
}

type ClickConfig struct {
	CallbackURL string `env:"CALLBACK_URL,default=https://my.click.uz/services/pay"`
	ServiceID   string `env:"SERVICE_ID"`
	MerchantID  string `env:"MERCHANT_ID"`
	SecretKey   string `env:"SECRET_KEY"`
}

type PaymeConfig struct {
	CallbackURL string `env:"CALLBACK_URL,default=https://checkout.paycom.uz"`
	MerchantID  string `env:"MERCHANT_ID"`
	SecretKey   string `env:"SECRET_KEY"`
}

type PaylovConfig struct {
	CallbackURL string `env:"CALLBACK_URL,default=https://my.paylov.uz/checkout/create"`
	MerchantID  string `env:"MERCHANT_ID"`
	Username    string `env:"USERNAME"`
	Password    string `env:"PASSWORD"`
}

// RabbitMQConfig with an empty URL disables event publishing.
type RabbitMQConfig struct {
	URL            string        `env:"URL"`
	Exchange       string        `env:"EXCHANGE,default=notifications"`
	PublishTimeout time.Duration `env:"PUBLISH_TIMEOUT,default=5s"`
}

type WorkersConfig struct {
	PendingExpirySchedule string `env:"PENDING_EXPIRY_SCHEDULE,default=*/5 * * * *"`
	PendingExpiryBatch    int    `env:"PENDING_EXPIRY_BATCH,default=100"`
}

// Load reads an optional .env file and then the process environment.
func Load(ctx context.Context) (Config, error) {
	_ = godotenv.Load()
	return LoadFrom(ctx, envconfig.OsLookuper())
}

func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return Config{}, fmt.Errorf("env processing: %w", err)
	}
	if cfg.DB.Driver != "postgres" && cfg.DB.Driver != "sqlite3" {
		return Config{}, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DB.Driver)
	}
	return cfg, nil
}
