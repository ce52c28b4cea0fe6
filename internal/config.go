package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security"`
	Broker        BrokerConfig        `mapstructure:"broker"`
	Notification  NotificationConfig  `mapstructure:"notification"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	OpenAPIPath       string        `mapstructure:"openapi_path"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source" validate:"required"`
}

type SecurityConfig struct {
	JWTAccessSecret      string        `mapstructure:"jwt_access_secret" validate:"required,min=16"`
	JWTRefreshSecret     string        `mapstructure:"jwt_refresh_secret" validate:"required,min=16"`
	AccessTokenDuration  time.Duration `mapstructure:"access_token_duration" validate:"required"`
	RefreshTokenDuration time.Duration `mapstructure:"refresh_token_duration" validate:"required"`
	BCryptCost           int           `mapstructure:"bcrypt_cost" validate:"min=4,max=15"`
	DemoLoginEnabled     bool          `mapstructure:"demo_login_enabled"`
}

// BrokerConfig selects the pub/sub backend used for notification fan-out.
// "memory" only fans out within one process; "redis" spans processes.
type BrokerConfig struct {
	Driver         string        `mapstructure:"driver" validate:"required,oneof=memory redis"`
	Address        string        `mapstructure:"address" validate:"required_if=Driver redis"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db" validate:"min=0"`
	MaxIdle        int           `mapstructure:"max_idle"`
	MaxActive      int           `mapstructure:"max_active"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type NotificationConfig struct {
	MaxWorkers         int           `mapstructure:"max_workers"`
	JobQueueSize       int           `mapstructure:"job_queue_size"`
	SessionBufferSize  int           `mapstructure:"session_buffer_size"`
	PublishRetries     uint64        `mapstructure:"publish_retries"`
	DeliveryRetries    uint64        `mapstructure:"delivery_retries"`
	RetryBaseDelay     time.Duration `mapstructure:"retry_base_delay"`
	WebsocketPing      time.Duration `mapstructure:"websocket_ping"`
	WebsocketWriteWait time.Duration `mapstructure:"websocket_write_wait"`
}

type StorageConfig struct {
	UploadDir    string `mapstructure:"upload_dir" validate:"required"`
	MaxFileBytes int64  `mapstructure:"max_file_bytes" validate:"min=1"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Env   string `mapstructure:"env"`
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

// LoadConfigFromEnv builds the configuration for container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("BASE_URL", ""),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			OpenAPIPath:       getEnv("OPENAPI_PATH", "./api/openapi.yml"),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_URL", ""),
		},
		Security: SecurityConfig{
			JWTAccessSecret:      getEnv("JWT_ACCESS_SECRET", ""),
			JWTRefreshSecret:     getEnv("JWT_REFRESH_SECRET", ""),
			AccessTokenDuration:  getEnvAsDuration("ACCESS_TOKEN_DURATION", 15*time.Minute),
			RefreshTokenDuration: getEnvAsDuration("REFRESH_TOKEN_DURATION", 7*24*time.Hour),
			BCryptCost:           getEnvAsInt("BCRYPT_COST", 10),
			DemoLoginEnabled:     getEnv("DEMO_LOGIN_ENABLED", "false") == "true",
		},
		Broker: BrokerConfig{
			Driver:         getEnv("BROKER_DRIVER", "redis"),
			Address:        getEnv("BROKER_ADDRESS", "redis:6379"),
			Password:       getEnv("BROKER_PASSWORD", ""),
			DB:             getEnvAsInt("BROKER_DB", 0),
			MaxIdle:        getEnvAsInt("BROKER_MAX_IDLE", 8),
			MaxActive:      getEnvAsInt("BROKER_MAX_ACTIVE", 64),
			IdleTimeout:    getEnvAsDuration("BROKER_IDLE_TIMEOUT", 240*time.Second),
			ConnectTimeout: getEnvAsDuration("BROKER_CONNECT_TIMEOUT", 5*time.Second),
		},
		Notification: NotificationConfig{
			MaxWorkers:         getEnvAsInt("NOTIFY_MAX_WORKERS", 8),
			JobQueueSize:       getEnvAsInt("NOTIFY_JOB_QUEUE_SIZE", 1024),
			SessionBufferSize:  getEnvAsInt("NOTIFY_SESSION_BUFFER", 64),
			PublishRetries:     uint64(getEnvAsInt("NOTIFY_PUBLISH_RETRIES", 3)),
			DeliveryRetries:    uint64(getEnvAsInt("NOTIFY_DELIVERY_RETRIES", 3)),
			RetryBaseDelay:     getEnvAsDuration("NOTIFY_RETRY_BASE_DELAY", 50*time.Millisecond),
			WebsocketPing:      getEnvAsDuration("WS_PING_INTERVAL", 30*time.Second),
			WebsocketWriteWait: getEnvAsDuration("WS_WRITE_WAIT", 10*time.Second),
		},
		Storage: StorageConfig{
			UploadDir:    getEnv("UPLOAD_DIR", "/var/lib/team-collab/uploads"),
			MaxFileBytes: int64(getEnvAsInt("UPLOAD_MAX_BYTES", 10<<20)),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Env:   getEnv("APP_ENV", "production"),
				Level: getEnv("LOG_LEVEL", "info"),
			},
		},
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

var configValidator = validator.New()

func (c *Config) Validate() error {
	var errs []string

	if err := configValidator.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs = append(errs, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *SecurityConfig) Validate() error {
	if c.JWTAccessSecret != "" && c.JWTAccessSecret == c.JWTRefreshSecret {
		return errors.New("access and refresh secrets must differ")
	}
	if c.RefreshTokenDuration > 0 && c.RefreshTokenDuration <= c.AccessTokenDuration {
		return errors.New("refresh_token_duration must be longer than access_token_duration")
	}
	return nil
}
