package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port            int           `mapstructure:"port"`
		ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
		TrustedProxies  []string      `mapstructure:"trustedProxies"`
		CORSOrigins     []string      `mapstructure:"corsOrigins"`
	} `mapstructure:"server"`
	Database struct {
		PostgresDSN         string `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool   `mapstructure:"postgresAutoMigrate"`
	} `mapstructure:"database"`
	Auth struct {
		JWTSecret     string `mapstructure:"jwtSecret"`     // HS256 secret shared with the managed auth provider
		InternalToken string `mapstructure:"internalToken"` // Shared token for /internal endpoints
	} `mapstructure:"auth"`
	ConvAI struct {
		BaseURL         string        `mapstructure:"baseURL"`
		APIKey          string        `mapstructure:"apiKey"`
		RequestTimeout  time.Duration `mapstructure:"requestTimeout"`
		TranscriptDelay time.Duration `mapstructure:"transcriptDelay"` // Grace period after end-of-call before fetching
	} `mapstructure:"convai"`
	TextGen struct {
		BaseURL        string        `mapstructure:"baseURL"`
		APIKey         string        `mapstructure:"apiKey"`
		Model          string        `mapstructure:"model"`
		RequestTimeout time.Duration `mapstructure:"requestTimeout"`
	} `mapstructure:"textgen"`
	Mailer struct {
		BaseURL        string        `mapstructure:"baseURL"`
		APIKey         string        `mapstructure:"apiKey"`
		FromAddress    string        `mapstructure:"fromAddress"`
		RequestTimeout time.Duration `mapstructure:"requestTimeout"`
	} `mapstructure:"mailer"`
	Payments struct {
		WebhookSecret   string        `mapstructure:"webhookSecret"`
		SignatureMaxAge time.Duration `mapstructure:"signatureMaxAge"`
		DedupWindow     time.Duration `mapstructure:"dedupWindow"`
	} `mapstructure:"payments"`
	Events struct {
		NATSURL string `mapstructure:"natsURL"` // Empty disables outbound event publishing
		Stream  string `mapstructure:"stream"`
		Subject string `mapstructure:"subject"` // Base subject, e.g. leadintake.v1
		MaxAge  int64  `mapstructure:"maxAge"`  // Stream retention in days
	} `mapstructure:"events"`
	RateLimit struct {
		Backend       string          `mapstructure:"backend"` // "memory" or "redis"
		RedisAddr     string          `mapstructure:"redisAddr"`
		RedisPassword string          `mapstructure:"redisPassword"`
		Public        RateLimitPolicy `mapstructure:"public"`
		Authenticated RateLimitPolicy `mapstructure:"authenticated"`
		Sensitive     RateLimitPolicy `mapstructure:"sensitive"`
	} `mapstructure:"rateLimit"`
	Notifier NotifierConfig `mapstructure:"notifier"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
}

// RateLimitPolicy defines one named rate-limit window
type RateLimitPolicy struct {
	MaxRequests int           `mapstructure:"maxRequests"`
	Window      time.Duration `mapstructure:"window"`
}

// NotifierConfig sizes the notification worker pool
type NotifierConfig struct {
	PoolSize   int           `mapstructure:"poolSize"`
	QueueSize  int           `mapstructure:"queueSize"`
	ExpiryTime time.Duration `mapstructure:"expiryTime"`
}

// SweeperConfig controls the background expiry sweeps
type SweeperConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	MatchTTL  time.Duration `mapstructure:"matchTTL"`
	BatchSize int           `mapstructure:"batchSize"`
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	// Create new viper instance
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdownTimeout", 30*time.Second)
	v.SetDefault("metrics.enabled", true)

	// Vendor client defaults
	v.SetDefault("convai.baseURL", "https://tavusapi.com/v2")
	v.SetDefault("convai.requestTimeout", 15*time.Second)
	v.SetDefault("convai.transcriptDelay", 2*time.Second)
	v.SetDefault("textgen.baseURL", "https://api.openai.com/v1")
	v.SetDefault("textgen.model", "gpt-4o-mini")
	v.SetDefault("textgen.requestTimeout", 60*time.Second)
	v.SetDefault("mailer.baseURL", "https://api.resend.com")
	v.SetDefault("mailer.requestTimeout", 10*time.Second)

	// Payments defaults
	v.SetDefault("payments.signatureMaxAge", 5*time.Minute)
	v.SetDefault("payments.dedupWindow", 24*time.Hour)

	// Outbound event defaults
	v.SetDefault("events.stream", "lead_intake_events")
	v.SetDefault("events.subject", "leadintake.v1")
	v.SetDefault("events.maxAge", 7)

	// Rate limit defaults: public 10/min, authenticated 100/15min, sensitive 5/min
	v.SetDefault("rateLimit.backend", "memory")
	v.SetDefault("rateLimit.public.maxRequests", 10)
	v.SetDefault("rateLimit.public.window", time.Minute)
	v.SetDefault("rateLimit.authenticated.maxRequests", 100)
	v.SetDefault("rateLimit.authenticated.window", 15*time.Minute)
	v.SetDefault("rateLimit.sensitive.maxRequests", 5)
	v.SetDefault("rateLimit.sensitive.window", time.Minute)

	// Notifier pool defaults
	v.SetDefault("notifier.poolSize", 10)
	v.SetDefault("notifier.queueSize", 1000)
	v.SetDefault("notifier.expiryTime", time.Minute)

	// Sweeper defaults
	v.SetDefault("sweeper.interval", 10*time.Minute)
	v.SetDefault("sweeper.matchTTL", 24*time.Hour)
	v.SetDefault("sweeper.batchSize", 500)

	// Config file settings
	v.SetConfigName("default") // name of config file (without extension)
	v.SetConfigType("yaml")    // REQUIRED if the config file does not have the extension in the name

	// Add lookup paths
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.lead-intake")
	v.AddConfigPath("/etc/lead-intake")

	// Try to read from config file
	if err := v.ReadInConfig(); err != nil {
		// It's ok if config file is not found, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map environment variables to config fields
	bindEnvs(v, Config{})

	// Read directly from ENV for critical values
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		v.Set("database.postgresDSN", dsn)
	}
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if key := os.Getenv("CONVAI_API_KEY"); key != "" {
		v.Set("convai.apiKey", key)
	}
	if key := os.Getenv("TEXTGEN_API_KEY"); key != "" {
		v.Set("textgen.apiKey", key)
	}
	if key := os.Getenv("MAILER_API_KEY"); key != "" {
		v.Set("mailer.apiKey", key)
	}
	if secret := os.Getenv("PAYMENTS_WEBHOOK_SECRET"); secret != "" {
		v.Set("payments.webhookSecret", secret)
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		v.Set("auth.jwtSecret", secret)
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		v.Set("events.natsURL", url)
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		v.Set("rateLimit.redisAddr", addr)
		v.Set("rateLimit.backend", "redis")
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &config, nil
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		// Get the field tag value (mapstructure)
		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		// Build the env var path
		path := append(parts, tag)
		key := strings.Join(path, ".")

		// If it's a struct, recursively bind its fields
		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		// Bind the env var
		_ = v.BindEnv(key)
	}
}
