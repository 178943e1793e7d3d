package config

import (
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port         int           `yaml:"port" default:"8080"`
		Host         string        `yaml:"host" default:"0.0.0.0"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"30s"`
		RateLimit    float64       `yaml:"rate_limit" default:"20"` // requests per second per client
	} `yaml:"server"`

	Database struct {
		URL         string        `yaml:"url"`
		MaxConns    int           `yaml:"max_conns" default:"10"`
		PingTimeout time.Duration `yaml:"ping_timeout" default:"5s"`
	} `yaml:"database"`

	Redis struct {
		URL      string        `yaml:"url" default:"redis://localhost:6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db" default:"0"`
		CacheTTL time.Duration `yaml:"cache_ttl" default:"5m"`
		Enabled  bool          `yaml:"enabled" default:"true"`
	} `yaml:"redis"`

	Scheduler struct {
		MaxRetries       int           `yaml:"max_retries" default:"3"`
		DefaultTimeout   time.Duration `yaml:"default_timeout" default:"5m"`
		ShutdownGrace    time.Duration `yaml:"shutdown_grace" default:"30s"`
		RetentionDays    int           `yaml:"retention_days" default:"90"`
		ExecutionHistory int           `yaml:"execution_history" default:"50"` // max page size
	} `yaml:"scheduler"`

	RateLimit struct {
		WindowMs    int64 `yaml:"window_ms" default:"60000"`
		MaxRequests int   `yaml:"max_requests" default:"30"`
	} `yaml:"rate_limit"`

	Platforms struct {
		LinkedIn struct {
			BaseURL string        `yaml:"base_url" default:"https://api.linkedin.com"`
			APIKey  string        `yaml:"api_key"`
			Timeout time.Duration `yaml:"timeout" default:"30s"`
		} `yaml:"linkedin"`
		Indeed struct {
			BaseURL string        `yaml:"base_url" default:"https://api.indeed.com"`
			APIKey  string        `yaml:"api_key"`
			Timeout time.Duration `yaml:"timeout" default:"30s"`
		} `yaml:"indeed"`
	} `yaml:"platforms"`

	Alerts struct {
		WebhookURL string        `yaml:"webhook_url"`
		Timeout    time.Duration `yaml:"timeout" default:"10s"`
		MaxRetries int           `yaml:"max_retries" default:"3"`
		Enabled    bool          `yaml:"enabled" default:"true"`
	} `yaml:"alerts"`

	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json"`
		Output string `yaml:"output" default:"stdout"`

		Adapters []struct {
			Name    string                 `yaml:"name"`
			Type    string                 `yaml:"type"`
			Enabled bool                   `yaml:"enabled"`
			Options map[string]interface{} `yaml:"options"`
		} `yaml:"adapters"`
	} `yaml:"logging"`
}

// expandEnvVars expands environment variables in a string using ${VAR} or $VAR syntax
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	re2 := regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	s = re2.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	return s
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	_ = godotenv.Load()

	config := &Config{}

	// Set defaults
	config.Server.Port = 8080
	config.Server.Host = "0.0.0.0"
	config.Server.ReadTimeout = 30 * time.Second
	config.Server.WriteTimeout = 30 * time.Second
	config.Server.RateLimit = 20

	config.Database.MaxConns = 10
	config.Database.PingTimeout = 5 * time.Second

	config.Redis.URL = "redis://localhost:6379"
	config.Redis.DB = 0
	config.Redis.CacheTTL = 5 * time.Minute
	config.Redis.Enabled = true

	config.Scheduler.MaxRetries = 3
	config.Scheduler.DefaultTimeout = 5 * time.Minute
	config.Scheduler.ShutdownGrace = 30 * time.Second
	config.Scheduler.RetentionDays = 90
	config.Scheduler.ExecutionHistory = 50

	config.RateLimit.WindowMs = 60000
	config.RateLimit.MaxRequests = 30

	config.Platforms.LinkedIn.BaseURL = "https://api.linkedin.com"
	config.Platforms.LinkedIn.Timeout = 30 * time.Second
	config.Platforms.Indeed.BaseURL = "https://api.indeed.com"
	config.Platforms.Indeed.Timeout = 30 * time.Second

	config.Alerts.Timeout = 10 * time.Second
	config.Alerts.MaxRetries = 3
	config.Alerts.Enabled = true

	config.Logging.Level = "info"
	config.Logging.Format = "json"
	config.Logging.Output = "stdout"

	// Load from YAML file if it exists
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			// Expand environment variables in the YAML content
			yamlContent := expandEnvVars(string(data))

			if err := yaml.Unmarshal([]byte(yamlContent), config); err != nil {
				return nil, err
			}
		}
	}

	// Override with environment variables
	config.loadFromEnv()

	return config, nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if host := os.Getenv("HOST"); host != "" {
		c.Server.Host = host
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		c.Database.URL = dbURL
	}

	if maxConns := os.Getenv("DATABASE_MAX_CONNS"); maxConns != "" {
		if n, err := strconv.Atoi(maxConns); err == nil {
			c.Database.MaxConns = n
		}
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.URL = redisURL
	}

	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		c.Redis.Password = redisPassword
	}

	if redisDB := os.Getenv("REDIS_DB"); redisDB != "" {
		if db, err := strconv.Atoi(redisDB); err == nil {
			c.Redis.DB = db
		}
	}

	if redisEnabled := os.Getenv("REDIS_ENABLED"); redisEnabled != "" {
		c.Redis.Enabled = redisEnabled == "true" || redisEnabled == "1"
	}

	if maxRetries := os.Getenv("SCHEDULER_MAX_RETRIES"); maxRetries != "" {
		if n, err := strconv.Atoi(maxRetries); err == nil {
			c.Scheduler.MaxRetries = n
		}
	}

	if timeout := os.Getenv("SCHEDULER_DEFAULT_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			c.Scheduler.DefaultTimeout = d
		}
	}

	if grace := os.Getenv("SCHEDULER_SHUTDOWN_GRACE"); grace != "" {
		if d, err := time.ParseDuration(grace); err == nil {
			c.Scheduler.ShutdownGrace = d
		}
	}

	if retention := os.Getenv("SCHEDULER_RETENTION_DAYS"); retention != "" {
		if n, err := strconv.Atoi(retention); err == nil {
			c.Scheduler.RetentionDays = n
		}
	}

	if windowMs := os.Getenv("RATE_LIMIT_WINDOW_MS"); windowMs != "" {
		if n, err := strconv.ParseInt(windowMs, 10, 64); err == nil {
			c.RateLimit.WindowMs = n
		}
	}

	if maxRequests := os.Getenv("RATE_LIMIT_MAX_REQUESTS"); maxRequests != "" {
		if n, err := strconv.Atoi(maxRequests); err == nil {
			c.RateLimit.MaxRequests = n
		}
	}

	if apiKey := os.Getenv("LINKEDIN_API_KEY"); apiKey != "" {
		c.Platforms.LinkedIn.APIKey = apiKey
	}

	if baseURL := os.Getenv("LINKEDIN_API_URL"); baseURL != "" {
		c.Platforms.LinkedIn.BaseURL = baseURL
	}

	if apiKey := os.Getenv("INDEED_API_KEY"); apiKey != "" {
		c.Platforms.Indeed.APIKey = apiKey
	}

	if baseURL := os.Getenv("INDEED_API_URL"); baseURL != "" {
		c.Platforms.Indeed.BaseURL = baseURL
	}

	if webhookURL := os.Getenv("ALERT_WEBHOOK_URL"); webhookURL != "" {
		c.Alerts.WebhookURL = webhookURL
	}

	if alertsEnabled := os.Getenv("ALERTS_ENABLED"); alertsEnabled != "" {
		c.Alerts.Enabled = alertsEnabled == "true" || alertsEnabled == "1"
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		c.Logging.Format = logFormat
	}
}

// RetentionCutoff returns the timestamp before which raw metric records
// are eligible for deletion.
func (c *Config) RetentionCutoff(now time.Time) time.Time {
	days := c.Scheduler.RetentionDays
	if days <= 0 {
		days = 90
	}
	return now.AddDate(0, 0, -days)
}
