package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Event drivers.
const (
	EventsNone     = "none"
	EventsKafka    = "kafka"
	EventsRabbitMQ = "rabbitmq"
)

// Sector table sources.
const (
	SectorsStatic = "static"
	SectorsMongo  = "mongo"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Port        string `yaml:"port"`
		Environment string `yaml:"environment"`
		LogLevel    string `yaml:"log_level"`
	} `yaml:"server"`
	Sentry struct {
		DSN        string  `yaml:"dsn"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"sentry"`
	Upstream struct {
		QuoteURL         string        `yaml:"quote_url"`
		DCFURL           string        `yaml:"dcf_url"`
		DCFAPIKey        string        `yaml:"dcf_api_key"`
		NewsURL          string        `yaml:"news_url"`
		NewsAPIKey       string        `yaml:"news_api_key"`
		NewsLookbackDays int           `yaml:"news_lookback_days"`
		SentimentURL     string        `yaml:"sentiment_url"`
		Timeout          time.Duration `yaml:"timeout"`
	} `yaml:"upstream"`
	Explainer struct {
		APIKey        string        `yaml:"api_key"`
		Model         string        `yaml:"model"`
		Timeout       time.Duration `yaml:"timeout"`
		RatePerMinute int           `yaml:"rate_per_minute"`
	} `yaml:"explainer"`
	Sectors struct {
		Source     string `yaml:"source"`
		ReloadCron string `yaml:"reload_cron"`
	} `yaml:"sectors"`
	Mongo struct {
		URI        string `yaml:"uri"`
		Database   string `yaml:"database"`
		Collection string `yaml:"collection"`
	} `yaml:"mongo"`
	Events struct {
		Driver string `yaml:"driver"`
		Kafka  struct {
			BootstrapServers  string `yaml:"bootstrap_servers"`
			Topic             string `yaml:"topic"`
			Partitions        int    `yaml:"partitions"`
			ReplicationFactor int    `yaml:"replication_factor"`
		} `yaml:"kafka"`
		RabbitMQ struct {
			Server string `yaml:"server"`
			Port   string `yaml:"port"`
			User   string `yaml:"user"`
			Pass   string `yaml:"pass"`
			Queue  string `yaml:"queue"`
		} `yaml:"rabbitmq"`
	} `yaml:"events"`
}

// LoadDotEnv loads a .env file into the process environment if one exists.
func LoadDotEnv(paths ...string) {
	_ = godotenv.Load(paths...)
}

// Load reads config from a YAML file, then applies environment variable overrides
// and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"PORT":                   &c.Server.Port,
		"ENVIRONMENT":            &c.Server.Environment,
		"LOG_LEVEL":              &c.Server.LogLevel,
		"SENTRY_DSN":             &c.Sentry.DSN,
		"QUOTE_API_URL":          &c.Upstream.QuoteURL,
		"DCF_API_URL":            &c.Upstream.DCFURL,
		"DCF_API_KEY":            &c.Upstream.DCFAPIKey,
		"NEWS_API_URL":           &c.Upstream.NewsURL,
		"NEWS_API_KEY":           &c.Upstream.NewsAPIKey,
		"SENTIMENT_API_URL":      &c.Upstream.SentimentURL,
		"GEMINI_API_KEY":         &c.Explainer.APIKey,
		"GEMINI_MODEL":           &c.Explainer.Model,
		"SECTOR_SOURCE":          &c.Sectors.Source,
		"SECTOR_RELOAD_CRON":     &c.Sectors.ReloadCron,
		"MONGO_URI":              &c.Mongo.URI,
		"DATABASE":               &c.Mongo.Database,
		"SECTOR_COLLECTION":      &c.Mongo.Collection,
		"EVENTS_DRIVER":          &c.Events.Driver,
		"KAFKA_BOOTSTRAPSERVERS": &c.Events.Kafka.BootstrapServers,
		"KAFKA_TOPIC":            &c.Events.Kafka.Topic,
		"RABBITMQ_SERVER":        &c.Events.RabbitMQ.Server,
		"RABBITMQ_PORT":          &c.Events.RabbitMQ.Port,
		"RABBITMQ_USER":          &c.Events.RabbitMQ.User,
		"RABBITMQ_PASS":          &c.Events.RabbitMQ.Pass,
		"RABBITMQ_QUEUE":         &c.Events.RabbitMQ.Queue,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"NEWS_LOOKBACK_DAYS":      &c.Upstream.NewsLookbackDays,
		"EXPLAIN_RATE_PER_MINUTE": &c.Explainer.RatePerMinute,
		"KAFKA_TOPIC_PARTITIONS":  &c.Events.Kafka.Partitions,
		"KAFKA_TOPIC_REPL_FACTOR": &c.Events.Kafka.ReplicationFactor,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"UPSTREAM_TIMEOUT": &c.Upstream.Timeout,
		"EXPLAIN_TIMEOUT":  &c.Explainer.Timeout,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	if v := os.Getenv("SENTRY_SAMPLE_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SENTRY_SAMPLE_RATE: %w", err)
		}
		c.Sentry.SampleRate = rate
	}
	return nil
}

func (c *Config) applyDefaults() {
	setString := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}

	setString(&c.Server.Port, "4000")
	setString(&c.Server.Environment, "development")
	setString(&c.Server.LogLevel, "info")

	setString(&c.Upstream.QuoteURL, "https://query1.finance.yahoo.com")
	setString(&c.Upstream.DCFURL, "https://financialmodelingprep.com")
	setString(&c.Upstream.NewsURL, "https://newsapi.org")
	setString(&c.Upstream.SentimentURL, "http://localhost:8000")
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = 10 * time.Second
	}

	setString(&c.Explainer.Model, "gemini-2.5-flash")
	if c.Explainer.Timeout == 0 {
		c.Explainer.Timeout = 45 * time.Second
	}
	if c.Explainer.RatePerMinute == 0 {
		c.Explainer.RatePerMinute = 10
	}

	setString(&c.Sectors.Source, SectorsStatic)
	setString(&c.Sectors.ReloadCron, "0 3 * * *")
	setString(&c.Mongo.Database, "stockscore")
	setString(&c.Mongo.Collection, "sectors")

	c.Events.Driver = strings.ToLower(c.Events.Driver)
	setString(&c.Events.Driver, EventsNone)
	setString(&c.Events.Kafka.Topic, "score-events")
	if c.Events.Kafka.Partitions == 0 {
		c.Events.Kafka.Partitions = 1
	}
	if c.Events.Kafka.ReplicationFactor == 0 {
		c.Events.Kafka.ReplicationFactor = 1
	}
	setString(&c.Events.RabbitMQ.Server, "localhost")
	setString(&c.Events.RabbitMQ.Port, "5672")
	setString(&c.Events.RabbitMQ.User, "guest")
	setString(&c.Events.RabbitMQ.Pass, "guest")
	setString(&c.Events.RabbitMQ.Queue, "stockscore")

	if c.Sentry.SampleRate == 0 {
		c.Sentry.SampleRate = 1.0
	}
}

// Validate checks that the loaded values are usable.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("server.port must be numeric: %q", c.Server.Port)
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}
	if c.Explainer.Timeout <= 0 {
		return fmt.Errorf("explainer.timeout must be positive")
	}
	if c.Explainer.RatePerMinute < 0 {
		return fmt.Errorf("explainer.rate_per_minute must not be negative")
	}
	if c.Upstream.NewsLookbackDays < 0 {
		return fmt.Errorf("upstream.news_lookback_days must not be negative")
	}
	if c.Sentry.SampleRate < 0 || c.Sentry.SampleRate > 1 {
		return fmt.Errorf("sentry.sample_rate must be within [0, 1]")
	}

	switch c.Sectors.Source {
	case SectorsStatic:
	case SectorsMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("mongo.uri is required when sectors.source is %q", SectorsMongo)
		}
		if _, err := cron.ParseStandard(c.Sectors.ReloadCron); err != nil {
			return fmt.Errorf("sectors.reload_cron: %w", err)
		}
	default:
		return fmt.Errorf("unknown sectors.source %q", c.Sectors.Source)
	}

	switch c.Events.Driver {
	case EventsNone:
	case EventsKafka:
		if c.Events.Kafka.BootstrapServers == "" {
			return fmt.Errorf("events.kafka.bootstrap_servers is required")
		}
	case EventsRabbitMQ:
		if c.Events.RabbitMQ.Server == "" {
			return fmt.Errorf("events.rabbitmq.server is required")
		}
	default:
		return fmt.Errorf("unknown events.driver %q", c.Events.Driver)
	}
	return nil
}
