package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	WebSocket     WebSocketConfig     `mapstructure:"websocket"`
	Alerting      AlertingConfig      `mapstructure:"alerting"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Facts         FactsConfig         `mapstructure:"facts"`
	Collectors    CollectorsConfig    `mapstructure:"collectors"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	Host           string   `mapstructure:"host"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MigrationsPath string `mapstructure:"migrations_path"`
	MaxConnections int    `mapstructure:"max_connections"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type WebSocketConfig struct {
	ReadBufferSize  int `mapstructure:"read_buffer_size"`
	WriteBufferSize int `mapstructure:"write_buffer_size"`
	MaxMessageSize  int `mapstructure:"max_message_size"`
}

// AlertingConfig drives the two engine ticks and the incident lifecycle
// timings. Durations come in as strings ("30s", "15m") and are parsed once
// at load time.
type AlertingConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	EvaluationInterval string `mapstructure:"evaluation_interval"`
	EscalationInterval string `mapstructure:"escalation_interval"`
	TickBudget         string `mapstructure:"tick_budget"`
	DefaultCooldown    string `mapstructure:"default_cooldown"`
	Level1After        string `mapstructure:"level1_after"`
	Level2After        string `mapstructure:"level2_after"`
	RuleDir            string `mapstructure:"rule_dir"`
}

type NotificationsConfig struct {
	Enabled      bool                        `mapstructure:"enabled"`
	SendTimeout  string                      `mapstructure:"send_timeout"`
	FireRetries  int                         `mapstructure:"fire_retries"`
	RetryBackoff string                      `mapstructure:"retry_backoff"`
	Channels     []NotificationChannelConfig `mapstructure:"channels"`
}

type NotificationChannelConfig struct {
	ID      string `mapstructure:"id"`
	Type    string `mapstructure:"type"`
	Enabled bool   `mapstructure:"enabled"`

	// telegram
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`

	// email
	SMTPHost     string   `mapstructure:"smtp_host"`
	SMTPPort     int      `mapstructure:"smtp_port"`
	SMTPUser     string   `mapstructure:"smtp_user"`
	SMTPPassword string   `mapstructure:"smtp_password"`
	From         string   `mapstructure:"from"`
	To           []string `mapstructure:"to"`

	// slack / generic webhook
	WebhookURL string            `mapstructure:"webhook_url"`
	Headers    map[string]string `mapstructure:"headers"`
}

type FactsConfig struct {
	MetricStaleness string `mapstructure:"metric_staleness"`
	QueryTimeout    string `mapstructure:"query_timeout"`
}

type CollectorsConfig struct {
	System SystemCollectorConfig `mapstructure:"system"`
	Redis  RedisCollectorConfig  `mapstructure:"redis"`
}

type SystemCollectorConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	NodeID   string `mapstructure:"node_id"`
	Interval string `mapstructure:"interval"`
}

type RedisCollectorConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	NodeID   string `mapstructure:"node_id"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Interval string `mapstructure:"interval"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()

	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("collectors.redis.addr", "REDIS_ADDR")
	viper.BindEnv("collectors.redis.password", "REDIS_PASSWORD")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file is fine, defaults plus env carry a dev setup.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8085)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.mode", "release")

	viper.SetDefault("database.path", "./data/mailwatch.db")
	viper.SetDefault("database.migrations_path", "./migrations")
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.auto_migrate", true)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("websocket.read_buffer_size", 1024)
	viper.SetDefault("websocket.write_buffer_size", 1024)
	viper.SetDefault("websocket.max_message_size", 512)

	viper.SetDefault("alerting.enabled", true)
	viper.SetDefault("alerting.evaluation_interval", "30s")
	viper.SetDefault("alerting.escalation_interval", "60s")
	viper.SetDefault("alerting.tick_budget", "10s")
	viper.SetDefault("alerting.default_cooldown", "30m")
	viper.SetDefault("alerting.level1_after", "15m")
	viper.SetDefault("alerting.level2_after", "30m")
	viper.SetDefault("alerting.rule_dir", "")

	viper.SetDefault("notifications.enabled", true)
	viper.SetDefault("notifications.send_timeout", "10s")
	viper.SetDefault("notifications.fire_retries", 3)
	viper.SetDefault("notifications.retry_backoff", "2s")

	viper.SetDefault("facts.metric_staleness", "2m")
	viper.SetDefault("facts.query_timeout", "5s")

	viper.SetDefault("collectors.system.enabled", false)
	viper.SetDefault("collectors.system.node_id", "local")
	viper.SetDefault("collectors.system.interval", "30s")
	viper.SetDefault("collectors.redis.enabled", false)
	viper.SetDefault("collectors.redis.node_id", "redis-1")
	viper.SetDefault("collectors.redis.addr", "localhost:6379")
	viper.SetDefault("collectors.redis.db", 0)
	viper.SetDefault("collectors.redis.interval", "30s")
}

// Duration parses a duration string from config, falling back to def when
// the value is empty or malformed.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
