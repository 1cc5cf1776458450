package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	Name                string `mapstructure:"name"`
	Env                 string `mapstructure:"env"`
	Host                string `mapstructure:"host"`
	Port                int    `mapstructure:"port"`
	ShutdownTimeoutSecs int    `mapstructure:"shutdown_timeout_seconds"`
	RateLimitPerMin     int    `mapstructure:"rate_limit_per_min"`
}

func (a AppConfig) Addr() string { return fmt.Sprintf("%s:%d", a.Host, a.Port) }

type JWTConfig struct {
	Algorithm     string `mapstructure:"algorithm"`
	HSSecret      string `mapstructure:"hs_secret"`
	PublicKeyPath string `mapstructure:"public_key_path"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaConfig struct {
	Brokers          []string `mapstructure:"brokers"`
	TopicMessageSent string   `mapstructure:"topic_message_sent"`
	TopicPushDLQ     string   `mapstructure:"topic_push_dlq"`
	ReplayGroupID    string   `mapstructure:"replay_group_id"`
}

type WSConfig struct {
	PingIntervalSeconds  int     `mapstructure:"ping_interval_seconds"`
	WriteDeadlineSeconds int     `mapstructure:"write_deadline_seconds"`
	MaxMessageSizeBytes  int64   `mapstructure:"max_message_size_bytes"`
	SendBuffer           int     `mapstructure:"send_buffer"`
	EventsPerSecond      float64 `mapstructure:"events_per_second"`
	EventBurst           int     `mapstructure:"event_burst"`
}

type PushConfig struct {
	Endpoint          string `mapstructure:"endpoint"`
	AccessToken       string `mapstructure:"access_token"`
	MaxBatch          int    `mapstructure:"max_batch"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	RetryMaxElapsedMs int    `mapstructure:"retry_max_elapsed_ms"`
	BreakerFailures   uint32 `mapstructure:"breaker_failures"`
	BreakerOpenSecs   int    `mapstructure:"breaker_open_seconds"`
	ReplayEnabled     bool   `mapstructure:"replay_enabled"`
	ReplayMaxAttempts int    `mapstructure:"replay_max_attempts"`
}

type ReminderConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalMinutes int  `mapstructure:"interval_minutes"`
	WindowHours     int  `mapstructure:"window_hours"`
	LockTTLMinutes  int  `mapstructure:"lock_ttl_minutes"`
}

type ConsulConfig struct {
	Addr      string `mapstructure:"addr"`
	ServiceID string `mapstructure:"service_id"`
}

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	WS       WSConfig       `mapstructure:"ws"`
	Push     PushConfig     `mapstructure:"push"`
	Reminder ReminderConfig `mapstructure:"reminder"`
	Consul   ConsulConfig   `mapstructure:"consul"`
	Log      struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	// derived values
	ShutdownTimeout  time.Duration
	PingInterval     time.Duration
	WriteDeadline    time.Duration
	PushTimeout      time.Duration
	PushRetryElapsed time.Duration
	BreakerOpen      time.Duration
	ReminderInterval time.Duration
	ReminderWindow   time.Duration
	ReminderLockTTL  time.Duration
}

// Load reads path (optional, YAML) and overlays REALTIME_* environment
// variables, e.g. REALTIME_MONGO_URI.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("realtime")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	c.derive()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "peteat-realtime")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8085)
	v.SetDefault("app.shutdown_timeout_seconds", 15)
	v.SetDefault("app.rate_limit_per_min", 120)
	v.SetDefault("jwt.algorithm", "HS256")
	v.SetDefault("mongo.database", "peteat")
	v.SetDefault("redis.prefix", "peteat")
	v.SetDefault("kafka.topic_message_sent", "message.sent")
	v.SetDefault("kafka.topic_push_dlq", "push.dlq")
	v.SetDefault("kafka.replay_group_id", "peteat-realtime-dlq")
	v.SetDefault("ws.ping_interval_seconds", 25)
	v.SetDefault("ws.write_deadline_seconds", 10)
	v.SetDefault("ws.max_message_size_bytes", 65536)
	v.SetDefault("ws.send_buffer", 256)
	v.SetDefault("ws.events_per_second", 10)
	v.SetDefault("ws.event_burst", 20)
	v.SetDefault("push.endpoint", "https://exp.host/--/api/v2/push/send")
	v.SetDefault("push.max_batch", 100)
	v.SetDefault("push.timeout_seconds", 10)
	v.SetDefault("push.retry_max_elapsed_ms", 5000)
	v.SetDefault("push.breaker_failures", 5)
	v.SetDefault("push.breaker_open_seconds", 30)
	v.SetDefault("push.replay_enabled", false)
	v.SetDefault("push.replay_max_attempts", 3)
	v.SetDefault("reminder.enabled", true)
	v.SetDefault("reminder.interval_minutes", 60)
	v.SetDefault("reminder.window_hours", 24)
	v.SetDefault("reminder.lock_ttl_minutes", 30)
	v.SetDefault("log.level", "info")

	// AutomaticEnv only sees keys viper already knows about.
	for _, k := range []string{"app.host", "jwt.hs_secret", "jwt.public_key_path", "mongo.uri", "redis.addr", "redis.password", "push.access_token", "consul.addr", "consul.service_id"} {
		v.SetDefault(k, "")
	}
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.brokers", []string{})
}

func (c *Config) derive() {
	c.ShutdownTimeout = time.Duration(c.App.ShutdownTimeoutSecs) * time.Second
	c.PingInterval = time.Duration(c.WS.PingIntervalSeconds) * time.Second
	c.WriteDeadline = time.Duration(c.WS.WriteDeadlineSeconds) * time.Second
	c.PushTimeout = time.Duration(c.Push.TimeoutSeconds) * time.Second
	c.PushRetryElapsed = time.Duration(c.Push.RetryMaxElapsedMs) * time.Millisecond
	c.BreakerOpen = time.Duration(c.Push.BreakerOpenSecs) * time.Second
	c.ReminderInterval = time.Duration(c.Reminder.IntervalMinutes) * time.Minute
	c.ReminderWindow = time.Duration(c.Reminder.WindowHours) * time.Hour
	c.ReminderLockTTL = time.Duration(c.Reminder.LockTTLMinutes) * time.Minute
	if c.Push.MaxBatch <= 0 || c.Push.MaxBatch > 100 {
		c.Push.MaxBatch = 100
	}
}

func (c *Config) Validate() error {
	if c.App.Port <= 0 {
		return errors.New("app.port missing or invalid")
	}
	if c.Mongo.URI == "" {
		return errors.New("mongo.uri missing")
	}
	switch strings.ToUpper(c.JWT.Algorithm) {
	case "HS256":
		if c.JWT.HSSecret == "" {
			return errors.New("jwt.hs_secret required for HS256")
		}
	case "RS256":
		if c.JWT.PublicKeyPath == "" {
			return errors.New("jwt.public_key_path required for RS256")
		}
	default:
		return errors.New("invalid jwt.algorithm (use RS256 or HS256)")
	}
	if c.Reminder.Enabled && c.ReminderInterval <= 0 {
		return errors.New("reminder.interval_minutes must be positive")
	}
	return nil
}

func (c *Config) IsDevelopment() bool { return c.App.Env == "development" }
