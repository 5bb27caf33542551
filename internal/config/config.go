package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/config"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/database"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/log"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/pubsub"
)

// Backend presets. A preset only fills the database and pubsub drivers
// that are not set explicitly.
const (
	BackendLocal  = "local"
	BackendHosted = "hosted"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Backend   string
	Database  DatabaseConfig
	PubSub    pubsub.Config `mapstructure:"pubsub"`
	Redis     RedisConfig
	Cache     CacheConfig
	Auth      AuthConfig
	Feed      FeedConfig
	Log       log.Config
}

type ServerConfig struct {
	Host string
	Port int
	// URL is where the CLI reaches a running server. Unused by the server.
	URL string `mapstructure:"url"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

// Database converts to the pkg/database connection config.
func (c DatabaseConfig) Database() *database.Config {
	return &database.Config{
		Driver:          c.Driver,
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		DBName:          c.DBName,
		SSLMode:         c.SSLMode,
		FilePath:        c.FilePath,
		MaxIdleConns:    c.MaxIdleConns,
		MaxOpenConns:    c.MaxOpenConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		LogLevel:        c.LogLevel,
	}
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Prefix  string        `mapstructure:"prefix"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type AuthConfig struct {
	Secret     string        `mapstructure:"secret"`
	Issuer     string        `mapstructure:"issuer"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
}

type FeedConfig struct {
	ReconnectDelay     time.Duration `mapstructure:"reconnect_delay"`
	StatusPollInterval time.Duration `mapstructure:"status_poll_interval"`
	// RefreshRate caps conversation-list reloads per second per user.
	RefreshRate int `mapstructure:"refresh_rate"`
}

// Load reads the configuration from path (see pkg/config.LoadFile) plus
// environment overrides.
func Load(path string) (*Config, error) {
	v, err := pkgconfig.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper applies defaults and env bindings to v and decodes it.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.applyBackend(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.url", "http://localhost:8080")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("backend", BackendLocal)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "marketchat")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "./data/marketchat.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("pubsub.buffer_size", 256)
	v.SetDefault("pubsub.redis.address", "localhost:6379")
	v.SetDefault("pubsub.redis.pool_size", 10)
	v.SetDefault("pubsub.redis.read_timeout", "3s")
	v.SetDefault("pubsub.redis.write_timeout", "3s")
	v.SetDefault("pubsub.kafka.brokers", "localhost:9092")
	v.SetDefault("pubsub.kafka.group_id", "marketchat")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.prefix", "marketchat")
	v.SetDefault("cache.ttl", "30s")
	v.SetDefault("auth.issuer", "marketchat")
	v.SetDefault("auth.access_ttl", "24h")
	v.SetDefault("auth.refresh_ttl", "168h")
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("feed.reconnect_delay", "3s")
	v.SetDefault("feed.status_poll_interval", "5s")
	v.SetDefault("feed.refresh_rate", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "marketchat")
}

func bindEnv(v *viper.Viper) {
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.url", "MARKETCHAT_URL")
	v.BindEnv("backend", "BACKEND")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("database.file_path", "DB_FILE_PATH")
	v.BindEnv("pubsub.driver", "PUBSUB_DRIVER")
	v.BindEnv("pubsub.redis.address", "PUBSUB_REDIS_ADDRESS")
	v.BindEnv("pubsub.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("cache.enabled", "CACHE_ENABLED")
	v.BindEnv("auth.secret", "JWT_SECRET")
	v.BindEnv("log.level", "LOG_LEVEL")
}

// applyBackend fills the drivers left empty from the backend preset.
func (c *Config) applyBackend() error {
	var dbDriver, psDriver string
	switch c.Backend {
	case BackendLocal, "":
		c.Backend = BackendLocal
		dbDriver, psDriver = database.DriverSQLite, pubsub.DriverMemory
	case BackendHosted:
		dbDriver, psDriver = database.DriverPostgres, pubsub.DriverRedis
	default:
		return fmt.Errorf("unsupported backend: %s", c.Backend)
	}

	if c.Database.Driver == "" {
		c.Database.Driver = dbDriver
	}
	if c.PubSub.Driver == "" {
		c.PubSub.Driver = psDriver
	}
	return nil
}
