package config

import (
	"time"

	"github.com/google/uuid"

	pkgconfig "github.com/weiawesome/autoschool-chat/pkg/config"
	"github.com/weiawesome/autoschool-chat/pkg/database"
	"github.com/weiawesome/autoschool-chat/pkg/pubsub"
)

type Config struct {
	Server    ServerConfig
	GRPC      GRPCConfig
	WebSocket WebSocketConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Relay     RelayConfig
	Kafka     KafkaConfig
	Auth      AuthConfig
	Store     StoreConfig
	Status    StatusConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type GRPCConfig struct {
	Enabled bool
	Host    string
	Port    int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	// RateLimit is inbound events per second per connection; 0 disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	TimeZone        string `mapstructure:"timezone"`
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

// ToDatabaseConfig maps the section onto pkg/database.Config.
func (d DatabaseConfig) ToDatabaseConfig() *database.Config {
	return &database.Config{
		Driver:          d.Driver,
		Host:            d.Host,
		Port:            d.Port,
		User:            d.User,
		Password:        d.Password,
		DBName:          d.DBName,
		SSLMode:         d.SSLMode,
		TimeZone:        d.TimeZone,
		FilePath:        d.FilePath,
		MaxIdleConns:    d.MaxIdleConns,
		MaxOpenConns:    d.MaxOpenConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		LogLevel:        d.LogLevel,
	}
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type CacheConfig struct {
	Enabled bool
	Prefix  string
	TTL     time.Duration `mapstructure:"ttl"`
}

type RelayConfig struct {
	Enabled    bool
	Driver     string // "redis", "kafka"
	InstanceID string `mapstructure:"instance_id"`
	GroupID    string `mapstructure:"group_id"`
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    string
	Topic      string
	Partitions int
}

type AuthConfig struct {
	Secret string
	Issuer string
	Leeway time.Duration
	// RequireToken rejects handshakes without a valid token. When false the
	// gateway accepts bare userId/id query parameters as the identity claim.
	RequireToken bool `mapstructure:"require_token"`
}

type StoreConfig struct {
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

type StatusConfig struct {
	// AllowRegression restores the permissive status overwrite on the
	// REST status endpoint.
	AllowRegression bool `mapstructure:"allow_regression"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// PubSubConfig builds the relay transport configuration. Kafka consumers
// get a group per instance so every gateway sees every room event.
func (c *Config) PubSubConfig() pubsub.Config {
	ps := pubsub.DefaultConfig()
	ps.Driver = c.Relay.Driver
	ps.Redis.Address = c.Redis.Address
	ps.Redis.Password = c.Redis.Password
	ps.Redis.DB = c.Redis.DB
	ps.Kafka.Brokers = c.Kafka.Brokers
	ps.Kafka.Partitions = c.Kafka.Partitions
	ps.Kafka.GroupID = c.Relay.GroupID + "-" + c.Relay.InstanceID
	return ps
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("grpc.enabled", true)
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50060)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.rate_limit", 20)
	v.SetDefault("websocket.rate_burst", 40)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "autoschool")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.timezone", "UTC")
	v.SetDefault("database.file_path", "./data/chat.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.prefix", "chat:conversations")
	v.SetDefault("cache.ttl", "30s")
	v.SetDefault("relay.enabled", false)
	v.SetDefault("relay.driver", "redis")
	v.SetDefault("relay.instance_id", "")
	v.SetDefault("relay.group_id", "chat-relay")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "chat-message-events")
	v.SetDefault("kafka.partitions", 8)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.leeway", "30s")
	v.SetDefault("auth.require_token", true)
	v.SetDefault("store.op_timeout", "5s")
	v.SetDefault("status.allow_regression", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("grpc.port", "GRPC_PORT")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("database.file_path", "DB_FILE_PATH")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("cache.enabled", "CACHE_ENABLED")
	v.BindEnv("relay.enabled", "RELAY_ENABLED")
	v.BindEnv("relay.driver", "RELAY_DRIVER")
	v.BindEnv("relay.instance_id", "INSTANCE_ID")
	v.BindEnv("kafka.enabled", "KAFKA_ENABLED")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_TOPIC")
	v.BindEnv("auth.secret", "JWT_SECRET")
	v.BindEnv("auth.issuer", "JWT_ISSUER")
	v.BindEnv("auth.require_token", "AUTH_REQUIRE_TOKEN")
	v.BindEnv("status.allow_regression", "STATUS_ALLOW_REGRESSION")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = pkgconfig.Duration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = pkgconfig.Duration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = pkgconfig.Duration(v, "websocket.write_wait", 10*time.Second)
	cfg.Cache.TTL = pkgconfig.Duration(v, "cache.ttl", 30*time.Second)
	cfg.Auth.Leeway = pkgconfig.Duration(v, "auth.leeway", 30*time.Second)
	cfg.Store.OpTimeout = pkgconfig.Duration(v, "store.op_timeout", 5*time.Second)

	// The relay drops its own broadcasts by instance id, so it must be unique.
	if cfg.Relay.InstanceID == "" {
		cfg.Relay.InstanceID = uuid.New().String()
	}

	return &cfg, nil
}
