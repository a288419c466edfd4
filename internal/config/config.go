package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/ymliu/convo/pkg/config"
	"github.com/ymliu/convo/pkg/database"
	"github.com/ymliu/convo/pkg/log"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Database  database.Config
	Redis     RedisConfig
	JWT       JWTConfig
	History   HistoryConfig
	Log       log.Config
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
	Expiry time.Duration
}

type HistoryConfig struct {
	ReplayDepth int           `mapstructure:"replay_depth"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	CachePrefix string        `mapstructure:"cache_prefix"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "convo.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "convo")
	v.SetDefault("database.dbname", "convo")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.issuer", "convo")
	v.SetDefault("jwt.expiry", "60m")
	v.SetDefault("history.replay_depth", 10)
	v.SetDefault("history.cache_ttl", "30s")
	v.SetDefault("history.cache_prefix", "convo:history")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "convo")

	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("jwt.secret", "SECRET_KEY")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.JWT.Expiry = parseDuration(v, "jwt.expiry", 60*time.Minute)
	cfg.History.CacheTTL = parseDuration(v, "history.cache_ttl", 30*time.Second)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return defaultVal
	}
	return d
}
