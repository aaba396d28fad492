package config

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	mu sync.RWMutex `yaml:"-"`

	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Web       WebConfig       `yaml:"web"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Messaging MessagingConfig `yaml:"messaging"`
	Geocode   GeocodeConfig   `yaml:"geocode"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
	CORSOrigin    string `yaml:"cors_origin"`
}

type RealtimeConfig struct {
	// SendBuffer is the per-session outbound queue depth. A session whose
	// buffer is full drops events rather than blocking the dispatcher.
	SendBuffer   int           `yaml:"send_buffer"`
	PingInterval time.Duration `yaml:"ping_interval"`
	PongTimeout  time.Duration `yaml:"pong_timeout"`
	// SSEFallback enables the polling-upgrade transport alongside websockets.
	SSEFallback bool `yaml:"sse_fallback"`
}

type MessagingConfig struct {
	Kafka       KafkaConfig `yaml:"kafka"`
	MirrorTopic string      `yaml:"mirror_topic"`
	MQTT        MQTTConfig  `yaml:"mqtt"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	// IngestTopic uses a single-level wildcard for the driver id,
	// e.g. fleet/+/location.
	IngestTopic string `yaml:"ingest_topic"`
}

type GeocodeConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "trackcore.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "trackcore",
				User:     "trackcore",
				Password: "",
				SSLMode:  "disable",
			},
		},
		Redis: RedisConfig{
			Address:  "localhost:6379",
			Password: "",
			DB:       0,
		},
		Web: WebConfig{
			Host:          "0.0.0.0",
			Port:          8090,
			SessionSecret: "change-me-in-production",
			CORSOrigin:    "*",
		},
		Realtime: RealtimeConfig{
			SendBuffer:   64,
			PingInterval: 25 * time.Second,
			PongTimeout:  60 * time.Second,
			SSEFallback:  true,
		},
		Messaging: MessagingConfig{
			Kafka: KafkaConfig{
				Brokers: nil,
				GroupID: "trackcore",
			},
			MirrorTopic: "trackcore.events",
			MQTT: MQTTConfig{
				Broker:      "",
				Port:        1883,
				ClientID:    "trackcore",
				IngestTopic: "fleet/+/location",
			},
		},
		Geocode: GeocodeConfig{
			BaseURL: "",
			Timeout: 10 * time.Second,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Lock()   { c.mu.Lock() }
func (c *Config) Unlock() { c.mu.Unlock() }
