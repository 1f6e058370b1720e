package config

import "time"

// Config is the root of configs/config.yaml.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Logstash LogstashConfig `mapstructure:"logstash"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Presence PresenceConfig `mapstructure:"presence"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Chat     ChatConfig     `mapstructure:"chat"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type LogstashConfig struct {
	Address string `mapstructure:"address"`
	Index   string `mapstructure:"index"`
	Token   string `mapstructure:"token"`
}

// StoreConfig selects the document store: "mongo" or "memory".
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MongoConfig struct {
	URL           string        `mapstructure:"url"`
	Database      string        `mapstructure:"database"`
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
}

// PresenceConfig selects the presence backend: "redis" or "memory".
type PresenceConfig struct {
	Driver    string        `mapstructure:"driver"`
	Heartbeat time.Duration `mapstructure:"heartbeat"`
	LeaseTTL  time.Duration `mapstructure:"lease_ttl"`
}

type KafkaConfig struct {
	Enable            bool       `mapstructure:"enable"`
	Brokers           []string   `mapstructure:"brokers"`
	Sasl              SaslConfig `mapstructure:"sasl"`
	NotificationTopic string     `mapstructure:"notification_topic"`
}

type SaslConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// MinIOConfig points at the attachment object store.
type MinIOConfig struct {
	Enable           bool          `mapstructure:"enable"`
	InternalEndpoint string        `mapstructure:"internal_endpoint"`
	ExternalEndpoint string        `mapstructure:"external_endpoint"`
	AccessKey        string        `mapstructure:"access_key"`
	SecretKey        string        `mapstructure:"secret_key"`
	AttachmentBucket string        `mapstructure:"attachment_bucket"`
	InternalUseSSL   bool          `mapstructure:"internal_use_ssl"`
	UsePublicLink    bool          `mapstructure:"use_public_link"`
	PresignExpiry    time.Duration `mapstructure:"presign_expiry"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// ChatConfig holds the sync tunables. Freshness windows guard against
// replaying old events when a subscription is re-established.
type ChatConfig struct {
	WindowSize            int           `mapstructure:"window_size"`
	WindowStep            int           `mapstructure:"window_step"`
	NotificationFreshness time.Duration `mapstructure:"notification_freshness"`
	NudgeFreshness        time.Duration `mapstructure:"nudge_freshness"`
	TypingIdle            time.Duration `mapstructure:"typing_idle"`
	TypingStale           time.Duration `mapstructure:"typing_stale"`
	ShakeDuration         time.Duration `mapstructure:"shake_duration"`
	EditWindow            time.Duration `mapstructure:"edit_window"`
	PreviewLength         int           `mapstructure:"preview_length"`
	TypingSweep           string        `mapstructure:"typing_sweep"`
	PresenceSweep         string        `mapstructure:"presence_sweep"`
}

func DefaultChat() ChatConfig {
	return ChatConfig{
		WindowSize:            20,
		WindowStep:            20,
		NotificationFreshness: 3 * time.Second,
		NudgeFreshness:        5 * time.Second,
		TypingIdle:            2 * time.Second,
		TypingStale:           5 * time.Second,
		ShakeDuration:         800 * time.Millisecond,
		EditWindow:            15 * time.Minute,
		PreviewLength:         50,
		TypingSweep:           "@every 1s",
		PresenceSweep:         "@every 5s",
	}
}
