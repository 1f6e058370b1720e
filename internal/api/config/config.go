package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Cfg is the process-wide configuration.
var Cfg *Config

// LoadConfig reads configs/config.yaml (HUDDLE_* env vars override) into Cfg.
func LoadConfig() error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.SetEnvPrefix("huddle")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	Cfg = &cfg

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("store.driver", "mongo")
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("mongo.slow_threshold", "200ms")
	v.SetDefault("presence.driver", "redis")
	v.SetDefault("presence.heartbeat", "5s")
	v.SetDefault("presence.lease_ttl", "15s")
	v.SetDefault("jwt.issuer", "huddle")
	v.SetDefault("kafka.notification_topic", "huddle.notifications")
	v.SetDefault("minio.presign_expiry", "1h")

	d := DefaultChat()
	v.SetDefault("chat.window_size", d.WindowSize)
	v.SetDefault("chat.window_step", d.WindowStep)
	v.SetDefault("chat.notification_freshness", d.NotificationFreshness)
	v.SetDefault("chat.nudge_freshness", d.NudgeFreshness)
	v.SetDefault("chat.typing_idle", d.TypingIdle)
	v.SetDefault("chat.typing_stale", d.TypingStale)
	v.SetDefault("chat.shake_duration", d.ShakeDuration)
	v.SetDefault("chat.edit_window", d.EditWindow)
	v.SetDefault("chat.preview_length", d.PreviewLength)
	v.SetDefault("chat.typing_sweep", "@every 1s")
	v.SetDefault("chat.presence_sweep", "@every 5s")
}
