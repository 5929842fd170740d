package application

import (
	"time"

	zviper "github.com/lk2023060901/shout-live-go/pkg/util/viper"
)

const (
	defaultConfigPath = "./config.yaml"
	configPathEnv     = "SHOUT_CONFIG_FILE_PATH"
	envPrefix         = "SHOUT"
	portEnv           = "PORT"
)

// Config 是服务的完整配置。
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Session   SessionConfig   `mapstructure:"session"`
	Live      LiveConfig      `mapstructure:"live"`
}

type HTTPConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read-header-timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown-timeout"`
	MaxBroadcastBytes int64         `mapstructure:"max-broadcast-bytes"`
}

type WebSocketConfig struct {
	Path           string        `mapstructure:"path"`
	PingPeriod     time.Duration `mapstructure:"ping-period"`
	PongTimeout    time.Duration `mapstructure:"pong-timeout"`
	WriteTimeout   time.Duration `mapstructure:"write-timeout"`
	MaxMessageSize int64         `mapstructure:"max-message-size"`
	SendQueueSize  int           `mapstructure:"send-queue-size"`
	AllowedOrigins []string      `mapstructure:"allowed-origins"`
}

type SessionConfig struct {
	CookieName string `mapstructure:"cookie-name"`
}

type LiveConfig struct {
	FanoutPoolSize int `mapstructure:"fanout-pool-size"`
}

// setDefaults 写入所有配置项的缺省值；环境变量覆盖只对设置过缺省值的 key 生效。
func setDefaults(cfg *zviper.Config) {
	cfg.SetDefault("http.addr", ":8080")
	cfg.SetDefault("http.read-header-timeout", 5*time.Second)
	cfg.SetDefault("http.shutdown-timeout", 10*time.Second)
	cfg.SetDefault("http.max-broadcast-bytes", 64*1024)

	cfg.SetDefault("websocket.path", "/ws")
	cfg.SetDefault("websocket.ping-period", 15*time.Second)
	cfg.SetDefault("websocket.pong-timeout", 15*time.Second)
	cfg.SetDefault("websocket.write-timeout", 10*time.Second)
	cfg.SetDefault("websocket.max-message-size", 64*1024)
	cfg.SetDefault("websocket.send-queue-size", 256)
	cfg.SetDefault("websocket.allowed-origins", []string{})

	cfg.SetDefault("session.cookie-name", "Session")

	cfg.SetDefault("live.fanout-pool-size", 16)
}
