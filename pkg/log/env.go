package log

import (
	"os"
	"strconv"
	"strings"

	"github.com/uber/jaeger-client-go/utils"
)

// DefaultEnvPrefix 为进程日志相关环境变量的前缀。
const DefaultEnvPrefix = "SHOUT_LOG"

// EnvConfig 是从环境变量读取的全局日志配置。
type EnvConfig struct {
	// Enabled 为 false 时所有输出被丢弃。
	Enabled bool
	Config  Config

	RateEnabled         bool
	RateCreditPerSecond float64
	RateMaxBalance      float64
}

// FromEnv 读取 <prefix>_* 环境变量：
//
//	ENABLE, LEVEL(info), FORMAT(text), STDOUT, FILE_DIR, FILE,
//	RATE_ENABLE, RATE_CREDIT_PER_SECOND(1), RATE_MAX_BALANCE(60)
func FromEnv(prefix string) EnvConfig {
	key := func(name string) string { return prefix + "_" + name }

	ec := EnvConfig{
		Enabled: getenvBool(key("ENABLE"), false),
		Config: Config{
			Level:  getenv(key("LEVEL"), "info"),
			Format: getenv(key("FORMAT"), "text"),
			Stdout: getenvBool(key("STDOUT"), false),
			File: FileLogConfig{
				RootPath: getenv(key("FILE_DIR"), ""),
				Filename: getenv(key("FILE"), ""),
			},
		},
		RateEnabled:         getenvBool(key("RATE_ENABLE"), false),
		RateCreditPerSecond: getenvFloat(key("RATE_CREDIT_PER_SECOND"), 1),
		RateMaxBalance:      getenvFloat(key("RATE_MAX_BALANCE"), 60),
	}
	if !ec.Enabled {
		ec.Config.Stdout = false
		ec.Config.File.Filename = ""
	}
	return ec
}

// InitFromEnv 按 FromEnv 的结果替换全局 Logger 与全局限流器。
func InitFromEnv(prefix string) error {
	ec := FromEnv(prefix)
	lg, props, err := InitLogger(&ec.Config)
	if err != nil {
		return err
	}
	ReplaceGlobals(lg, props)
	configureRateLimiter(ec)
	return nil
}

func configureRateLimiter(ec EnvConfig) {
	if !ec.RateEnabled {
		_globalR.Store(&rateLimiterBox{rl: nopRateLimiter{}})
		return
	}
	_globalR.Store(&rateLimiterBox{rl: utils.NewRateLimiter(ec.RateCreditPerSecond, ec.RateMaxBalance)})
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return def
	}
	return f
}
