package application

import (
	"context"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/shout-live-go/internal/httpapi"
	"github.com/lk2023060901/shout-live-go/internal/live"
	"github.com/lk2023060901/shout-live-go/internal/network/acceptor"
	"github.com/lk2023060901/shout-live-go/internal/network/session"
	zlog "github.com/lk2023060901/shout-live-go/pkg/log"
	"github.com/lk2023060901/shout-live-go/pkg/metrics"
	zviper "github.com/lk2023060901/shout-live-go/pkg/util/viper"
)

// Application 是实时服务的运行时容器，负责配置、日志、指标以及各组件的装配与生命周期。
type Application struct {
	args []string

	cfg      *zviper.Config
	settings Config
	loggers  map[string]*zlog.MLogger

	registry *prometheus.Registry
	live     *live.Server
	acceptor *acceptor.WSAcceptor
	handler  http.Handler
}

// Option 配置 Application。
type Option func(*Application)

// WithArgs 替换命令行参数（不含程序名），缺省使用 os.Args[1:]。
func WithArgs(args []string) Option {
	return func(a *Application) {
		a.args = args
	}
}

// New creates a new Application instance.
func New(opts ...Option) *Application {
	a := &Application{args: os.Args[1:]}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Setup 加载配置并装配所有组件，但不监听端口。
//
// 配置文件路径优先级（后者覆盖前者）：
//  1. 缺省：./config.yaml（文件不存在时使用内置缺省值）
//  2. 环境变量：SHOUT_CONFIG_FILE_PATH
//  3. 命令行：--config <path> 或 --config=<path>
func (a *Application) Setup() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := a.cfg.Unmarshal(&a.settings); err != nil {
		return errors.Wrap(err, "unmarshal config")
	}
	if port := strings.TrimSpace(os.Getenv(portEnv)); port != "" {
		a.settings.HTTP.Addr = ":" + port
	}

	if err := a.initLogging(); err != nil {
		return err
	}
	a.initMetrics()
	return a.initServices()
}

// Run 完成装配并在配置的地址上提供服务，直到 ctx 取消。
func (a *Application) Run(ctx context.Context) error {
	if err := a.Setup(); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", a.settings.HTTP.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", a.settings.HTTP.Addr)
	}
	return a.Serve(ctx, ln)
}

// Serve 在给定 listener 上提供服务，ctx 取消后优雅退出。
//
// 退出顺序：停止接受新请求并等待普通请求结束，然后以 GoingAway 关闭所有 WebSocket 连接，
// 最后释放广播协程池。
func (a *Application) Serve(ctx context.Context, ln net.Listener) error {
	if a.handler == nil {
		return errors.New("application is not set up")
	}
	logger := a.Logger("http")

	server := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: a.settings.HTTP.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.settings.HTTP.ShutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		_ = a.acceptor.Close()
		a.live.Close()
		logger.Info("http server stopped", zap.Error(err))
		_ = zlog.Sync()
		return err
	})
	return g.Wait()
}

// Config returns the loaded configuration, if any.
func (a *Application) Config() *zviper.Config {
	return a.cfg
}

// Settings 返回反序列化后的配置。
func (a *Application) Settings() Config {
	return a.settings
}

// Handler 返回完整的 HTTP 处理器，Setup 之前为 nil。
func (a *Application) Handler() http.Handler {
	return a.handler
}

// Logger returns a named logger created from configuration.
// If the name is unknown, it falls back to the global logger.
func (a *Application) Logger(name string) *zlog.MLogger {
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return zlog.With(zlog.FieldModule(name))
}

// loadConfig resolves config file path and loads it via viper wrapper.
func (a *Application) loadConfig() (*zviper.Config, error) {
	configPath := defaultConfigPath
	explicit := false

	if envPath := os.Getenv(configPathEnv); envPath != "" {
		configPath = envPath
		explicit = true
	}

	args := a.args
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return nil, errors.New("missing value after --config")
			}
			configPath = args[i+1]
			explicit = true
			i++
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			if val := strings.TrimPrefix(arg, "--config="); val != "" {
				configPath = val
				explicit = true
			}
			continue
		}
	}

	cfg := zviper.New()
	setDefaults(cfg)
	cfg.AutomaticEnv(envPrefix)

	if !explicit {
		if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
	}
	if err := cfg.LoadFile(configPath); err != nil {
		return nil, errors.Wrapf(err, "failed to load config file %q", configPath)
	}
	return cfg, nil
}

// initLogging initializes global and module-level loggers.
func (a *Application) initLogging() error {
	if err := zlog.InitFromEnv(zlog.DefaultEnvPrefix); err != nil {
		return errors.Wrap(err, "init global logger from env")
	}
	return a.initModuleLoggersFromConfig()
}

// initModuleLoggersFromConfig creates named loggers from YAML config under "logging" key.
//
// Example:
//
//	logging:
//	  live:
//	    level: debug
//	    stdout: true
//	    file:
//	      rootpath: ./logs
//	      filename: live.log
func (a *Application) initModuleLoggersFromConfig() error {
	if a.cfg == nil {
		return nil
	}

	raw := make(map[string]zlog.Config)
	if err := a.cfg.UnmarshalKey("logging", &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*zlog.MLogger, len(raw))
	for name, lc := range raw {
		cfgCopy := lc
		logger, _, err := zlog.InitLogger(&cfgCopy)
		if err != nil {
			return errors.Wrapf(err, "init module logger %q", name)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger.With(zlog.FieldModule(name))}
	}
	return nil
}

func (a *Application) initMetrics() {
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.Register(a.registry)
}

func (a *Application) initServices() error {
	s := a.settings

	liveServer, err := live.NewServer(live.WithFanoutPoolSize(s.Live.FanoutPoolSize))
	if err != nil {
		return err
	}
	liveServer.SetLogger(a.Logger("live"))

	ws, err := acceptor.NewWSAcceptor(acceptor.Config{
		Session: session.WSConfig{
			SendQueueSize:  s.WebSocket.SendQueueSize,
			PingPeriod:     s.WebSocket.PingPeriod,
			PongTimeout:    s.WebSocket.PongTimeout,
			WriteTimeout:   s.WebSocket.WriteTimeout,
			MaxMessageSize: s.WebSocket.MaxMessageSize,
		},
		AllowedOrigins: s.WebSocket.AllowedOrigins,
		Identity:       httpapi.SessionIDFromRequest,
	}, liveServer)
	if err != nil {
		liveServer.Close()
		return err
	}
	ws.SetLogger(a.Logger("acceptor"))

	h, err := httpapi.NewHandler(httpapi.Config{
		SessionCookie:     s.Session.CookieName,
		WebSocketPath:     s.WebSocket.Path,
		MaxBroadcastBytes: s.HTTP.MaxBroadcastBytes,
	}, liveServer, ws, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	if err != nil {
		liveServer.Close()
		return err
	}
	h.SetLogger(a.Logger("http"))

	a.live = liveServer
	a.acceptor = ws
	a.handler = h.Router()
	return nil
}
