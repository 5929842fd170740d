package httpapi

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lk2023060901/shout-live-go/internal/json"
	"github.com/lk2023060901/shout-live-go/internal/live"
	"github.com/lk2023060901/shout-live-go/pkg/log"
	"github.com/lk2023060901/shout-live-go/pkg/util/merr"
)

const (
	defaultSessionCookie     = "Session"
	defaultWebSocketPath     = "/ws"
	defaultMaxBroadcastBytes = 64 * 1024
)

// LiveService 是 HTTP 层依赖的实时服务能力。
type LiveService interface {
	Broadcast(ctx context.Context, text string) int
	Stats() live.Stats
}

// Config 描述 HTTP 路由配置。
type Config struct {
	SessionCookie     string
	WebSocketPath     string
	MaxBroadcastBytes int64
}

func (c *Config) normalize() {
	if c.SessionCookie == "" {
		c.SessionCookie = defaultSessionCookie
	}
	if c.WebSocketPath == "" {
		c.WebSocketPath = defaultWebSocketPath
	}
	if c.MaxBroadcastBytes <= 0 {
		c.MaxBroadcastBytes = defaultMaxBroadcastBytes
	}
}

// Handler 持有 HTTP 路由依赖。
type Handler struct {
	log.Binder

	cfg     Config
	svc     LiveService
	ws      http.Handler
	metrics http.Handler
}

// NewHandler 创建 Handler。ws 为 WebSocket 接入器，metrics 为 /metrics 处理器，可为 nil。
func NewHandler(cfg Config, svc LiveService, ws http.Handler, metrics http.Handler) (*Handler, error) {
	if svc == nil {
		return nil, merr.WrapErrParameterMissing("live service")
	}
	if ws == nil {
		return nil, merr.WrapErrParameterMissing("websocket handler")
	}
	cfg.normalize()
	return &Handler{cfg: cfg, svc: svc, ws: ws, metrics: metrics}, nil
}

// Router 构造完整的 chi 路由。
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(h.Logger()))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(SessionCookie(h.cfg.SessionCookie))
		h.RegisterRoutes(r)
	})
	return r
}

// RegisterRoutes 注册需要会话标识的路由。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.home)
	r.Get(h.cfg.WebSocketPath, h.ws.ServeHTTP)
	r.Post("/broadcast", h.broadcast)
	r.Get("/stats", h.stats)
}

func (h *Handler) home(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "HELLO WORLD!")
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "OK")
}

// broadcast 把请求体原样广播给所有在线连接，扇出完成后只回复一次 200 OK。
func (h *Handler) broadcast(w http.ResponseWriter, r *http.Request) {
	ctx, span := log.NewIntentContext(r.Context(), "httpapi", "broadcast")
	defer span.End()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBroadcastBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = merr.WrapErrParameterTooLarge("body", "limit "+strconv.FormatInt(tooLarge.Limit, 10))
			log.Ctx(ctx).Debug("broadcast body too large", zap.Error(err))
			writeText(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		log.Ctx(ctx).Debug("read broadcast body failed", zap.Error(err))
		writeText(w, http.StatusBadRequest, "Bad request")
		return
	}

	delivered := h.svc.Broadcast(ctx, string(body))
	log.Ctx(ctx).Debug("broadcast done", zap.Int("delivered", delivered))
	writeText(w, http.StatusOK, "OK")
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(h.svc.Stats()); err != nil {
		log.Ctx(r.Context()).Warn("encode stats failed", zap.Error(err))
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
