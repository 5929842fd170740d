package acceptor

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"

	network "github.com/lk2023060901/shout-live-go/internal/network"
	"github.com/lk2023060901/shout-live-go/internal/network/session"
	"github.com/lk2023060901/shout-live-go/pkg/log"
	"github.com/lk2023060901/shout-live-go/pkg/util/merr"
)

// WSAcceptor 是 Acceptor 接口基于 gorilla/websocket 的实现。
//
// 设计目标：
//   - 对外只暴露 Acceptor 接口和 Handler 回调，不绑定具体业务逻辑；
//   - 每个连接的读循环直接运行在 net/http 为该请求分配的 goroutine 中，
//     保证同一连接上 Handler 串行执行；
//   - 无论连接因何结束，OnClosed 都只在读协程退出时调用一次。
type WSAcceptor struct {
	log.Binder

	cfg      Config
	upgrader *websocket.Upgrader
	handler  Handler

	ids      session.Uint64IDGenerator
	sessions session.SessionManager

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// 确保 WSAcceptor 实现了 Acceptor 接口。
var _ Acceptor = (*WSAcceptor)(nil)

// NewWSAcceptor 创建一个 WebSocket 接入器。
func NewWSAcceptor(cfg Config, h Handler) (*WSAcceptor, error) {
	if h == nil {
		return nil, merr.WrapErrParameterMissing("handler")
	}
	if cfg.Identity == nil {
		return nil, merr.WrapErrParameterMissing("identity")
	}

	upgrader := cfg.Upgrader
	if upgrader == nil {
		upgrader = &websocket.Upgrader{}
	}
	if upgrader.CheckOrigin == nil {
		upgrader.CheckOrigin = checkOrigin(cfg.AllowedOrigins)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WSAcceptor{
		cfg:      cfg,
		upgrader: upgrader,
		handler:  h,
		sessions: session.NewBaseSessionManager(),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// ServeHTTP 实现 http.Handler，处理单个连接的完整生命周期。
//
// 流程：
//  1. 解析会话标识并完成 WebSocket 升级（上游写入的 Set-Cookie 会随升级响应一起下发）；
//  2. 无会话标识时以 ClosePolicyViolation 关闭连接；
//  3. 调用 Handler.OnConnected，随后在当前协程中循环读取文本并回调 Handler.OnMessage；
//  4. 读失败或连接被关闭后，调用 Handler.OnClosed。
func (a *WSAcceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	if a.closing {
		a.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()
	defer a.wg.Done()

	sid := a.cfg.Identity(r)

	var respHeader http.Header
	if cookies := w.Header().Values("Set-Cookie"); len(cookies) > 0 {
		respHeader = http.Header{"Set-Cookie": cookies}
	}
	conn, err := a.upgrader.Upgrade(w, r, respHeader)
	if err != nil {
		// Upgrade 失败时已经向客户端写出了 HTTP 错误响应。
		a.handler.OnError(nil, network.StageHandshake, network.StageHandshake.Mark(err))
		return
	}

	connID := a.ids.Next()
	// 会话 ctx 携带连接字段，下游通过 log.Ctx(sess.Context()) 输出时自动带上。
	sess := session.NewWSSession(log.WithSession(a.ctx, sid, connID), connID, sid, conn, a.cfg.Session)
	logger := a.Logger().With(log.FieldConnID(connID), log.FieldSessionID(sid))

	if sid == "" {
		a.handler.OnError(sess, network.StageIdentity, merr.WrapErrSessionMissing(r.RemoteAddr))
		_ = sess.Close(session.ClosePolicyViolation)
		return
	}

	if err := a.sessions.Register(sess); err != nil {
		logger.Warn("register connection failed", zap.Error(err))
		_ = sess.Close(session.CloseInternalError)
		return
	}
	defer a.sessions.Unregister(sess.ID())

	// 在 Close 开始之后才完成注册的连接不会出现在 CloseAll 的快照中，这里补一次关闭。
	if a.ctx.Err() != nil {
		_ = sess.Close(session.CloseGoingAway)
		return
	}

	if err := a.handler.OnConnected(sess); err != nil {
		a.handler.OnError(sess, network.StageIdentity, err)
		_ = sess.Close(session.CloseInternalError)
		return
	}
	logger.Debug("connection opened", zap.Stringer("remote", sess.RemoteAddr()))

	var closeErr error
	defer func() {
		_ = sess.Close(session.CloseNormal)
		a.handler.OnClosed(sess, closeErr)
		logger.Debug("connection closed", zap.Error(closeErr))
	}()

	for {
		text, err := sess.Next()
		if err != nil {
			if !sess.Closed() && !isExpectedClose(err) {
				closeErr = network.StageRecv.Mark(err)
				a.handler.OnError(sess, network.StageRecv, closeErr)
			}
			return
		}
		a.handler.OnMessage(sess, text)
	}
}

// Close 实现 Acceptor.Close。
func (a *WSAcceptor) Close() error {
	a.mu.Lock()
	if a.closing {
		a.mu.Unlock()
		return nil
	}
	a.closing = true
	a.mu.Unlock()

	a.cancel()
	n := a.sessions.CloseAll(session.CloseGoingAway)
	a.wg.Wait()
	a.Logger().Info("acceptor closed", zap.Int("closedConnections", n))
	return nil
}

// Sessions 实现 Acceptor.Sessions。
func (a *WSAcceptor) Sessions() []session.Session {
	return a.sessions.Snapshot()
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}

// checkOrigin 根据白名单构造 Upgrader.CheckOrigin；白名单为空时接受任意来源。
func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	hosts := lo.Map(allowed, func(h string, _ int) string { return strings.ToLower(h) })
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return lo.Contains(hosts, strings.ToLower(u.Host))
	}
}
