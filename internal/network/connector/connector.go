package connector

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"

	network "github.com/lk2023060901/shout-live-go/internal/network"
	"github.com/lk2023060901/shout-live-go/pkg/util/merr"
	"github.com/lk2023060901/shout-live-go/pkg/util/retry"
)

// Config 描述客户端连接的基础配置。
type Config struct {
	SendQueueSize int
	WriteTimeout  time.Duration

	// CookieName 为会话 Cookie 的名字；服务器在升级响应中下发的会话标识会被记录下来。
	CookieName string

	// Retry 为拨号失败时的重试策略，为空时只尝试一次。
	Retry []retry.Option

	// Dialer 允许调用方自定义 gorilla/websocket 的拨号行为，为 nil 时使用 websocket.DefaultDialer。
	Dialer *websocket.Dialer
}

func defaultConfig() Config {
	return Config{
		SendQueueSize: 256,
		CookieName:    "Session",
	}
}

// ClientConn 抽象了客户端侧的一条文本连接。
type ClientConn interface {
	Context() context.Context
	RemoteAddr() net.Addr
	LocalAddr() net.Addr

	// SessionID 返回本连接关联的会话标识（来自请求或服务器下发的 Cookie），未知时为空。
	SessionID() string

	Send(text string) error
	Close() error
}

// Handler 描述客户端在各阶段的回调能力。
type Handler interface {
	OnMessage(conn ClientConn, text string)
	OnClosed(conn ClientConn, err error)
	OnError(conn ClientConn, stage network.Stage, err error)
}

// Connector 抽象了客户端的拨号器。
type Connector interface {
	Dial(ctx context.Context, urlStr string, h Handler, header http.Header) (ClientConn, error)
}

// wsConnector 是基于 gorilla/websocket 的默认 Connector 实现。
type wsConnector struct {
	cfg Config
}

// NewWSConnector 创建一个基于 WebSocket 的 Connector。
func NewWSConnector(cfg Config) Connector {
	def := defaultConfig()
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}
	if cfg.CookieName == "" {
		cfg.CookieName = def.CookieName
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if len(cfg.Retry) == 0 {
		cfg.Retry = []retry.Option{retry.Attempts(1)}
	}
	return &wsConnector{cfg: cfg}
}

// Dial 建立连接。握手被服务器以 4xx 拒绝时不再重试。
func (c *wsConnector) Dial(ctx context.Context, urlStr string, h Handler, header http.Header) (ClientConn, error) {
	if h == nil {
		return nil, merr.WrapErrParameterMissing("handler")
	}

	var (
		conn *websocket.Conn
		resp *http.Response
	)
	err := retry.Do(ctx, func() error {
		var err error
		conn, resp, err = c.cfg.Dialer.DialContext(ctx, urlStr, header)
		if err == nil {
			return nil
		}
		err = network.StageHandshake.Mark(err)
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return retry.Unrecoverable(err)
		}
		return err
	}, c.cfg.Retry...)
	if err != nil {
		h.OnError(nil, network.StageHandshake, err)
		return nil, err
	}

	connCtx, cancel := context.WithCancel(ctx)
	cc := newWSClientConn(connCtx, cancel, conn, c.cfg, h, c.sessionID(header, resp))
	return cc, nil
}

func (c *wsConnector) sessionID(header http.Header, resp *http.Response) string {
	if resp != nil {
		for _, ck := range resp.Cookies() {
			if ck.Name == c.cfg.CookieName {
				return ck.Value
			}
		}
	}
	req := http.Request{Header: header}
	if ck, err := req.Cookie(c.cfg.CookieName); err == nil {
		return ck.Value
	}
	return ""
}

// wsClientConn 是基于 WebSocket 的 ClientConn 默认实现。
type wsClientConn struct {
	conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	cfg       Config
	h         Handler
	sessionID string

	remoteAddr net.Addr
	localAddr  net.Addr

	sendQueue chan string

	closed    atomic.Bool
	closeOnce sync.Once
}

func newWSClientConn(
	ctx context.Context,
	cancel context.CancelFunc,
	conn *websocket.Conn,
	cfg Config,
	h Handler,
	sessionID string,
) *wsClientConn {
	c := &wsClientConn{
		conn:       conn,
		ctx:        ctx,
		cancel:     cancel,
		cfg:        cfg,
		h:          h,
		sessionID:  sessionID,
		remoteAddr: conn.RemoteAddr(),
		localAddr:  conn.LocalAddr(),
		sendQueue:  make(chan string, cfg.SendQueueSize),
	}

	go c.recvLoop()
	go c.sendLoop()

	return c
}

// ClientConn 接口实现。

func (c *wsClientConn) Context() context.Context { return c.ctx }
func (c *wsClientConn) RemoteAddr() net.Addr     { return c.remoteAddr }
func (c *wsClientConn) LocalAddr() net.Addr      { return c.localAddr }
func (c *wsClientConn) SessionID() string        { return c.sessionID }
func (c *wsClientConn) Close() error             { return c.close(nil) }

func (c *wsClientConn) Send(text string) error {
	if c.closed.Load() {
		return merr.WrapErrSessionClosed(0)
	}
	select {
	case <-c.ctx.Done():
		return merr.WrapErrSessionClosed(0)
	case c.sendQueue <- text:
		return nil
	}
}

func (c *wsClientConn) close(cause error) error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.conn.Close()
		c.h.OnClosed(c, cause)
	})
	return err
}

// recvLoop 持续读取文本消息并回调 Handler.OnMessage。
func (c *wsClientConn) recvLoop() {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = network.StageRecv.Mark(err)
				c.h.OnError(c, network.StageRecv, err)
				_ = c.close(err)
				return
			}
			_ = c.close(nil)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		c.h.OnMessage(c, string(data))
	}
}

// sendLoop 从 sendQueue 读取文本并写入 WebSocket。
func (c *wsClientConn) sendLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case text := <-c.sendQueue:
			if c.cfg.WriteTimeout > 0 {
				_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
				err = network.StageSend.Mark(err)
				c.h.OnError(c, network.StageSend, err)
				_ = c.close(err)
				return
			}
		}
	}
}
