package session

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"

	"github.com/lk2023060901/shout-live-go/pkg/util/merr"
)

// WSConfig 描述单条 WebSocket 会话的收发参数。
//
// 说明：
//   - SendQueueSize 为发送队列容量，队列满时 Send 直接失败（不做背压）；
//   - PingPeriod 为服务器发送 Ping 的间隔，PongTimeout 为等待 Pong 的额外时间；
//   - WriteTimeout 为单次写出的超时时间，为 0 表示不设置 deadline；
//   - MaxMessageSize 为单条入站消息的最大字节数，为 0 表示不限制。
type WSConfig struct {
	SendQueueSize  int
	PingPeriod     time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
}

// DefaultWSConfig 返回缺省配置，Ping 间隔与超时均为 15 秒。
func DefaultWSConfig() WSConfig {
	return WSConfig{
		SendQueueSize:  256,
		PingPeriod:     15 * time.Second,
		PongTimeout:    15 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

// WSSession 是基于 gorilla/websocket 的 Session 实现。
//
// 设计目标：
//   - Send 只投递到 sendQueue，由 sendLoop 串行写出，避免多 goroutine 并发写 conn；
//   - 读取由接入层在连接所属的 goroutine 中调用 Next 完成（单读者）；
//   - Close 可被任意 goroutine 调用，且只生效一次。
type WSSession struct {
	id        uint64
	sessionID string

	ctx    context.Context
	cancel context.CancelFunc

	conn       *websocket.Conn
	remoteAddr net.Addr
	cfg        WSConfig

	sendQueue chan string

	closed    atomic.Bool
	closeOnce sync.Once
}

// 确保 WSSession 实现了 Session 接口。
var _ Session = (*WSSession)(nil)

// NewWSSession 基于已完成升级的 WebSocket 连接创建会话，并启动发送协程。
//
// 参数：
//   - parent   ：会话所属的上层上下文（例如接入器的生命周期 ctx）；若为 nil，则使用 context.Background()；
//   - id       ：连接 ID；
//   - sessionID：会话标识，可为空（由上层决定如何拒绝）；
//   - conn     ：底层 WebSocket 连接。
func NewWSSession(parent context.Context, id uint64, sessionID string, conn *websocket.Conn, cfg WSConfig) *WSSession {
	if parent == nil {
		parent = context.Background()
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = DefaultWSConfig().SendQueueSize
	}
	ctx, cancel := context.WithCancel(parent)

	s := &WSSession{
		id:         id,
		sessionID:  sessionID,
		ctx:        ctx,
		cancel:     cancel,
		conn:       conn,
		remoteAddr: conn.RemoteAddr(),
		cfg:        cfg,
		sendQueue:  make(chan string, cfg.SendQueueSize),
	}

	if cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	if cfg.PingPeriod > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.readWait()))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(s.readWait()))
		})
	}

	go s.sendLoop()

	return s
}

// ID 实现 Session.ID。
func (s *WSSession) ID() uint64 {
	return s.id
}

// SessionID 实现 Session.SessionID。
func (s *WSSession) SessionID() string {
	return s.sessionID
}

// Context 实现 Session.Context。
func (s *WSSession) Context() context.Context {
	return s.ctx
}

// RemoteAddr 实现 Session.RemoteAddr。
func (s *WSSession) RemoteAddr() net.Addr {
	return s.remoteAddr
}

// Closed 实现 Session.Closed。
func (s *WSSession) Closed() bool {
	return s.closed.Load()
}

// Send 实现 Session.Send。
func (s *WSSession) Send(text string) error {
	if s.closed.Load() || s.ctx.Err() != nil {
		return merr.WrapErrSessionClosed(s.id)
	}
	select {
	case <-s.ctx.Done():
		return merr.WrapErrSessionClosed(s.id)
	case s.sendQueue <- text:
		return nil
	default:
		return merr.WrapErrSendQueueFull(s.id, cap(s.sendQueue))
	}
}

// Close 实现 Session.Close。
//
// sendQueue 不会被关闭：并发的 Send 只会观察到 ctx 已取消，不会向已关闭的通道写入。
func (s *WSSession) Close(reason CloseReason) error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()

		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(reason.Code, reason.Text)
		// 对端可能已断开，关闭帧写失败不影响后续关闭底层连接。
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		err = s.conn.Close()
	})
	return err
}

// Next 阻塞读取下一条文本消息，二进制帧会被忽略。
//
// 仅允许连接所属的读协程调用。连接关闭、读超时或对端发送关闭帧时返回错误。
func (s *WSSession) Next() (string, error) {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if mt == websocket.TextMessage {
			return string(data), nil
		}
	}
}

func (s *WSSession) readWait() time.Duration {
	return s.cfg.PingPeriod + s.cfg.PongTimeout
}

// sendLoop 为每个会话启动的专职发送协程。
//
// 行为：
//   - 从 sendQueue 中按顺序取出文本并写出；
//   - 按 PingPeriod 定期发送 Ping；
//   - 任意写失败都以 CloseProtocolError 关闭会话，由读协程感知断开并完成清理。
func (s *WSSession) sendLoop() {
	var tick <-chan time.Time
	if s.cfg.PingPeriod > 0 {
		ticker := time.NewTicker(s.cfg.PingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case text := <-s.sendQueue:
			s.setWriteDeadline()
			if err := s.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
				_ = s.Close(CloseProtocolError)
				return
			}
		case <-tick:
			deadline := time.Now().Add(s.cfg.PongTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = s.Close(CloseProtocolError)
				return
			}
		}
	}
}

func (s *WSSession) setWriteDeadline() {
	if s.cfg.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		return
	}
	_ = s.conn.SetWriteDeadline(time.Time{})
}
