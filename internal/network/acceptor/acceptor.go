package acceptor

import (
	"net/http"

	"github.com/gorilla/websocket"

	network "github.com/lk2023060901/shout-live-go/internal/network"
	"github.com/lk2023060901/shout-live-go/internal/network/session"
)

// Config 描述 Acceptor 在会话层面的配置。
//
// 说明：
//   - Session 控制每个连接的发送队列、心跳与读写超时；
//   - AllowedOrigins 为空时接受任意 Origin，否则只接受列表中的 host；
//   - Identity 从升级请求中解析会话标识，返回空串表示无法关联会话。
type Config struct {
	Session session.WSConfig

	AllowedOrigins []string

	// Identity 在升级前被调用，此时请求已经过上游中间件（例如会话 Cookie 下发）。
	Identity func(r *http.Request) string

	// Upgrader 允许调用方自定义 gorilla/websocket 的升级行为。
	// 若为 nil，则使用内部默认的 Upgrader。
	Upgrader *websocket.Upgrader
}

// DefaultConfig 返回缺省配置。
func DefaultConfig() Config {
	return Config{
		Session: session.DefaultWSConfig(),
	}
}

// Handler 由框架使用者实现，用于在服务器侧的各个阶段插入自定义逻辑。
//
// 说明：
//   - 同一连接上的 OnConnected/OnMessage/OnClosed 在该连接的读协程中串行调用；
//   - 不同连接之间的回调是并发的，实现必须并发安全。
type Handler interface {
	// OnConnected 在握手成功且解析出会话标识后被调用。
	//
	// 返回非 nil 时连接会被立即关闭，且不会再调用 OnClosed。
	OnConnected(sess session.Session) error

	// OnMessage 在收到一条文本消息后被调用。
	OnMessage(sess session.Session, text string)

	// OnClosed 在连接生命周期结束时被调用，每条连接恰好一次。
	//
	// 参数 err 为关闭原因，正常关闭时为 nil。
	OnClosed(sess session.Session, err error)

	// OnError 在会话处理的各个阶段发生错误时被调用。
	//
	// stage 用于标识错误发生的位置，便于监控与排查；握手失败时 sess 为 nil。
	OnError(sess session.Session, stage network.Stage, err error)
}

// Acceptor 抽象了服务器侧的 WebSocket 接入层。
//
// 职责：
//   - 作为 http.Handler 挂载到路由上，处理 WebSocket 升级；
//   - 为每个连接创建 Session，并调用 Handler 的各阶段回调；
//   - 维护当前活跃会话列表，便于优雅退出与监控。
type Acceptor interface {
	http.Handler

	// Close 主动关闭所有会话，并等待所有读协程退出。
	Close() error

	// Sessions 返回当前活跃会话的快照。
	Sessions() []session.Session
}
