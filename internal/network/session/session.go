package session

import (
	"context"
	"net"

	"github.com/gorilla/websocket"
)

// CloseReason 描述主动关闭会话时发给对端的关闭码与原因。
type CloseReason struct {
	Code int
	Text string
}

var (
	// CloseNormal 表示正常关闭。
	CloseNormal = CloseReason{Code: websocket.CloseNormalClosure}
	// CloseGoingAway 表示服务器正在退出。
	CloseGoingAway = CloseReason{Code: websocket.CloseGoingAway, Text: "server shutting down"}
	// ClosePolicyViolation 表示连接无法关联到会话标识。
	ClosePolicyViolation = CloseReason{Code: websocket.ClosePolicyViolation, Text: "No session"}
	// CloseProtocolError 表示已建立的连接发送失败。
	CloseProtocolError = CloseReason{Code: websocket.CloseProtocolError}
	// CloseInternalError 表示连接建立后业务侧无法接纳该连接。
	CloseInternalError = CloseReason{Code: websocket.CloseInternalServerErr}
)

// Session 抽象了一条物理双工连接（一个浏览器标签页对应一条）。
//
// 约定：
//   - ID 为连接级唯一标识，由接入层分配；
//   - SessionID 为逻辑客户端标识，同一客户端的多条连接共享同一个 SessionID；
//   - 发送失败只影响当前连接本身。
type Session interface {
	// ID 返回连接在进程内的唯一标识。
	ID() uint64

	// SessionID 返回该连接所属的会话标识，无法解析时为空串。
	SessionID() string

	// Context 返回与该连接关联的上下文，连接关闭时 Done。
	Context() context.Context

	// RemoteAddr 返回远端地址，主要用于日志。
	RemoteAddr() net.Addr

	// Send 发送一条文本。
	//
	// 行为：
	//   - 仅投递到连接级发送队列，由独立的发送协程写出；
	//   - 连接已关闭或队列已满时返回错误，调用方应据此关闭连接。
	Send(text string) error

	// Close 以给定原因关闭连接。
	//
	// 多次调用是幂等的：只有第一次调用会真正发送关闭帧并关闭底层连接。
	Close(reason CloseReason) error

	// Closed 表示 Close 是否已被调用。
	Closed() bool
}
