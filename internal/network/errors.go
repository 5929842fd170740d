package network

import "github.com/cockroachdb/errors"

// Stage 标记错误发生在连接生命周期的哪个阶段，回调与日志用它区分来源。
type Stage string

const (
	StageHandshake Stage = "handshake" // HTTP -> WebSocket 升级
	StageIdentity  Stage = "identity"  // 解析会话标识
	StageRecv      Stage = "recv"
	StageDispatch  Stage = "dispatch" // 文本 -> 业务处理
	StageSend      Stage = "send"
)

var (
	ErrHandshakeFailed = errors.New("network: handshake failed")
	ErrRecvFailed      = errors.New("network: recv failed")
	ErrDispatchFailed  = errors.New("network: dispatch failed")
	ErrSendFailed      = errors.New("network: send failed")
)

var stageErrors = map[Stage]error{
	StageHandshake: ErrHandshakeFailed,
	StageRecv:      ErrRecvFailed,
	StageDispatch:  ErrDispatchFailed,
	StageSend:      ErrSendFailed,
}

// Mark 给 err 打上该阶段对应的哨兵错误，调用方可以用 errors.Is 判断失败阶段。
// 没有对应哨兵的阶段以及 nil 错误原样返回。
func (s Stage) Mark(err error) error {
	sentinel, ok := stageErrors[s]
	if err == nil || !ok {
		return err
	}
	return errors.Mark(errors.WithDetailf(err, "stage=%s", s), sentinel)
}
