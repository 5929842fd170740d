package session

// SessionManager 维护接入层当前所有打开连接的索引（按连接 ID）。
//
// 职责说明：
//   - 只负责连接的注册、查询和移除，不直接创建底层连接；
//   - 与“会话标识 -> 连接集合”的业务注册表无关，主要服务于优雅退出与诊断。
type SessionManager interface {
	// Register 将一个已创建好的 Session 注册到管理器中。
	// 当存在相同 ID 的连接时返回错误，避免覆盖旧连接。
	Register(sess Session) error

	// Get 根据连接 ID 查找连接。
	Get(id uint64) (sess Session, ok bool)

	// Unregister 移除指定 ID 的连接索引，返回该 ID 之前是否存在。
	Unregister(id uint64) bool

	// Snapshot 返回当前所有连接的快照。
	Snapshot() []Session

	// CloseAll 以给定原因关闭当前所有连接，返回被关闭的数量。
	CloseAll(reason CloseReason) int

	// Count 返回当前已注册的连接数量。
	Count() int
}
