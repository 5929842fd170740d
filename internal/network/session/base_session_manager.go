package session

import (
	"sync"

	"github.com/lk2023060901/shout-live-go/pkg/util/merr"
)

// BaseSessionManager 提供了基于内存 map 的 SessionManager 实现。
//
// 特性：
//   - 使用读写锁保证并发安全；
//   - Register 在遇到重复 ID 时返回错误，避免覆盖旧连接；
//   - Snapshot/CloseAll 先复制连接切片再释放锁，Close 不在持锁期间执行。
type BaseSessionManager struct {
	mu       sync.RWMutex
	sessions map[uint64]Session
}

var _ SessionManager = (*BaseSessionManager)(nil)

// NewBaseSessionManager 创建一个空的 BaseSessionManager。
func NewBaseSessionManager() *BaseSessionManager {
	return &BaseSessionManager{
		sessions: make(map[uint64]Session),
	}
}

// Register 实现 SessionManager.Register。
func (m *BaseSessionManager) Register(sess Session) error {
	if sess == nil {
		return merr.WrapErrParameterMissing("session")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[sess.ID()]; exists {
		return merr.WrapErrParameterInvalidMsg("connection %d already registered", sess.ID())
	}
	m.sessions[sess.ID()] = sess
	return nil
}

// Get 实现 SessionManager.Get。
func (m *BaseSessionManager) Get(id uint64) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	return sess, ok
}

// Unregister 实现 SessionManager.Unregister。
func (m *BaseSessionManager) Unregister(id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.sessions[id]
	delete(m.sessions, id)
	return exists
}

// Snapshot 实现 SessionManager.Snapshot。
func (m *BaseSessionManager) Snapshot() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make([]Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		snapshot = append(snapshot, sess)
	}
	return snapshot
}

// CloseAll 实现 SessionManager.CloseAll。
func (m *BaseSessionManager) CloseAll(reason CloseReason) int {
	snapshot := m.Snapshot()
	for _, sess := range snapshot {
		_ = sess.Close(reason)
	}
	return len(snapshot)
}

// Count 实现 SessionManager.Count。
func (m *BaseSessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
