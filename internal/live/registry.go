package live

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/lk2023060901/shout-live-go/internal/network/session"
	"github.com/lk2023060901/shout-live-go/pkg/metrics"
	"github.com/lk2023060901/shout-live-go/pkg/util/merr"
	"github.com/lk2023060901/shout-live-go/pkg/util/typeutil"
)

// Member 是注册表中的一个在线成员。
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Recipient 是广播快照中的一项：会话标识及其当时的连接集合。
type Recipient struct {
	ID    string
	Conns []session.Session
}

// registryEntry 保存单个会话标识的连接集合。
//
// 连接切片采用写时复制：写者在 mu 保护下构造新切片后整体替换，读者无锁读取，
// 拿到的切片永远不会被修改。evicted 置位后该 entry 不再接受新连接，Join 会换一个新 entry 重试。
type registryEntry struct {
	mu      sync.Mutex
	evicted bool
	conns   atomic.Pointer[[]session.Session]
}

func (e *registryEntry) load() []session.Session {
	if p := e.conns.Load(); p != nil {
		return *p
	}
	return nil
}

// Registry 维护会话标识到连接集合的映射，并负责成员与位置状态的创建和销毁。
//
// 标识存在当且仅当其连接集合非空。
type Registry struct {
	entries  *typeutil.ConcurrentMap[string, *registryEntry]
	members  *Directory
	presence *PresenceStore

	memberCount atomic.Int64
	connCount   atomic.Int64
}

func NewRegistry(members *Directory, presence *PresenceStore) *Registry {
	return &Registry{
		entries:  typeutil.NewConcurrentMap[string, *registryEntry](),
		members:  members,
		presence: presence,
	}
}

// Join 把连接加入标识的集合；首个连接会创建成员（分配显示名）与缺省位置状态。
func (r *Registry) Join(sid string, conn session.Session) (Member, error) {
	if conn == nil {
		return Member{}, merr.WrapErrParameterMissing("connection")
	}
	if sid == "" {
		remote := ""
		if addr := conn.RemoteAddr(); addr != nil {
			remote = addr.String()
		}
		return Member{}, merr.WrapErrSessionMissing(remote)
	}

	for {
		entry, _ := r.entries.GetOrInsert(sid, &registryEntry{})
		entry.mu.Lock()
		if entry.evicted {
			entry.mu.Unlock()
			r.entries.CompareAndRemove(sid, entry)
			continue
		}

		cur := entry.load()
		if len(cur) == 0 {
			r.members.DisplayNameFor(sid)
			r.presence.Create(sid)
			r.memberCount.Inc()
			metrics.LiveMembers.Inc()
		}
		next := make([]session.Session, len(cur), len(cur)+1)
		copy(next, cur)
		next = append(next, conn)
		entry.conns.Store(&next)
		name := r.members.DisplayNameFor(sid)
		entry.mu.Unlock()

		r.connCount.Inc()
		metrics.LiveConnections.Inc()
		return Member{ID: sid, Name: name}, nil
	}
}

// Leave 从标识的集合中移除连接，集合变空时一并删除成员与位置状态。
// 标识或连接不存在时什么也不做，返回 false；对同一连接重复调用是安全的。
func (r *Registry) Leave(sid string, conn session.Session) bool {
	entry, ok := r.entries.Get(sid)
	if !ok {
		return false
	}

	entry.mu.Lock()
	if entry.evicted {
		entry.mu.Unlock()
		return false
	}
	cur := entry.load()
	idx := -1
	for i, c := range cur {
		if c == conn {
			idx = i
			break
		}
	}
	if idx < 0 {
		entry.mu.Unlock()
		return false
	}

	next := make([]session.Session, 0, len(cur)-1)
	next = append(next, cur[:idx]...)
	next = append(next, cur[idx+1:]...)
	entry.conns.Store(&next)

	if len(next) == 0 {
		entry.evicted = true
		r.members.Forget(sid)
		r.presence.Remove(sid)
		r.entries.CompareAndRemove(sid, entry)
		r.memberCount.Dec()
		metrics.LiveMembers.Dec()
	}
	entry.mu.Unlock()

	r.connCount.Dec()
	metrics.LiveConnections.Dec()
	return true
}

// Connections 返回标识当前连接集合的只读快照，调用方不得修改返回的切片。
func (r *Registry) Connections(sid string) []session.Session {
	entry, ok := r.entries.Get(sid)
	if !ok {
		return nil
	}
	return entry.load()
}

// Contains 表示标识当前是否在线。
func (r *Registry) Contains(sid string) bool {
	return len(r.Connections(sid)) > 0
}

// Snapshot 返回所有在线标识及其连接集合的时间点快照。
func (r *Registry) Snapshot() []Recipient {
	recipients := make([]Recipient, 0, r.Len())
	r.entries.Range(func(sid string, entry *registryEntry) bool {
		if conns := entry.load(); len(conns) > 0 {
			recipients = append(recipients, Recipient{ID: sid, Conns: conns})
		}
		return true
	})
	return recipients
}

// Members 返回所有在线成员。
func (r *Registry) Members() []Member {
	recipients := r.Snapshot()
	members := make([]Member, 0, len(recipients))
	for _, rc := range recipients {
		name, ok := r.members.Lookup(rc.ID)
		if !ok {
			continue
		}
		members = append(members, Member{ID: rc.ID, Name: name})
	}
	return members
}

// Len 返回在线标识数量。
func (r *Registry) Len() int {
	return int(r.memberCount.Load())
}

// ConnectionCount 返回在线连接总数。
func (r *Registry) ConnectionCount() int {
	return int(r.connCount.Load())
}
