package live

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/shout-live-go/internal/network/session"
	"github.com/lk2023060901/shout-live-go/pkg/util/merr"
)

type RegistrySuite struct {
	suite.Suite

	members  *Directory
	presence *PresenceStore
	registry *Registry
}

func (s *RegistrySuite) SetupTest() {
	s.members = NewDirectory()
	s.presence = NewPresenceStore()
	s.registry = NewRegistry(s.members, s.presence)
}

// assertConsistent 校验：标识存在当且仅当其连接集合非空，且成员与位置状态同生同灭。
func (s *RegistrySuite) assertConsistent() {
	recipients := s.registry.Snapshot()
	conns := 0
	for _, rc := range recipients {
		s.NotEmpty(rc.Conns)
		_, ok := s.members.Lookup(rc.ID)
		s.True(ok, rc.ID)
		_, ok = s.presence.Get(rc.ID)
		s.True(ok, rc.ID)
		conns += len(rc.Conns)
	}
	s.Equal(len(recipients), s.registry.Len())
	s.Equal(len(recipients), s.members.Len())
	s.Equal(len(recipients), s.presence.Len())
	s.Equal(conns, s.registry.ConnectionCount())
}

func (s *RegistrySuite) TestJoinValidation() {
	_, err := s.registry.Join("", newFakeSession(""))
	s.ErrorIs(err, merr.ErrSessionMissing)

	_, err = s.registry.Join("a", nil)
	s.ErrorIs(err, merr.ErrParameterMissing)
	s.Equal(0, s.registry.Len())
}

func (s *RegistrySuite) TestJoinAndLeave() {
	c1, c2 := newFakeSession("a"), newFakeSession("a")

	m, err := s.registry.Join("a", c1)
	s.Require().NoError(err)
	s.Equal(Member{ID: "a", Name: "user1"}, m)

	m, err = s.registry.Join("a", c2)
	s.Require().NoError(err)
	s.Equal("user1", m.Name)
	s.Equal([]session.Session{c1, c2}, s.registry.Connections("a"))
	s.Equal(1, s.registry.Len())
	s.Equal(2, s.registry.ConnectionCount())

	_, err = s.presence.SetLocation("a", "1 2")
	s.Require().NoError(err)

	// 关闭两条中的一条：标识、显示名和位置状态都保留。
	s.True(s.registry.Leave("a", c1))
	s.True(s.registry.Contains("a"))
	name, ok := s.members.Lookup("a")
	s.True(ok)
	s.Equal("user1", name)
	p, ok := s.presence.Get("a")
	s.True(ok)
	s.False(p.Global)
	s.assertConsistent()

	// 重复移除同一连接是无操作。
	s.False(s.registry.Leave("a", c1))

	// 关闭最后一条：标识被整体移除。
	s.True(s.registry.Leave("a", c2))
	s.False(s.registry.Contains("a"))
	_, ok = s.members.Lookup("a")
	s.False(ok)
	_, ok = s.presence.Get("a")
	s.False(ok)
	s.Empty(s.registry.Snapshot())
	s.assertConsistent()

	s.False(s.registry.Leave("a", c2))
	s.False(s.registry.Leave("unknown", c2))
}

func (s *RegistrySuite) TestRejoinAfterEviction() {
	c1 := newFakeSession("a")
	_, err := s.registry.Join("a", c1)
	s.Require().NoError(err)
	s.True(s.registry.Leave("a", c1))

	m, err := s.registry.Join("a", newFakeSession("a"))
	s.Require().NoError(err)
	s.Equal("user2", m.Name)
	p, ok := s.presence.Get("a")
	s.True(ok)
	s.Equal(DefaultPresence(), p)
}

func (s *RegistrySuite) TestConnectionsSnapshotIsStable() {
	c1 := newFakeSession("a")
	_, _ = s.registry.Join("a", c1)
	snapshot := s.registry.Connections("a")

	_, _ = s.registry.Join("a", newFakeSession("a"))
	s.registry.Leave("a", c1)

	s.Equal([]session.Session{c1}, snapshot)
	s.Len(s.registry.Connections("a"), 1)
}

func (s *RegistrySuite) TestMembers() {
	_, _ = s.registry.Join("a", newFakeSession("a"))
	_, _ = s.registry.Join("b", newFakeSession("b"))
	s.ElementsMatch([]Member{{ID: "a", Name: "user1"}, {ID: "b", Name: "user2"}}, s.registry.Members())
}

func (s *RegistrySuite) TestConcurrentFirstJoinsDistinct() {
	const n = 50
	names := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := s.registry.Join(fmt.Sprintf("sid-%d", i), newFakeSession(""))
			s.NoError(err)
			names[i] = m.Name
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for _, name := range names {
		_, dup := seen[name]
		s.False(dup, name)
		seen[name] = struct{}{}
	}
	for i := 1; i <= n; i++ {
		_, ok := seen[fmt.Sprintf("user%d", i)]
		s.True(ok, i)
	}
	s.assertConsistent()
}

func (s *RegistrySuite) TestConcurrentJoinSameIdentity() {
	const n = 32
	names := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := s.registry.Join("same", newFakeSession("same"))
			s.NoError(err)
			names[i] = m.Name
		}(i)
	}
	wg.Wait()

	for _, name := range names {
		s.Equal("user1", name)
	}
	s.Len(s.registry.Connections("same"), n)
	s.assertConsistent()
}

// TestRandomizedJoinLeave 在少量标识上并发随机加入/离开，结束后校验注册表不变量。
func (s *RegistrySuite) TestRandomizedJoinLeave() {
	const (
		workers    = 16
		rounds     = 300
		identities = 4
	)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			var held []*fakeSession
			for i := 0; i < rounds; i++ {
				if len(held) > 0 && rng.Intn(2) == 0 {
					idx := rng.Intn(len(held))
					c := held[idx]
					held = append(held[:idx], held[idx+1:]...)
					s.True(s.registry.Leave(c.SessionID(), c))
					continue
				}
				sid := fmt.Sprintf("sid-%d", rng.Intn(identities))
				c := newFakeSession(sid)
				_, err := s.registry.Join(sid, c)
				s.NoError(err)
				held = append(held, c)
			}
			// 每个 worker 留下一半连接，其余全部离开。
			for _, c := range held[len(held)/2:] {
				s.True(s.registry.Leave(c.SessionID(), c))
			}
		}(int64(w))
	}
	wg.Wait()

	s.assertConsistent()
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}
