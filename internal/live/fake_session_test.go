package live

import (
	"context"
	"net"
	"sync"

	"go.uber.org/atomic"

	"github.com/lk2023060901/shout-live-go/internal/network/session"
	"github.com/lk2023060901/shout-live-go/pkg/util/merr"
)

var fakeIDs session.Uint64IDGenerator

// fakeSession 记录所有发出的文本与关闭原因，可配置为发送必然失败。
type fakeSession struct {
	id  uint64
	sid string
	ctx context.Context

	failSend atomic.Bool
	closed   atomic.Bool

	mu         sync.Mutex
	sent       []string
	closeCodes []session.CloseReason
	sendCalls  int
}

var _ session.Session = (*fakeSession)(nil)

func newFakeSession(sid string) *fakeSession {
	return &fakeSession{id: fakeIDs.Next(), sid: sid, ctx: context.Background()}
}

func newFailingSession(sid string) *fakeSession {
	s := newFakeSession(sid)
	s.failSend.Store(true)
	return s
}

func (s *fakeSession) ID() uint64               { return s.id }
func (s *fakeSession) SessionID() string        { return s.sid }
func (s *fakeSession) Context() context.Context { return s.ctx }
func (s *fakeSession) RemoteAddr() net.Addr     { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000} }
func (s *fakeSession) Closed() bool             { return s.closed.Load() }

func (s *fakeSession) Send(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendCalls++
	if s.closed.Load() {
		return merr.WrapErrSessionClosed(s.id)
	}
	if s.failSend.Load() {
		return merr.WrapErrSendQueueFull(s.id, 0)
	}
	s.sent = append(s.sent, text)
	return nil
}

func (s *fakeSession) Close(reason session.CloseReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCodes = append(s.closeCodes, reason)
	s.closed.Store(true)
	return nil
}

func (s *fakeSession) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func (s *fakeSession) SendCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendCalls
}

func (s *fakeSession) CloseReasons() []session.CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]session.CloseReason(nil), s.closeCodes...)
}
