package acceptor

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	network "github.com/lk2023060901/shout-live-go/internal/network"
	"github.com/lk2023060901/shout-live-go/internal/network/session"
	"github.com/lk2023060901/shout-live-go/pkg/util/merr"
)

type recordingHandler struct {
	mu        sync.Mutex
	connected []string
	messages  []string
	closed    map[uint64]int
	stages    []network.Stage
	errs      []error

	rejectWith error
	closedCh   chan uint64
	messageCh  chan string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		closed:    make(map[uint64]int),
		closedCh:  make(chan uint64, 16),
		messageCh: make(chan string, 16),
	}
}

func (h *recordingHandler) OnConnected(sess session.Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rejectWith != nil {
		return h.rejectWith
	}
	h.connected = append(h.connected, sess.SessionID())
	return nil
}

func (h *recordingHandler) OnMessage(sess session.Session, text string) {
	h.mu.Lock()
	h.messages = append(h.messages, text)
	h.mu.Unlock()
	// 回显，验证发送路径。
	_ = sess.Send("echo:" + text)
	h.messageCh <- text
}

func (h *recordingHandler) OnClosed(sess session.Session, _ error) {
	h.mu.Lock()
	h.closed[sess.ID()]++
	h.mu.Unlock()
	h.closedCh <- sess.ID()
}

func (h *recordingHandler) OnError(_ session.Session, stage network.Stage, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stages = append(h.stages, stage)
	h.errs = append(h.errs, err)
}

func (h *recordingHandler) closeCount(id uint64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed[id]
}

func startAcceptor(t *testing.T, h Handler, identity func(*http.Request) string) (*WSAcceptor, string) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Identity = identity
	a, err := NewWSAcceptor(cfg, h)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "Session=from-middleware")
		a.ServeHTTP(w, r)
	}))
	t.Cleanup(func() {
		_ = a.Close()
		srv.Close()
	})
	return a, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func cookieIdentity(r *http.Request) string {
	c, err := r.Cookie("Session")
	if err != nil {
		return ""
	}
	return c.Value
}

func dialWithCookie(t *testing.T, url, sid string) (*websocket.Conn, *http.Response) {
	t.Helper()
	header := http.Header{}
	if sid != "" {
		header.Set("Cookie", "Session="+sid)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, resp
}

func waitClosed(t *testing.T, h *recordingHandler) uint64 {
	t.Helper()
	select {
	case id := <-h.closedCh:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("OnClosed not called")
		return 0
	}
}

func TestNewWSAcceptor_Validation(t *testing.T) {
	_, err := NewWSAcceptor(DefaultConfig(), newRecordingHandler())
	assert.ErrorIs(t, err, merr.ErrParameterMissing)

	cfg := DefaultConfig()
	cfg.Identity = cookieIdentity
	_, err = NewWSAcceptor(cfg, nil)
	assert.ErrorIs(t, err, merr.ErrParameterMissing)
}

func TestWSAcceptor_MessageAndClose(t *testing.T) {
	h := newRecordingHandler()
	a, url := startAcceptor(t, h, cookieIdentity)

	conn, resp := dialWithCookie(t, url, "abc")
	assert.Contains(t, resp.Header.Values("Set-Cookie"), "Session=from-middleware")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "echo:hello", string(data))
	assert.Len(t, a.Sessions(), 1)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	require.NoError(t, conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))

	id := waitClosed(t, h)
	assert.Equal(t, 1, h.closeCount(id))
	assert.Equal(t, []string{"abc"}, h.connected)
	assert.Eventually(t, func() bool { return len(a.Sessions()) == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestWSAcceptor_MissingIdentity(t *testing.T) {
	h := newRecordingHandler()
	_, url := startAcceptor(t, h, cookieIdentity)

	conn, _ := dialWithCookie(t, url, "")
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr))
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, "No session", closeErr.Text)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Empty(t, h.connected)
	assert.Empty(t, h.closed)
	require.Len(t, h.stages, 1)
	assert.Equal(t, network.StageIdentity, h.stages[0])
	assert.ErrorIs(t, h.errs[0], merr.ErrSessionMissing)
}

func TestWSAcceptor_RejectedByHandler(t *testing.T) {
	h := newRecordingHandler()
	h.rejectWith = merr.WrapErrServiceInternal("no room")
	_, url := startAcceptor(t, h, cookieIdentity)

	conn, _ := dialWithCookie(t, url, "abc")
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()

	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr))
	assert.Equal(t, websocket.CloseInternalServerErr, closeErr.Code)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Empty(t, h.closed)
}

func TestWSAcceptor_CloseShutsDownSessions(t *testing.T) {
	h := newRecordingHandler()
	a, url := startAcceptor(t, h, cookieIdentity)

	c1, _ := dialWithCookie(t, url, "abc")
	c2, _ := dialWithCookie(t, url, "abc")
	require.Eventually(t, func() bool { return len(a.Sessions()) == 2 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Close())
	assert.NoError(t, a.Close())

	for _, c := range []*websocket.Conn{c1, c2} {
		_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, _, err := c.ReadMessage()
		assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
	}

	id1, id2 := waitClosed(t, h), waitClosed(t, h)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 1, h.closeCount(id1))
	assert.Equal(t, 1, h.closeCount(id2))
	assert.Empty(t, a.Sessions())
}

func TestCheckOrigin(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "https://Chat.Example.com")

	assert.True(t, checkOrigin(nil)(r))
	assert.True(t, checkOrigin([]string{"chat.example.com"})(r))
	assert.False(t, checkOrigin([]string{"other.example.com"})(r))

	r.Header.Del("Origin")
	assert.True(t, checkOrigin([]string{"other.example.com"})(r))
}
