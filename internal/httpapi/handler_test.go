package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/shout-live-go/internal/json"
	"github.com/lk2023060901/shout-live-go/internal/live"
	"github.com/lk2023060901/shout-live-go/internal/network/acceptor"
	"github.com/lk2023060901/shout-live-go/pkg/util/merr"
)

type fakeLive struct {
	mu         sync.Mutex
	broadcasts []string
}

func (f *fakeLive) Broadcast(_ context.Context, text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, text)
	return 1
}

func (f *fakeLive) Stats() live.Stats {
	return live.Stats{Members: 2, Connections: 3}
}

func newTestHandler(t *testing.T, svc LiveService) http.Handler {
	t.Helper()
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ws:" + SessionIDFromRequest(r)))
	})
	h, err := NewHandler(Config{MaxBroadcastBytes: 16}, svc, ws, nil)
	require.NoError(t, err)
	return h.Router()
}

func TestNewHandler_Validation(t *testing.T) {
	_, err := NewHandler(Config{}, nil, http.NotFoundHandler(), nil)
	assert.ErrorIs(t, err, merr.ErrParameterMissing)
	_, err = NewHandler(Config{}, &fakeLive{}, nil, nil)
	assert.ErrorIs(t, err, merr.ErrParameterMissing)
}

func TestHandler_Home(t *testing.T) {
	router := newTestHandler(t, &fakeLive{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HELLO WORLD!", rec.Body.String())

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "Session", cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)
}

func TestHandler_SessionCookieReused(t *testing.T) {
	router := newTestHandler(t, &fakeLive{})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.AddCookie(&http.Cookie{Name: "Session", Value: "existing"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "ws:existing", rec.Body.String())
	assert.Empty(t, rec.Result().Cookies())
}

func TestHandler_Healthz(t *testing.T) {
	router := newTestHandler(t, &fakeLive{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestHandler_Broadcast(t *testing.T) {
	svc := &fakeLive{}
	router := newTestHandler(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/broadcast", strings.NewReader("news")))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Equal(t, []string{"news"}, svc.broadcasts)
}

func TestHandler_BroadcastErrors(t *testing.T) {
	svc := &fakeLive{}
	router := newTestHandler(t, svc)

	rec := httptest.NewRecorder()
	body := strings.NewReader(strings.Repeat("x", 17))
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/broadcast", body))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	broken := iotest.ErrReader(errors.New("connection reset"))
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/broadcast", broken))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, svc.broadcasts)
}

func TestHandler_Stats(t *testing.T) {
	router := newTestHandler(t, &fakeLive{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var stats live.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, live.Stats{Members: 2, Connections: 3}, stats)
}

// TestEndToEnd 通过真实的接入器与实时服务验证聊天、命令回复与 HTTP 广播。
func TestEndToEnd(t *testing.T) {
	svc, err := live.NewServer()
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	cfg := acceptor.DefaultConfig()
	cfg.Identity = SessionIDFromRequest
	ws, err := acceptor.NewWSAcceptor(cfg, svc)
	require.NoError(t, err)

	h, err := NewHandler(Config{}, svc, ws, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(func() {
		_ = ws.Close()
		srv.Close()
	})
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	// 未携带 Cookie 的连接会在升级响应中拿到新的会话标识。
	a, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NotEmpty(t, resp.Cookies())

	header := http.Header{}
	header.Set("Cookie", "Session=bob")
	b, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.Eventually(t, func() bool { return svc.Stats().Members == 2 }, 5*time.Second, 10*time.Millisecond)

	read := func(c *websocket.Conn) string {
		_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := c.ReadMessage()
		require.NoError(t, err)
		return string(data)
	}

	require.NoError(t, b.WriteMessage(websocket.TextMessage, []byte("/location 12.5 45.0")))
	assert.Equal(t, "[INFO] Location(lat=12.5, lon=45)", read(b))

	require.NoError(t, b.WriteMessage(websocket.TextMessage, []byte("hi all")))
	first, second := read(a), read(b)
	assert.Equal(t, first, second)
	assert.True(t, strings.HasSuffix(first, "] hi all"), first)

	httpResp, err := http.Post(srv.URL+"/broadcast", "text/plain", strings.NewReader("server news"))
	require.NoError(t, err)
	_ = httpResp.Body.Close()
	assert.Equal(t, http.StatusOK, httpResp.StatusCode)
	assert.Equal(t, "server news", read(a))
	assert.Equal(t, "server news", read(b))

	require.NoError(t, b.Close())
	require.Eventually(t, func() bool { return svc.Stats() == live.Stats{Members: 1, Connections: 1} },
		5*time.Second, 10*time.Millisecond)
}
