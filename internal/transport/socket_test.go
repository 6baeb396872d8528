package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"uwave/internal/models"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

type peer struct {
	srv      *httptest.Server
	url      string
	conns    atomic.Int32
	received chan string
	closes   chan int
}

// startPeer runs a websocket server. onConn handles each connection; when it
// is nil the peer records every message it receives.
func startPeer(t *testing.T, onConn func(n int, conn *websocket.Conn)) *peer {
	t.Helper()
	return startDelayedPeer(t, 0, onConn)
}

// startDelayedPeer holds every handshake for delay before upgrading.
func startDelayedPeer(t *testing.T, delay time.Duration, onConn func(n int, conn *websocket.Conn)) *peer {
	t.Helper()
	p := &peer{received: make(chan string, 64), closes: make(chan int, 8)}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := int(p.conns.Add(1))
		if onConn != nil {
			onConn(n, conn)
			return
		}
		p.readAll(conn)
	}))
	t.Cleanup(p.srv.Close)
	p.url = "ws" + strings.TrimPrefix(p.srv.URL, "http")
	return p
}

func (p *peer) readAll(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				p.closes <- ce.Code
			}
			return
		}
		p.received <- string(data)
	}
}

func newTestSocket(t *testing.T, opts ...Option) (*Socket, *Dispatcher) {
	t.Helper()
	d := NewDispatcher(zap.NewNop().Sugar())
	opts = append([]Option{WithReconnectBackoff(50 * time.Millisecond)}, opts...)
	s := NewSocket(zap.NewNop().Sugar(), d, opts...)
	t.Cleanup(func() {
		s.Stop()
		d.Close()
	})
	return s, d
}

func next(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for value")
		return ""
	}
}

func drainUntilClosed(t *testing.T, ch <-chan string) []string {
	t.Helper()
	var rest []string
	timeout := time.After(3 * time.Second)
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return rest
			}
			rest = append(rest, v)
		case <-timeout:
			t.Fatal("timed out waiting for stream to close")
			return rest
		}
	}
}

type recorder struct {
	ch chan string
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan string, 64)}
}

func (r *recorder) OnMessage(msg string) {
	r.ch <- msg
}

func TestSubscribeFiltersKeepalive(t *testing.T) {
	p := startPeer(t, func(_ int, conn *websocket.Conn) {
		for _, m := range []string{"-", "hello", "-", `{"command":"advance","data":null}`} {
			conn.WriteMessage(websocket.TextMessage, []byte(m))
		}
		conn.ReadMessage()
	})
	s, d := newTestSocket(t)
	rec := newRecorder()
	d.AddListener(rec)

	stream, err := s.Subscribe(context.Background(), p.url)
	require.NoError(t, err)

	assert.Equal(t, SentinelOpen, next(t, stream))
	assert.Equal(t, "hello", next(t, stream))
	assert.Equal(t, `{"command":"advance","data":null}`, next(t, stream))

	assert.Equal(t, "hello", next(t, rec.ch))
	assert.Equal(t, `{"command":"advance","data":null}`, next(t, rec.ch))
	select {
	case m := <-rec.ch:
		t.Fatalf("unexpected listener message %q", m)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSendWithoutSubscription(t *testing.T) {
	s, _ := newTestSocket(t)
	err := s.Send("x")
	assert.ErrorIs(t, err, models.ErrTransport)
}

func TestSubscribeRejectsBadURL(t *testing.T) {
	s, _ := newTestSocket(t)
	_, err := s.Subscribe(context.Background(), "http://example.com/")
	assert.ErrorIs(t, err, models.ErrTransport)
	assert.Equal(t, "idle", s.Status().State)
}

func TestSendQueuedUntilOpenAndNotReplayed(t *testing.T) {
	var p *peer
	p = startDelayedPeer(t, 150*time.Millisecond, func(n int, conn *websocket.Conn) {
		if n == 1 {
			// read the flushed queue, then drop the connection
			for i := 0; i < 2; i++ {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				p.received <- string(data)
			}
			return
		}
		p.readAll(conn)
	})
	s, _ := newTestSocket(t)
	stream, err := s.Subscribe(context.Background(), p.url)
	require.NoError(t, err)

	require.NoError(t, s.Send("x"))
	require.NoError(t, s.Send("y"))
	assert.Equal(t, 2, s.Status().Queued)

	assert.Equal(t, SentinelOpen, next(t, stream))
	assert.Equal(t, "x", next(t, p.received))
	assert.Equal(t, "y", next(t, p.received))

	assert.Equal(t, SentinelClose, next(t, stream))
	assert.Equal(t, SentinelOpen, next(t, stream))
	require.NoError(t, s.Send("z"))
	assert.Equal(t, "z", next(t, p.received))
	assert.Equal(t, 0, s.Status().Queued)
}

func TestReconnectAfterAbnormalClose(t *testing.T) {
	p := startPeer(t, func(n int, conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		if n == 1 {
			return
		}
		conn.ReadMessage()
	})
	s, _ := newTestSocket(t)
	stream, err := s.Subscribe(context.Background(), p.url)
	require.NoError(t, err)

	assert.Equal(t, SentinelOpen, next(t, stream))
	assert.Equal(t, "hello", next(t, stream))
	assert.Equal(t, SentinelClose, next(t, stream))
	assert.Equal(t, SentinelOpen, next(t, stream))
	assert.Equal(t, "hello", next(t, stream))

	assert.Equal(t, int32(2), p.conns.Load())
	assert.Equal(t, "open", s.Status().State)
}

func TestCloseCancelsPendingReconnect(t *testing.T) {
	p := startPeer(t, func(n int, conn *websocket.Conn) {})
	s, _ := newTestSocket(t, WithReconnectBackoff(200*time.Millisecond))
	stream, err := s.Subscribe(context.Background(), p.url)
	require.NoError(t, err)

	assert.Equal(t, SentinelOpen, next(t, stream))
	assert.Equal(t, SentinelClose, next(t, stream))
	st := s.Status()
	assert.Equal(t, "reconnecting", st.State)
	assert.NotEmpty(t, st.LastError)

	s.Close()
	assert.Empty(t, drainUntilClosed(t, stream))

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(1), p.conns.Load())
	assert.Equal(t, "closed", s.Status().State)
	assert.ErrorIs(t, s.Send("x"), models.ErrTransport)
}

func TestFailedDialReschedules(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	s, _ := newTestSocket(t, WithReconnectBackoff(20*time.Millisecond))
	stream, err := s.Subscribe(context.Background(), url)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return s.Status().Reconnects >= 2 }, 2*time.Second, 10*time.Millisecond)
	assert.NotEmpty(t, s.Status().LastError)
	require.NoError(t, s.Send("queued"))

	s.Close()
	assert.Empty(t, drainUntilClosed(t, stream), "no lifecycle events without an open connection")
	assert.Equal(t, 0, s.Status().Queued)
}

func TestSubscribeReplacesPrevious(t *testing.T) {
	first := startPeer(t, nil)
	second := startPeer(t, nil)
	s, _ := newTestSocket(t)

	old, err := s.Subscribe(context.Background(), first.url)
	require.NoError(t, err)
	assert.Equal(t, SentinelOpen, next(t, old))

	fresh, err := s.Subscribe(context.Background(), second.url)
	require.NoError(t, err)
	assert.Equal(t, []string{SentinelClose}, drainUntilClosed(t, old))

	select {
	case code := <-first.closes:
		assert.Equal(t, websocket.CloseGoingAway, code)
	case <-time.After(2 * time.Second):
		t.Fatal("first peer did not see a close frame")
	}

	assert.Equal(t, SentinelOpen, next(t, fresh))
	require.NoError(t, s.Send("to-second"))
	assert.Equal(t, "to-second", next(t, second.received))
}

func TestSubscribeEndsWithContext(t *testing.T) {
	p := startPeer(t, nil)
	s, _ := newTestSocket(t)
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := s.Subscribe(ctx, p.url)
	require.NoError(t, err)
	assert.Equal(t, SentinelOpen, next(t, stream))

	cancel()
	drainUntilClosed(t, stream)
	assert.Eventually(t, func() bool { return s.Status().State == "closed" }, time.Second, 10*time.Millisecond)

	select {
	case code := <-p.closes:
		assert.Equal(t, websocket.CloseNormalClosure, code)
	case <-time.After(2 * time.Second):
		t.Fatal("peer did not see a close frame")
	}
}

func TestAuthTokenSentFirst(t *testing.T) {
	p := startPeer(t, nil)
	s, _ := newTestSocket(t, WithAuthToken("jwt-token"))

	stream, err := s.Subscribe(context.Background(), p.url)
	require.NoError(t, err)
	require.NoError(t, s.Send("after"))
	assert.Equal(t, SentinelOpen, next(t, stream))

	assert.Equal(t, "jwt-token", next(t, p.received))
	assert.Equal(t, "after", next(t, p.received))
}

func TestAuthTokenResentAfterReconnect(t *testing.T) {
	var p *peer
	p = startPeer(t, func(n int, conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			p.received <- fmt.Sprintf("%d:%s", n, data)
			if n == 1 {
				return
			}
		}
	})
	s, _ := newTestSocket(t, WithAuthToken("jwt-token"))

	stream, err := s.Subscribe(context.Background(), p.url)
	require.NoError(t, err)
	assert.Equal(t, SentinelOpen, next(t, stream))
	assert.Equal(t, "1:jwt-token", next(t, p.received))

	assert.Equal(t, SentinelClose, next(t, stream))
	assert.Equal(t, SentinelOpen, next(t, stream))
	require.NoError(t, s.Send(`{"vote":1}`))

	assert.Equal(t, "2:jwt-token", next(t, p.received))
	assert.Equal(t, `2:{"vote":1}`, next(t, p.received))
}

func TestNonPositiveDurationsKeepDefaults(t *testing.T) {
	s := NewSocket(zap.NewNop().Sugar(), NewDispatcher(zap.NewNop().Sugar()),
		WithPingInterval(0), WithReconnectBackoff(-time.Second))
	t.Cleanup(s.Stop)

	assert.Equal(t, DefaultPingInterval, s.pingInterval)
	assert.Equal(t, DefaultReconnectBackoff, s.backoff)
}

type echoListener struct {
	socket *Socket
	errs   chan error
}

func (l *echoListener) OnMessage(msg string) {
	l.errs <- l.socket.Send("echo:" + msg)
}

func TestListenerMaySend(t *testing.T) {
	var p *peer
	p = startPeer(t, func(_ int, conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("ping"))
		p.readAll(conn)
	})
	s, d := newTestSocket(t)
	l := &echoListener{socket: s, errs: make(chan error, 1)}
	d.AddListener(l)

	_, err := s.Subscribe(context.Background(), p.url)
	require.NoError(t, err)

	select {
	case err := <-l.errs:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener never ran")
	}
	assert.Equal(t, "echo:ping", next(t, p.received))
}

func TestStopRejectsFurtherCalls(t *testing.T) {
	s, _ := newTestSocket(t)
	s.Stop()
	s.Stop()

	_, err := s.Subscribe(context.Background(), "ws://127.0.0.1:1/")
	assert.ErrorIs(t, err, models.ErrTransport)
	assert.ErrorIs(t, s.Send("x"), models.ErrTransport)
	assert.Equal(t, "closed", s.Status().State)
}
