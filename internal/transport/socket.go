// Package transport keeps a resilient websocket subscription to a room
// server and fans its frames out to listeners.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"uwave/internal/httputil"
	"uwave/internal/models"
)

const (
	DefaultReconnectBackoff = 5 * time.Second
	DefaultPingInterval     = 30 * time.Second

	writeTimeout = 5 * time.Second
)

var ErrShutdown = errors.New("socket is shut down")

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Socket owns one websocket subscription. All connection state lives on a
// single actor goroutine; public methods post closures to it.
type Socket struct {
	log          *zap.SugaredLogger
	dispatcher   *Dispatcher
	dialer       *websocket.Dialer
	backoff      time.Duration
	pingInterval time.Duration
	authToken    string

	cmds     chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// owned by the actor goroutine
	state      State
	url        string
	conn       *websocket.Conn
	connStop   chan struct{}
	connSeq    int
	dialCancel context.CancelFunc
	timer      *time.Timer
	timerSeq   int
	queue      []string
	stream     *fifo
	announced  bool
	lastErr    error
	reconnects int
}

type Option func(*Socket)

func WithReconnectBackoff(d time.Duration) Option {
	return func(s *Socket) {
		if d > 0 {
			s.backoff = d
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(s *Socket) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

// WithAuthToken makes every connection send token as its first message,
// including reconnects.
func WithAuthToken(token string) Option {
	return func(s *Socket) { s.authToken = token }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(s *Socket) { s.dialer = d }
}

func NewSocket(log *zap.SugaredLogger, d *Dispatcher, opts ...Option) *Socket {
	s := &Socket{
		log:          log,
		dispatcher:   d,
		dialer:       websocket.DefaultDialer,
		backoff:      DefaultReconnectBackoff,
		pingInterval: DefaultPingInterval,
		cmds:         make(chan func()),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

func (s *Socket) run() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.cmds:
			fn()
		case <-s.quit:
			s.shutdown(websocket.CloseGoingAway)
			return
		}
	}
}

func (s *Socket) post(fn func()) bool {
	select {
	case s.cmds <- fn:
		return true
	case <-s.done:
		return false
	}
}

// call runs fn on the actor and waits for it.
func (s *Socket) call(fn func()) bool {
	ran := make(chan struct{})
	if !s.post(func() {
		defer close(ran)
		fn()
	}) {
		return false
	}
	<-ran
	return true
}

// Subscribe replaces any current subscription with one to rawURL and returns
// its event stream: "+open" and "+close" mark the connection lifecycle, every
// other value is an inbound frame. The stream is closed when the
// subscription is replaced or closed, or when ctx is done.
func (s *Socket) Subscribe(ctx context.Context, rawURL string) (<-chan string, error) {
	if err := httputil.ValidateSocketURL(rawURL); err != nil {
		return nil, models.Errorf(models.KindTransportError, "invalid socket url: %w", err)
	}

	var stream *fifo
	if !s.call(func() { stream = s.subscribe(rawURL) }) {
		return nil, models.WrapError(models.KindTransportError, ErrShutdown)
	}

	go func() {
		select {
		case <-ctx.Done():
			s.post(func() {
				if s.stream == stream {
					s.log.Infow("subscriber went away, closing socket", "url", s.url)
					s.close()
				}
			})
			stream.abandon()
		case <-stream.finished:
		}
	}()
	return stream.Out(), nil
}

func (s *Socket) subscribe(rawURL string) *fifo {
	if s.state != StateIdle && s.state != StateClosed {
		s.log.Infow("replacing subscription", "old", s.url, "new", rawURL)
	}
	s.teardown(websocket.CloseGoingAway)
	s.detachStream()

	s.url = rawURL
	s.stream = newFIFO()
	s.connect()
	return s.stream
}

func (s *Socket) connect() {
	s.state = StateConnecting
	s.connSeq++
	seq := s.connSeq
	ctx, cancel := context.WithCancel(context.Background())
	s.dialCancel = cancel
	url := s.url

	s.log.Debugw("dialing", "url", url, "attempt", s.reconnects)
	go func() {
		conn, _, err := s.dialer.DialContext(ctx, url, nil)
		if !s.post(func() { s.dialed(seq, conn, err) }) && conn != nil {
			conn.Close()
		}
	}()
}

func (s *Socket) dialed(seq int, conn *websocket.Conn, err error) {
	if seq != s.connSeq {
		if conn != nil {
			conn.Close()
		}
		return
	}
	if s.dialCancel != nil {
		s.dialCancel()
		s.dialCancel = nil
	}
	if err != nil {
		s.lastErr = err
		s.log.Warnw("connect failed", "url", s.url, "error", err)
		s.state = StateReconnecting
		s.scheduleReconnect()
		return
	}

	s.conn = conn
	s.connStop = make(chan struct{})
	s.state = StateOpen
	s.lastErr = nil
	s.reconnects = 0
	s.log.Infow("socket open", "url", s.url)

	s.emit(SentinelOpen)
	s.announced = true
	s.authenticate()
	s.flush()

	go s.readLoop(seq, conn)
	go s.pingLoop(conn, s.connStop)
}

// authenticate sends the auth token ahead of anything else on every new
// connection. A failed write surfaces through the read loop.
func (s *Socket) authenticate() {
	if s.authToken == "" {
		return
	}
	if err := s.write(s.authToken); err != nil {
		s.log.Warnw("sending auth token failed", "url", s.url, "error", err)
	}
}

// flush writes queued messages in order. Anything left after a write error
// stays queued for the next connection.
func (s *Socket) flush() {
	for i, msg := range s.queue {
		if err := s.write(msg); err != nil {
			s.log.Warnw("flushing queue failed", "pending", len(s.queue)-i, "error", err)
			s.queue = s.queue[i:]
			return
		}
	}
	s.queue = nil
}

func (s *Socket) write(msg string) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (s *Socket) readLoop(seq int, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.post(func() { s.lost(seq, err) })
			return
		}
		msg := string(data)
		if !s.post(func() { s.inbound(seq, msg) }) {
			return
		}
	}
}

func (s *Socket) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(
				websocket.PingMessage, nil,
				time.Now().Add(writeTimeout),
			); err != nil {
				return
			}
		}
	}
}

func (s *Socket) inbound(seq int, msg string) {
	if seq != s.connSeq || msg == Keepalive {
		return
	}
	s.dispatcher.Dispatch(msg)
	s.emit(msg)
}

// lost handles a connection that closed without being asked to.
func (s *Socket) lost(seq int, err error) {
	if seq != s.connSeq || s.conn == nil {
		return
	}
	s.dropConn()
	if s.announced {
		s.emit(SentinelClose)
		s.announced = false
	}
	s.lastErr = err
	s.state = StateReconnecting
	s.log.Warnw("socket closed unexpectedly", "url", s.url, "error", err)
	s.scheduleReconnect()
}

func (s *Socket) scheduleReconnect() {
	if s.timer != nil {
		return
	}
	s.timerSeq++
	seq := s.timerSeq
	s.timer = time.AfterFunc(s.backoff, func() {
		s.post(func() {
			if seq != s.timerSeq {
				return
			}
			s.timer = nil
			if s.state != StateReconnecting {
				return
			}
			s.reconnects++
			s.connect()
		})
	})
}

// Send writes msg, or queues it while a connection is being established.
func (s *Socket) Send(msg string) error {
	var err error
	ok := s.call(func() {
		switch s.state {
		case StateConnecting, StateReconnecting:
			s.queue = append(s.queue, msg)
		case StateOpen:
			if werr := s.write(msg); werr != nil {
				err = models.Errorf(models.KindTransportError, "send failed: %w", werr)
			}
		default:
			err = models.NewError(models.KindTransportError, "Not connected")
		}
	})
	if !ok {
		return models.WrapError(models.KindTransportError, ErrShutdown)
	}
	return err
}

// Close cancels any pending reconnect, closes the connection, clears the
// queue and detaches the event stream.
func (s *Socket) Close() {
	s.call(s.close)
}

func (s *Socket) close() {
	if s.state == StateIdle || s.state == StateClosed {
		return
	}
	s.shutdown(websocket.CloseNormalClosure)
	s.state = StateClosed
	s.log.Infow("socket closed", "url", s.url)
}

func (s *Socket) shutdown(code int) {
	s.teardown(code)
	s.queue = nil
	s.detachStream()
}

// teardown stops the timer, any dial in flight and the connection. Callbacks
// from them become no-ops.
func (s *Socket) teardown(code int) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerSeq++
	if s.dialCancel != nil {
		s.dialCancel()
		s.dialCancel = nil
	}
	s.connSeq++
	if s.conn != nil {
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""),
			time.Now().Add(writeTimeout))
		s.dropConn()
	}
}

func (s *Socket) dropConn() {
	close(s.connStop)
	s.conn.Close()
	s.conn = nil
	s.connStop = nil
}

func (s *Socket) emit(msg string) {
	if s.stream != nil {
		s.stream.push(msg)
	}
}

func (s *Socket) detachStream() {
	if s.stream == nil {
		return
	}
	if s.announced {
		s.stream.push(SentinelClose)
		s.announced = false
	}
	s.stream.close()
	s.stream = nil
}

type Status struct {
	State      string `json:"state"`
	URL        string `json:"url,omitempty"`
	Queued     int    `json:"queued"`
	Reconnects int    `json:"reconnects"`
	LastError  string `json:"lastError,omitempty"`
}

func (s *Socket) Status() Status {
	var st Status
	if !s.call(func() {
		st = Status{
			State:      s.state.String(),
			URL:        s.url,
			Queued:     len(s.queue),
			Reconnects: s.reconnects,
		}
		if s.lastErr != nil {
			st.LastError = s.lastErr.Error()
		}
	}) {
		st.State = StateClosed.String()
	}
	return st
}

// Stop closes the subscription and ends the actor goroutine.
func (s *Socket) Stop() {
	s.stopOnce.Do(func() { close(s.quit) })
	<-s.done
}
