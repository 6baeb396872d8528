package transport

import (
	"sync"

	"go.uber.org/zap"
)

const (
	// Keepalive frames from the room server are consumed here.
	Keepalive = "-"

	SentinelOpen  = "+open"
	SentinelClose = "+close"
)

// Listener receives every inbound application frame. Implementations must be
// comparable (typically a pointer) so they can be removed.
type Listener interface {
	OnMessage(msg string)
}

// Dispatcher fans inbound frames out to registered listeners in
// registration order. Delivery runs on the dispatcher's own goroutine, so a
// listener may call back into the socket.
type Dispatcher struct {
	log   *zap.SugaredLogger
	queue *fifo
	done  chan struct{}

	mu        sync.Mutex
	listeners []Listener
}

func NewDispatcher(log *zap.SugaredLogger) *Dispatcher {
	d := &Dispatcher{
		log:   log,
		queue: newFIFO(),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

// AddListener registers l. Adding a registered listener is a no-op.
func (d *Dispatcher) AddListener(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.listeners {
		if existing == l {
			return
		}
	}
	d.listeners = append(d.listeners, l)
}

// RemoveListener unregisters l. Removing an unknown listener is a no-op.
func (d *Dispatcher) RemoveListener(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.listeners {
		if existing == l {
			d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
			return
		}
	}
}

func (d *Dispatcher) Listeners() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}

// Dispatch queues msg for delivery. Keepalive frames are dropped.
func (d *Dispatcher) Dispatch(msg string) {
	if msg == Keepalive {
		return
	}
	d.queue.push(msg)
}

// Close delivers queued frames and stops the delivery goroutine.
func (d *Dispatcher) Close() {
	d.queue.close()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for msg := range d.queue.Out() {
		d.mu.Lock()
		listeners := append([]Listener(nil), d.listeners...)
		d.mu.Unlock()

		for _, l := range listeners {
			d.deliver(l, msg)
		}
	}
}

func (d *Dispatcher) deliver(l Listener, msg string) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorw("listener panicked", "panic", r)
		}
	}()
	l.OnMessage(msg)
}
