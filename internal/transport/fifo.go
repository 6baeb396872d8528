package transport

import "sync"

// fifo is an unbounded string queue between producers and one consumer
// reading Out. Push never blocks on a slow consumer.
type fifo struct {
	in       chan string
	closing  chan struct{}
	stop     chan struct{}
	out      chan string
	finished chan struct{}

	closeOnce sync.Once
	stopOnce  sync.Once
}

func newFIFO() *fifo {
	f := &fifo{
		in:       make(chan string),
		closing:  make(chan struct{}),
		stop:     make(chan struct{}),
		out:      make(chan string),
		finished: make(chan struct{}),
	}
	go f.run()
	return f
}

func (f *fifo) Out() <-chan string {
	return f.out
}

// push appends s. After close or abandon it is dropped.
func (f *fifo) push(s string) {
	select {
	case f.in <- s:
	case <-f.closing:
	case <-f.finished:
	}
}

// close delivers what is buffered, then closes Out.
func (f *fifo) close() {
	f.closeOnce.Do(func() { close(f.closing) })
}

// abandon discards the buffer and closes Out right away.
func (f *fifo) abandon() {
	f.stopOnce.Do(func() { close(f.stop) })
}

func (f *fifo) run() {
	defer close(f.finished)
	defer close(f.out)

	var buf []string
	in, closing := f.in, f.closing
	for in != nil || len(buf) > 0 {
		var send chan string
		var next string
		if len(buf) > 0 {
			send = f.out
			next = buf[0]
		}
		select {
		case s := <-in:
			buf = append(buf, s)
		case <-closing:
			in, closing = nil, nil
		case send <- next:
			buf[0] = ""
			buf = buf[1:]
		case <-f.stop:
			return
		}
	}
}
