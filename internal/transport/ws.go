// Package transport maintains the push channel that tells a client "refetch
// now". Payloads are advisory only; the sole contractually meaningful message
// type is room_closed.
package transport

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// MessageRoomClosed tells the consumer to abandon all local session state
// instead of refetching.
const MessageRoomClosed = "room_closed"

const defaultBackoff = 3 * time.Second

// Message is a parsed push-channel frame.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Handler receives each well-formed message. It is called from the
// subscriber's goroutine; a slow handler delays subsequent messages.
type Handler func(Message)

// Subscriber owns one reconnecting WebSocket channel. Its lifecycle is scoped
// to the view that created it: Close disarms reconnection and shuts the
// socket, and is safe to call more than once.
type Subscriber struct {
	url     string
	handler Handler
	log     *logrus.Logger
	backoff time.Duration
	dialer  *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	done   chan struct{}
}

// Option customizes a Subscriber.
type Option func(*Subscriber)

// WithBackoff overrides the fixed reconnect delay.
func WithBackoff(d time.Duration) Option {
	return func(s *Subscriber) { s.backoff = d }
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Logger) Option {
	return func(s *Subscriber) { s.log = log }
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(s *Subscriber) { s.dialer = d }
}

// Subscribe opens the channel at url and keeps it open: any drop is retried
// after a fixed backoff, forever, until Close.
func Subscribe(url string, handler Handler, opts ...Option) *Subscriber {
	s := &Subscriber{
		url:     url,
		handler: handler,
		log:     logrus.StandardLogger(),
		backoff: defaultBackoff,
		dialer:  websocket.DefaultDialer,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

// Close disarms the reconnect loop, then closes the current connection.
// Idempotent.
func (s *Subscriber) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (s *Subscriber) run() {
	for {
		conn, _, err := s.dialer.Dial(s.url, nil)
		if err != nil {
			s.log.Warnf("transport: dial %s: %v", s.url, err)
		} else {
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				conn.Close()
				return
			}
			s.conn = conn
			s.mu.Unlock()

			s.readLoop(conn)

			s.mu.Lock()
			s.conn = nil
			s.mu.Unlock()
		}

		select {
		case <-s.done:
			return
		case <-time.After(s.backoff):
		}
	}
}

// readLoop delivers messages until the connection drops. Frames that do not
// parse as a typed message are dropped.
func (s *Subscriber) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.log.Warnf("transport: read: %v", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			continue
		}
		s.handler(msg)
	}
}
