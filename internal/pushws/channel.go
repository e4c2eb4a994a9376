// Package pushws carries push-channel envelopes from the server to the
// sync engine. Socket is the production websocket transport; Loopback is
// an in-process channel for tests and embedded use.
package pushws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/pulsechat/pulse-go/internal/chatsync"
)

type Logger interface {
	Printf(format string, args ...any)
}

type Socket struct {
	url         string
	token       string
	httpClient  *http.Client
	dialTimeout time.Duration
	logger      Logger
}

func NewSocket(url, token string, logger Logger) *Socket {
	return &Socket{
		url:         strings.TrimSpace(url),
		token:       strings.TrimSpace(token),
		dialTimeout: 15 * time.Second,
		logger:      logger,
	}
}

// Subscribe dials the push endpoint and delivers every valid envelope to
// fn from a single reader goroutine, preserving the engine's
// single-dispatcher model. Malformed frames are logged and dropped. The
// subscription ends when Unsubscribe is called, ctx is canceled, or the
// connection fails; reconnecting is the caller's concern.
func (s *Socket) Subscribe(ctx context.Context, fn func(chatsync.Envelope)) (chatsync.Subscription, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.dialTimeout)
	defer cancel()

	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}
	conn, _, err := websocket.Dial(dialCtx, s.url, &websocket.DialOptions{
		HTTPHeader: header,
		HTTPClient: s.httpClient,
	})
	if err != nil {
		return nil, err
	}

	readCtx, stop := context.WithCancel(context.Background())
	sub := &socketSubscription{conn: conn, stop: stop, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		for {
			_, data, err := conn.Read(readCtx)
			if err != nil {
				if readCtx.Err() == nil {
					s.logf("push channel read ended: %v", err)
				}
				return
			}
			env, err := chatsync.DecodeEnvelope(data)
			if err != nil {
				s.logf("dropping push frame: %v", err)
				continue
			}
			fn(env)
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Unsubscribe()
		case <-sub.done:
		}
	}()
	return sub, nil
}

func (s *Socket) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

type socketSubscription struct {
	conn *websocket.Conn
	stop context.CancelFunc
	done chan struct{}
	once sync.Once
}

func (s *socketSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.stop()
		_ = s.conn.Close(websocket.StatusNormalClosure, "unsubscribed")
	})
	<-s.done
	return nil
}

// Done is closed when the reader goroutine exits, whether from
// Unsubscribe, context cancellation, or a connection failure.
func (s *socketSubscription) Done() <-chan struct{} {
	return s.done
}

// Loopback is an in-memory push channel: Publish delivers the envelope
// synchronously to every live subscriber.
type Loopback struct {
	mu   sync.Mutex
	subs map[int]func(chatsync.Envelope)
	next int
}

func NewLoopback() *Loopback {
	return &Loopback{subs: map[int]func(chatsync.Envelope){}}
}

func (l *Loopback) Subscribe(ctx context.Context, fn func(chatsync.Envelope)) (chatsync.Subscription, error) {
	l.mu.Lock()
	id := l.next
	l.next++
	l.subs[id] = fn
	l.mu.Unlock()

	sub := &loopbackSubscription{loopback: l, id: id, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Unsubscribe()
		case <-sub.done:
		}
	}()
	return sub, nil
}

func (l *Loopback) Publish(env chatsync.Envelope) {
	l.mu.Lock()
	fns := make([]func(chatsync.Envelope), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(env)
	}
}

func (l *Loopback) SubscriberCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

type loopbackSubscription struct {
	loopback *Loopback
	id       int
	done     chan struct{}
	once     sync.Once
}

func (s *loopbackSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.loopback.mu.Lock()
		delete(s.loopback.subs, s.id)
		s.loopback.mu.Unlock()
		close(s.done)
	})
	return nil
}

func (s *loopbackSubscription) Done() <-chan struct{} {
	return s.done
}
