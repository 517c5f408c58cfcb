// Package pubsub provides an event broadcasting channel between server
// instances. Presence events for study rooms travel through it; delivery is
// best-effort and consumers must be able to rebuild state by re-querying.
package pubsub

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/xerrors"
)

// Listener represents a pubsub handler.
type Listener func(ctx context.Context, message []byte)

// ListenerWithErr represents a pubsub handler that can also receive error
// indications. The err argument is non-nil when messages may have been
// dropped, e.g. after a reconnect of the underlying connection.
type ListenerWithErr func(ctx context.Context, message []byte, err error)

// ErrDroppedMessages is sent to ListenerWithErr when messages are dropped or
// might have been dropped.
var ErrDroppedMessages = xerrors.New("dropped messages")

// Pubsub is a generic interface for broadcasting and receiving messages.
// Implementors should assume high-availability with the backing implementation.
type Pubsub interface {
	Subscribe(event string, listener Listener) (cancel func(), err error)
	SubscribeWithErr(event string, listener ListenerWithErr) (cancel func(), err error)
	Publish(event string, message []byte) error
	Close() error
}

type pgPubsub struct {
	ctx        context.Context
	cancel     context.CancelFunc
	listenDone chan struct{}
	db         *sql.DB
	pgListener *pq.Listener

	mut       sync.Mutex
	listeners map[string]map[uuid.UUID]genericListener
}

// New creates a Pubsub implementation using a PostgreSQL connection.
func New(ctx context.Context, db *sql.DB, connectURL string) (Pubsub, error) {
	// Creates a new listener using pq.
	errCh := make(chan error)
	listener := pq.NewListener(connectURL, time.Second, time.Minute, func(_ pq.ListenerEventType, err error) {
		// This callback gets events whenever the connection state changes.
		// Don't send if the channel is already closed.
		select {
		case <-errCh:
			return
		default:
		}
		errCh <- err
		close(errCh)
	})
	select {
	case err := <-errCh:
		if err != nil {
			_ = listener.Close()
			return nil, xerrors.Errorf("create pq listener: %w", err)
		}
	case <-ctx.Done():
		_ = listener.Close()
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(ctx)
	pubsub := &pgPubsub{
		ctx:        ctx,
		cancel:     cancel,
		listenDone: make(chan struct{}),
		db:         db,
		pgListener: listener,
		listeners:  make(map[string]map[uuid.UUID]genericListener),
	}
	go pubsub.listen()

	return pubsub, nil
}

func (p *pgPubsub) Subscribe(event string, listener Listener) (cancel func(), err error) {
	return p.subscribeQueue(event, genericListener{l: listener})
}

func (p *pgPubsub) SubscribeWithErr(event string, listener ListenerWithErr) (cancel func(), err error) {
	return p.subscribeQueue(event, genericListener{le: listener})
}

func (p *pgPubsub) subscribeQueue(event string, listener genericListener) (cancel func(), err error) {
	p.mut.Lock()
	defer p.mut.Unlock()

	err = p.pgListener.Listen(event)
	if err != nil && !xerrors.Is(err, pq.ErrChannelAlreadyOpen) {
		return nil, xerrors.Errorf("listen: %w", err)
	}

	var listeners map[uuid.UUID]genericListener
	var ok bool
	if listeners, ok = p.listeners[event]; !ok {
		listeners = map[uuid.UUID]genericListener{}
		p.listeners[event] = listeners
	}
	id := uuid.New()
	listeners[id] = listener
	return func() {
		p.mut.Lock()
		defer p.mut.Unlock()
		listeners := p.listeners[event]
		delete(listeners, id)

		if len(listeners) == 0 {
			_ = p.pgListener.Unlisten(event)
		}
	}, nil
}

func (p *pgPubsub) Publish(event string, message []byte) error {
	// This is safe because we are calling pq.QuoteLiteral. pg_notify doesn't
	// support the first argument being a prepared statement.
	//nolint:gosec
	_, err := p.db.ExecContext(p.ctx, `select pg_notify(`+pq.QuoteLiteral(event)+`, $1)`, message)
	if err != nil {
		return xerrors.Errorf("exec pg_notify: %w", err)
	}
	return nil
}

func (p *pgPubsub) Close() error {
	p.cancel()
	err := p.pgListener.Close()
	<-p.listenDone
	return err
}

// listen begins receiving messages on the pq listener.
func (p *pgPubsub) listen() {
	defer close(p.listenDone)

	var (
		notif *pq.Notification
		ok    bool
	)
	for {
		select {
		case <-p.ctx.Done():
			return
		case notif, ok = <-p.pgListener.Notify:
			if !ok {
				return
			}
		}
		// A nil notification can be dispatched on reconnect.
		if notif == nil {
			p.recordReconnect()
			continue
		}
		p.listenReceive(notif)
	}
}

func (p *pgPubsub) listenReceive(notif *pq.Notification) {
	p.mut.Lock()
	defer p.mut.Unlock()

	listeners := p.listeners[notif.Channel]
	extra := []byte(notif.Extra)
	for _, listener := range listeners {
		listener.send(p.ctx, extra)
	}
}

func (p *pgPubsub) recordReconnect() {
	p.mut.Lock()
	defer p.mut.Unlock()

	// Until the reconnect completed, any number of notifications were lost.
	// Error-aware listeners get told so they can re-query.
	for _, listeners := range p.listeners {
		for _, listener := range listeners {
			if listener.le != nil {
				listener.le(p.ctx, nil, ErrDroppedMessages)
			}
		}
	}
}
