// Package reconcile files asynchronously streamed dialogue turns into the
// transcripts of the tabs they belong to.
package reconcile

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/batalabs/convo/internal/domain"
	"github.com/batalabs/convo/internal/tab"
)

// HistoryStore persists turns into a session's history.
type HistoryStore interface {
	AppendMessage(ctx context.Context, sessionID string, msg domain.Message) error
}

// Observer is notified after every delivered dialogue turn. SessionID is
// the session the turn was filed under.
type Observer interface {
	Observe(sessionID string, turn domain.DialogueTurn)
}

// Reconciler drains one event channel and routes each turn to its tab.
// Turns are appended in arrival order and never deduplicated.
type Reconciler struct {
	tabs      *tab.Manager
	store     HistoryStore
	alert     func(sessionID, text string)
	refresh   func(ctx context.Context)
	observers []Observer
	log       *zap.Logger

	mu      sync.Mutex
	pending map[string][]domain.Message
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithStore persists every turn to the session's history.
func WithStore(s HistoryStore) Option {
	return func(r *Reconciler) { r.store = s }
}

// WithAlert sets the hook fired for streamed error turns.
func WithAlert(fn func(sessionID, text string)) Option {
	return func(r *Reconciler) { r.alert = fn }
}

// WithRefresh sets the hook run when the backend switches workspace.
func WithRefresh(fn func(ctx context.Context)) Option {
	return func(r *Reconciler) { r.refresh = fn }
}

// WithObserver registers an observer of delivered turns.
func WithObserver(o Observer) Option {
	return func(r *Reconciler) { r.observers = append(r.observers, o) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) { r.log = l }
}

// New returns a reconciler for the tabs held by m.
func New(m *tab.Manager, opts ...Option) *Reconciler {
	r := &Reconciler{
		tabs:    m,
		log:     zap.NewNop(),
		pending: make(map[string][]domain.Message),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run consumes events until ctx is done or the channel is closed.
func (r *Reconciler) Run(ctx context.Context, events <-chan domain.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.Deliver(ctx, ev)
		}
	}
}

// Deliver applies one event.
func (r *Reconciler) Deliver(ctx context.Context, ev domain.Event) {
	switch ev := ev.(type) {
	case domain.DialogueTurn:
		r.deliverTurn(ctx, ev)
	case domain.WorkspaceSwitched:
		r.log.Info("workspace switched")
		if r.refresh != nil {
			r.refresh(ctx)
		}
	default:
		r.log.Warn("unknown event", zap.Any("event", ev))
	}
}

func (r *Reconciler) deliverTurn(ctx context.Context, turn domain.DialogueTurn) {
	var (
		t  *tab.Tab
		ok bool
	)
	sessionID := turn.SessionID
	if sessionID == "" {
		if t, ok = r.tabs.Active(); ok {
			sessionID = t.SessionID()
		}
	} else {
		t, ok = r.tabs.BySession(sessionID)
	}

	msg := turn.Message()
	if r.store != nil && sessionID != "" {
		if err := r.store.AppendMessage(ctx, sessionID, msg); err != nil {
			r.log.Warn("persist streamed turn", zap.String("session", sessionID), zap.Error(err))
			if !ok {
				r.buffer(sessionID, msg)
			}
		}
	} else if !ok {
		r.buffer(sessionID, msg)
	}

	if ok {
		t.Append(msg)
		if turn.IsError() {
			t.EndThinking()
		}
	}
	if turn.IsError() {
		r.log.Info("streamed error turn", zap.String("session", sessionID), zap.String("content", turn.Content))
		if r.alert != nil {
			r.alert(sessionID, turn.Content)
		}
	}
	for _, o := range r.observers {
		o.Observe(sessionID, turn)
	}
}

func (r *Reconciler) buffer(sessionID string, msg domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[sessionID] = append(r.pending[sessionID], msg)
}

// Drain returns and forgets the turns buffered for a session whose tab was
// not open when they arrived.
func (r *Reconciler) Drain(sessionID string) []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.pending[sessionID]
	delete(r.pending, sessionID)
	return msgs
}

// Pending returns the number of buffered turns for a session.
func (r *Reconciler) Pending(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending[sessionID])
}
