// Package engine wires the parser, the command registry, the dispatcher,
// the tabs, the reconciler and the AutoChat controller into one client.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/batalabs/convo/internal/autochat"
	"github.com/batalabs/convo/internal/command"
	"github.com/batalabs/convo/internal/config"
	"github.com/batalabs/convo/internal/dispatch"
	"github.com/batalabs/convo/internal/domain"
	"github.com/batalabs/convo/internal/input"
	"github.com/batalabs/convo/internal/reconcile"
	"github.com/batalabs/convo/internal/store"
	"github.com/batalabs/convo/internal/tab"
	"github.com/batalabs/convo/internal/workspace"
)

// Backend is the agent-execution service. daemon.Client implements it.
type Backend interface {
	DispatchDialogue(ctx context.Context, sessionID, text string, files []string) ([]domain.DialogueTurn, error)
	StartAutoChat(ctx context.Context, req autochat.Request) error
	RunAction(ctx context.Context, req dispatch.ActionRequest) (dispatch.ActionReply, error)
	StartTask(ctx context.Context, sessionID, description string) error
	GetActiveSession(ctx context.Context) (domain.Session, error)
	SwitchSession(ctx context.Context, sessionID string) (domain.SessionWithHistory, error)
	CreateSession(ctx context.Context, projectPath string) (string, error)
	Subscribe(ctx context.Context, out chan<- domain.Event) error
}

// healthChecker is implemented by backends that report their health before
// the event stream is opened. daemon.Client is one.
type healthChecker interface {
	Health(ctx context.Context) error
	BaseURL() string
}

// Options holds the collaborators of an Engine. Store and Shell may be nil.
type Options struct {
	Backend   Backend
	Store     *store.Store
	Workspace *workspace.Workspace
	Shell     dispatch.ShellRunner
	Prefs     config.Preferences
	Logger    *zap.Logger
	// SubscribeRetry is the pause between event stream reconnects.
	SubscribeRetry time.Duration
}

// Engine is the client-side orchestration layer. Its methods are safe to
// call from the UI goroutine while Run is active.
type Engine struct {
	backend   Backend
	store     *store.Store
	workspace *workspace.Workspace
	log       *zap.Logger

	tabs       *tab.Manager
	registry   *command.Registry
	dispatcher *dispatch.Dispatcher
	reconciler *reconcile.Reconciler
	autochat   *autochat.Controller
	events     chan domain.Event
	retry      time.Duration

	mu       sync.RWMutex
	prefs    config.Preferences
	parser   input.Parser
	onAlert  func(sessionID, text string)
	onChange func()
}

// New builds an engine. Call LoadCommands and Bootstrap before use.
func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ws := opts.Workspace
	if ws == nil {
		ws = workspace.New(".")
	}
	bufSize := opts.Prefs.EventsBuffer
	if bufSize < 1 {
		bufSize = config.DefaultPreferences().EventsBuffer
	}
	retry := opts.SubscribeRetry
	if retry <= 0 {
		retry = 2 * time.Second
	}

	e := &Engine{
		backend:   opts.Backend,
		store:     opts.Store,
		workspace: ws,
		log:       log,
		tabs:      tab.NewManager(),
		registry:  command.NewRegistry(),
		events:    make(chan domain.Event, bufSize),
		retry:     retry,
	}
	e.setPrefs(opts.Prefs)

	var ac autochat.Backend
	if opts.Backend != nil {
		ac = opts.Backend
	}
	e.autochat = autochat.New(ac, e.alert, log.Named("autochat"))

	cfg := dispatch.Config{
		Registry: e.registry,
		Submit:   e,
		Logger:   log.Named("dispatch"),
	}
	if opts.Shell != nil {
		cfg.Shell = opts.Shell
	}
	if opts.Backend != nil {
		cfg.Tasks = opts.Backend
		cfg.Actions = opts.Backend
	}
	e.dispatcher = dispatch.New(cfg)

	rops := []reconcile.Option{
		reconcile.WithAlert(e.alert),
		reconcile.WithRefresh(func(ctx context.Context) {
			if err := e.Refresh(ctx); err != nil {
				log.Warn("refresh after workspace switch", zap.Error(err))
			}
		}),
		reconcile.WithObserver(e),
		reconcile.WithLogger(log.Named("reconcile")),
	}
	if opts.Store != nil {
		rops = append(rops, reconcile.WithStore(opts.Store))
	}
	e.reconciler = reconcile.New(e.tabs, rops...)
	return e
}

// Tabs returns the tab manager.
func (e *Engine) Tabs() *tab.Manager { return e.tabs }

// Registry returns the command registry.
func (e *Engine) Registry() *command.Registry { return e.registry }

// Workspace returns the workspace commands expand against.
func (e *Engine) Workspace() *workspace.Workspace { return e.workspace }

// AutoChat returns the AutoChat controller.
func (e *Engine) AutoChat() *autochat.Controller { return e.autochat }

// Prefs returns a copy of the current preferences.
func (e *Engine) Prefs() config.Preferences {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.prefs
}

// Parser returns the input parser for the current preferences.
func (e *Engine) Parser() input.Parser {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.parser
}

func (e *Engine) setPrefs(p config.Preferences) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prefs = p
	e.parser = input.Parser{Prefix: p.CommandPrefix, Delimiter: p.MentionRune()}
}

// OnAlert sets the hook for transient user-visible alerts.
func (e *Engine) OnAlert(fn func(sessionID, text string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onAlert = fn
}

// OnChange sets the hook run after asynchronous tab changes, such as a
// streamed turn being filed.
func (e *Engine) OnChange(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChange = fn
}

func (e *Engine) alert(sessionID, text string) {
	e.mu.RLock()
	fn := e.onAlert
	e.mu.RUnlock()
	e.log.Info("alert", zap.String("session", sessionID), zap.String("text", text))
	if fn != nil {
		fn(sessionID, text)
	}
}

func (e *Engine) changed() {
	e.mu.RLock()
	fn := e.onChange
	e.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Observe implements reconcile.Observer.
func (e *Engine) Observe(sessionID string, turn domain.DialogueTurn) {
	e.autochat.Observe(sessionID, turn)
	e.changed()
}

// Deliver queues a backend event for the reconciler. It blocks when the
// buffer is full.
func (e *Engine) Deliver(ctx context.Context, ev domain.Event) error {
	select {
	case e.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run supervises the reconciler, the backend event subscription and the
// command library watcher until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.reconciler.Run(ctx, e.events)
	})

	if e.backend != nil {
		g.Go(func() error {
			return e.subscribe(ctx)
		})
	}

	if path := e.Prefs().CommandsFilePath(); path != "" {
		w := command.NewWatcher(path, func() {
			if err := e.LoadCommands(ctx); err != nil {
				e.log.Warn("reload commands", zap.String("path", path), zap.Error(err))
				e.alert("", "command library not reloaded: "+err.Error())
			}
			e.changed()
		}, e.log.Named("watcher"))
		// Live reload is optional; a watcher failure only disables it.
		g.Go(func() error {
			if err := w.Run(ctx); err != nil {
				e.log.Warn("command watcher stopped", zap.Error(err))
			}
			return nil
		})
	}

	err := g.Wait()
	e.autochat.StopAll()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// subscribe keeps the backend event stream open, reconnecting after the
// stream ends or fails. A backend that reports itself unhealthy is not
// subscribed to until the next retry.
func (e *Engine) subscribe(ctx context.Context) error {
	hc, _ := e.backend.(healthChecker)
	for {
		var err error
		if hc != nil {
			if err = hc.Health(ctx); err != nil {
				err = fmt.Errorf("service at %s: %w", hc.BaseURL(), err)
			}
		}
		if err == nil {
			err = e.backend.Subscribe(ctx, e.events)
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			e.log.Warn("event stream", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(e.retry):
		}
	}
}

// persistSince stores the turns appended to t from index before onward.
// Turns already stored by the reconciler are skipped by the store.
func (e *Engine) persistSince(ctx context.Context, t *tab.Tab, before int) {
	if e.store == nil || t == nil || t.SessionID() == "" {
		return
	}
	msgs := t.Messages()
	if before < 0 || before > len(msgs) {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, m := range msgs[before:] {
		if err := e.store.AppendMessage(ctx, t.SessionID(), m); err != nil {
			e.log.Warn("persist turn", zap.String("session", t.SessionID()), zap.Error(err))
		}
	}
}
