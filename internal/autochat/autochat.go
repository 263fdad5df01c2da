// Package autochat supervises backend-driven multi-agent runs from the
// client side: the start/stop toggle, the thinking indicator and the run
// configuration. The backend performs the per-turn looping.
package autochat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/batalabs/convo/internal/domain"
	"github.com/batalabs/convo/internal/tab"
)

// ErrRunning is returned by Start while a run is still live on the tab.
var ErrRunning = errors.New("autochat is already running on this tab")

// Request is what the backend's auto-iteration entry point receives.
type Request struct {
	SessionID string                `json:"session_id"`
	Input     string                `json:"input,omitempty"`
	Files     []string              `json:"files,omitempty"`
	Config    domain.AutoChatConfig `json:"config"`
}

// Backend starts an automatic run. The call returns when the backend's loop
// ends; agent replies arrive as streamed turns meanwhile.
type Backend interface {
	StartAutoChat(ctx context.Context, req Request) error
}

type run struct {
	tab       *tab.Tab
	sessionID string
	cfg       domain.AutoChatConfig
	cancel    context.CancelFunc
	done      chan struct{}
	hold      tab.Hold

	observed int
	// released is set once the run no longer holds Thinking.
	released bool
}

// Controller tracks at most one run per tab.
type Controller struct {
	backend Backend
	alert   func(sessionID, text string)
	log     *zap.Logger

	mu   sync.Mutex
	runs map[string]*run
	last map[string]chan struct{}
}

// New returns a controller. alert may be nil.
func New(b Backend, alert func(sessionID, text string), log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{backend: b, alert: alert, log: log, runs: make(map[string]*run), last: make(map[string]chan struct{})}
}

// Start begins a run on t. It appends input as a user turn when non-empty,
// announces the iteration cap, sets Thinking and calls the backend once in
// the background.
func (c *Controller) Start(ctx context.Context, t *tab.Tab, input string, files []string, cfg domain.AutoChatConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if t.SessionID() == "" {
		return domain.ErrNoSession
	}

	c.mu.Lock()
	if prev, ok := c.runs[t.ID()]; ok {
		if !prev.released {
			c.mu.Unlock()
			return ErrRunning
		}
		// The previous run reached its cap but the backend call is still
		// open; abandon it.
		prev.cancel()
		delete(c.runs, t.ID())
	}
	hold, err := t.Acquire("autochat")
	if err != nil {
		c.mu.Unlock()
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		tab:       t,
		sessionID: t.SessionID(),
		cfg:       cfg,
		cancel:    cancel,
		done:      make(chan struct{}),
		hold:      hold,
	}
	c.runs[t.ID()] = r
	c.last[t.ID()] = r.done
	c.mu.Unlock()

	if input != "" {
		msg := domain.NewMessage(domain.KindUser, "you", input)
		msg.Attachments = files
		t.Append(msg)
	}
	t.Append(domain.SystemMessage(announce(cfg)))
	c.log.Info("autochat started",
		zap.String("session", r.sessionID),
		zap.Int("max_iterations", cfg.MaxIterations),
		zap.String("stop_condition", string(cfg.StopCondition)))

	req := Request{SessionID: r.sessionID, Input: input, Files: files, Config: cfg}
	go func() {
		err := c.backend.StartAutoChat(runCtx, req)
		c.finish(runCtx, r, err)
	}()
	return nil
}

func announce(cfg domain.AutoChatConfig) string {
	s := fmt.Sprintf("AutoChat started: up to %d turns", cfg.MaxIterations)
	if cfg.StopCondition == domain.StopUserInterrupt {
		s += ", runs until stopped"
	}
	if cfg.WebSearchEnabled {
		s += ", web search on"
	}
	return s
}

func (c *Controller) finish(runCtx context.Context, r *run, err error) {
	defer close(r.done)
	defer r.cancel()

	c.mu.Lock()
	if c.runs[r.tab.ID()] == r {
		delete(c.runs, r.tab.ID())
	}
	release := !r.released
	r.released = true
	observed := r.observed
	c.mu.Unlock()

	if release {
		r.hold.Release()
	}
	if err != nil && runCtx.Err() == nil {
		c.log.Warn("autochat failed", zap.String("session", r.sessionID), zap.Error(err))
		be := &domain.BackendError{Op: "autochat", Err: err}
		r.tab.Append(domain.ErrorMessage(be.Error()))
		if c.alert != nil {
			c.alert(r.sessionID, be.Error())
		}
		return
	}
	if release {
		r.tab.Append(domain.SystemMessage("AutoChat finished"))
	}
	c.log.Info("autochat finished", zap.String("session", r.sessionID), zap.Int("observed", observed))
}

// Stop ends the run on t and clears the Thinking state it holds, even when
// the backend call has not returned. Without a run it does nothing, so a
// dialogue in flight keeps the tab busy. Turns that arrive after Stop are
// still filed by the reconciler.
func (c *Controller) Stop(t *tab.Tab) bool {
	c.mu.Lock()
	r, ok := c.runs[t.ID()]
	if ok {
		delete(c.runs, t.ID())
		r.released = true
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	r.hold.Release()
	r.cancel()
	t.Append(domain.SystemMessage("AutoChat stopped"))
	c.log.Info("autochat stopped", zap.String("session", r.sessionID))
	return true
}

// Observe counts delivered agent turns. With the iteration-count stop
// condition, Thinking is cleared once the cap has been seen. An error turn
// has already ended Thinking, so it only marks the run released.
func (c *Controller) Observe(sessionID string, turn domain.DialogueTurn) {
	c.mu.Lock()
	var hit *run
	for _, r := range c.runs {
		if r.sessionID != sessionID || r.released {
			continue
		}
		if turn.IsError() {
			r.released = true
			break
		}
		r.observed++
		if r.cfg.StopCondition == domain.StopIterationCount && r.observed >= r.cfg.MaxIterations {
			r.released = true
			hit = r
		}
		break
	}
	c.mu.Unlock()
	if hit != nil {
		hit.hold.Release()
	}
}

// Running reports whether t has a run that still holds Thinking.
func (c *Controller) Running(t *tab.Tab) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.runs[t.ID()]
	return ok && !r.released
}

// Done returns a channel closed once the backend call of t's most recent
// run has returned and its final turns are filed.
func (c *Controller) Done(t *tab.Tab) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.last[t.ID()]; ok {
		return ch
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}

// StopAll cancels every run. Used on shutdown.
func (c *Controller) StopAll() {
	c.mu.Lock()
	runs := make([]*run, 0, len(c.runs))
	for _, r := range c.runs {
		runs = append(runs, r)
	}
	c.mu.Unlock()
	for _, r := range runs {
		c.Stop(r.tab)
		<-r.done
	}
}
