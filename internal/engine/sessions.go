package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/batalabs/convo/internal/domain"
	"github.com/batalabs/convo/internal/store"
	"github.com/batalabs/convo/internal/tab"
)

// Bootstrap opens the first tab on the backend's active session, creating
// a session when there is none. When the backend is unreachable the
// workspace's most recent stored session is opened instead, or a tab with
// no session when nothing is stored, so local commands keep working.
func (e *Engine) Bootstrap(ctx context.Context) (*tab.Tab, error) {
	if t, ok := e.tabs.Active(); ok {
		return t, nil
	}
	if e.backend == nil {
		return e.tabs.Open("", nil), nil
	}
	sess, err := e.backend.GetActiveSession(ctx)
	if err != nil {
		e.log.Warn("no active session", zap.Error(err))
		t := e.openLatestStored(ctx)
		t.Append(domain.ErrorMessage("backend unavailable: " + err.Error()))
		return t, err
	}
	if sess.ID == "" {
		return e.NewSession(ctx)
	}
	t, err := e.OpenSession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	t.SetAwaiting(sess.Awaiting())
	e.saveSession(ctx, sess)
	return t, nil
}

// openLatestStored opens the workspace's most recently updated stored
// session with its history.
func (e *Engine) openLatestStored(ctx context.Context) *tab.Tab {
	if e.store == nil {
		return e.tabs.Open("", nil)
	}
	latest, err := e.store.LatestSession(ctx, e.workspace.Root)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.log.Warn("latest stored session", zap.Error(err))
		}
		return e.tabs.Open("", nil)
	}
	sh, err := e.store.SessionWithHistory(ctx, latest.ID)
	if err != nil {
		e.log.Warn("load stored session", zap.String("session", latest.ID), zap.Error(err))
		return e.tabs.Open("", nil)
	}
	e.log.Info("opened stored session", zap.String("session", sh.Session.ID), zap.Int("messages", len(sh.Messages)))
	history := append(sh.Messages, e.reconciler.Drain(sh.Session.ID)...)
	t := e.tabs.Open(sh.Session.ID, history)
	e.changed()
	return t
}

// OpenSession focuses the tab bound to sessionID, opening one hydrated from
// the stored history when none is open. Turns buffered while the session
// had no tab are appended after the history.
func (e *Engine) OpenSession(ctx context.Context, sessionID string) (*tab.Tab, error) {
	if t, ok := e.tabs.BySession(sessionID); ok {
		if err := e.tabs.SetActive(t.ID()); err != nil {
			return nil, err
		}
		return t, nil
	}
	history, err := e.history(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	history = append(history, e.reconciler.Drain(sessionID)...)
	t := e.tabs.Open(sessionID, history)
	e.changed()
	return t, nil
}

// NewSession creates a backend session for the workspace and opens it in a
// new tab.
func (e *Engine) NewSession(ctx context.Context) (*tab.Tab, error) {
	if e.backend == nil {
		return nil, &domain.BackendError{Op: "create session", Err: errors.New("not configured")}
	}
	id, err := e.backend.CreateSession(ctx, e.workspace.Root)
	if err != nil {
		return nil, err
	}
	e.saveSession(ctx, domain.Session{ID: id, ProjectPath: e.workspace.Root})
	t := e.tabs.Open(id, nil)
	t.Append(domain.SystemMessage("New session started."))
	e.changed()
	return t, nil
}

// SwitchSession rebinds t to another session. The tab is replaced by a
// fresh one, hydrated from the stored history when there is any and from
// the backend's transcript otherwise. A short id prefix is expanded via
// the store.
func (e *Engine) SwitchSession(ctx context.Context, t *tab.Tab, sessionID string) (*tab.Tab, error) {
	if e.backend == nil {
		return nil, &domain.BackendError{Op: "switch session", Err: errors.New("not configured")}
	}
	if t.Thinking() {
		return nil, domain.ErrTabBusy
	}
	sessionID = e.expandSessionID(ctx, sessionID)
	if other, ok := e.tabs.BySession(sessionID); ok && other.ID() != t.ID() {
		return nil, fmt.Errorf("session %s is already open in another tab", sessionID)
	}

	sh, err := e.backend.SwitchSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sh.Session.ID == "" {
		sh.Session.ID = sessionID
	}
	history, err := e.history(ctx, sh.Session.ID)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		history = sh.Messages
		e.persistHistory(ctx, sh.Session.ID, history)
	}
	history = append(history, e.reconciler.Drain(sh.Session.ID)...)

	e.autochat.Stop(t)
	nt, err := e.tabs.Replace(t.ID(), sh.Session.ID, history)
	if err != nil {
		return nil, err
	}
	nt.SetAwaiting(sh.Session.Awaiting())
	e.saveSession(ctx, sh.Session)
	e.changed()
	return nt, nil
}

// CloseTab stops any AutoChat run on the tab and closes it.
func (e *Engine) CloseTab(id string) error {
	t, ok := e.tabs.Get(id)
	if !ok {
		return domain.ErrTabNotFound
	}
	e.autochat.Stop(t)
	if err := e.tabs.Close(id); err != nil {
		return err
	}
	e.changed()
	return nil
}

// Refresh re-reads the backend's active session and updates the awaiting
// state of its tab. It opens a tab when none is open.
func (e *Engine) Refresh(ctx context.Context) error {
	if e.backend == nil {
		return nil
	}
	sess, err := e.backend.GetActiveSession(ctx)
	if err != nil {
		return err
	}
	defer e.changed()
	if sess.ID == "" {
		return nil
	}
	e.saveSession(ctx, sess)
	if t, ok := e.tabs.BySession(sess.ID); ok {
		t.SetAwaiting(sess.Awaiting())
		return nil
	}
	if e.tabs.Len() == 0 {
		t, err := e.OpenSession(ctx, sess.ID)
		if err != nil {
			return err
		}
		t.SetAwaiting(sess.Awaiting())
	}
	return nil
}

func (e *Engine) history(ctx context.Context, sessionID string) ([]domain.Message, error) {
	if e.store == nil {
		return nil, nil
	}
	msgs, err := e.store.GetMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return msgs, nil
}

func (e *Engine) persistHistory(ctx context.Context, sessionID string, msgs []domain.Message) {
	if e.store == nil {
		return
	}
	for _, m := range msgs {
		if err := e.store.AppendMessage(ctx, sessionID, m); err != nil {
			e.log.Warn("persist history", zap.String("session", sessionID), zap.Error(err))
			return
		}
	}
}

func (e *Engine) saveSession(ctx context.Context, sess domain.Session) {
	if e.store == nil || sess.ID == "" {
		return
	}
	if sess.ProjectPath == "" {
		sess.ProjectPath = e.workspace.Root
	}
	if err := e.store.UpsertSession(ctx, sess); err != nil {
		e.log.Warn("save session", zap.String("session", sess.ID), zap.Error(err))
	}
}

func (e *Engine) expandSessionID(ctx context.Context, id string) string {
	if e.store == nil || len(id) >= 32 {
		return id
	}
	sess, err := e.store.FindSessionByPrefix(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.log.Debug("session prefix lookup", zap.String("prefix", id), zap.Error(err))
		}
		return id
	}
	return sess.ID
}

// RecentSessions lists stored sessions of the workspace, most recent first.
func (e *Engine) RecentSessions(ctx context.Context, limit int) ([]domain.Session, error) {
	if e.store == nil {
		return nil, errNoStore
	}
	return e.store.ListSessions(ctx, e.workspace.Root, limit)
}

// DeleteSession removes a stored session and its history. A session open
// in a tab is kept.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	if e.store == nil {
		return errNoStore
	}
	if _, ok := e.tabs.BySession(sessionID); ok {
		return fmt.Errorf("session %s is open in a tab", sessionID)
	}
	return e.store.DeleteSession(ctx, sessionID)
}
