// Package session owns named logical sessions against the gateway.
//
// A session handle is validated lazily before use; a handle that fails its
// liveness check is removed and silently replaced by a fresh session named
// "default" on the same connection. Recovery is a first-class operation, not
// an error path.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamsql/workbench/pkg/errors"
	"github.com/streamsql/workbench/pkg/models"
	"github.com/streamsql/workbench/pkg/store"
)

// Gateway is the slice of the gateway client the registry needs.
type Gateway interface {
	OpenSession(ctx context.Context, name string, properties map[string]string) (string, error)
	SessionAlive(ctx context.Context, handle string) error
	CloseSession(ctx context.Context, handle string) error
}

// ClientFactory builds a gateway client for a connection's gateway URL.
type ClientFactory func(gatewayURL string) Gateway

// ChangeListener is notified when the active session changes, carrying the
// session and its connection so consumers can re-point their clients.
type ChangeListener func(session models.Session, conn models.Connection)

// Registry manages the session list and the single active-session pointer,
// persisting through the injected store after each mutation.
type Registry struct {
	mu        sync.Mutex
	store     store.Store
	factory   ClientFactory
	logger    zerolog.Logger
	listeners []ChangeListener
	// Session properties applied when opening new sessions.
	properties map[string]string
}

// NewRegistry creates a session registry.
func NewRegistry(st store.Store, factory ClientFactory, logger zerolog.Logger) *Registry {
	return &Registry{
		store:   st,
		factory: factory,
		logger:  logger.With().Str("component", "session-registry").Logger(),
	}
}

// SetSessionProperties sets the gateway properties for newly opened sessions.
func (r *Registry) SetSessionProperties(props map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.properties = props
}

// Subscribe registers a listener for active-session changes.
func (r *Registry) Subscribe(fn ChangeListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Registry) notify(session models.Session, conn models.Connection) {
	for _, fn := range r.listeners {
		fn(session, conn)
	}
}

// Sessions lists all registered sessions.
func (r *Registry) Sessions() ([]models.Session, error) {
	state, err := r.store.Load()
	if err != nil {
		return nil, err
	}
	return state.Sessions, nil
}

// ActiveSession returns the active session, or nil if none is active.
func (r *Registry) ActiveSession() (*models.Session, error) {
	state, err := r.store.Load()
	if err != nil {
		return nil, err
	}
	return findSession(state, state.ActiveHandle), nil
}

// CreateSession opens a new session on the gateway and registers it as the
// active session. The target connection is the explicit one when given, the
// single available one otherwise; with several connections and no explicit
// choice the caller must pick.
func (r *Registry) CreateSession(ctx context.Context, name, connectionID string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, err := r.store.Load()
	if err != nil {
		return nil, err
	}
	return r.createSessionLocked(ctx, state, name, connectionID)
}

func (r *Registry) createSessionLocked(ctx context.Context, state *store.State, name, connectionID string) (*models.Session, error) {
	conn, err := resolveConnection(state, connectionID)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = models.DefaultSessionName
	}

	handle, err := r.factory(conn.GatewayURL).OpenSession(ctx, name, r.properties)
	if err != nil {
		return nil, err
	}

	sess := models.Session{
		Name:         name,
		Handle:       handle,
		ConnectionID: conn.ID,
		CreatedAt:    time.Now().UTC(),
	}
	state.Sessions = append(state.Sessions, sess)
	state.ActiveHandle = handle
	if err := r.store.Save(state); err != nil {
		return nil, err
	}

	r.logger.Info().Str("session", name).Str("handle", handle).Str("connection", conn.Name).Msg("session created")
	r.notify(sess, *conn)
	return &sess, nil
}

// RemoveSession deletes a session. The last remaining session cannot be
// removed; removing the active session promotes the first remaining one.
func (r *Registry) RemoveSession(ctx context.Context, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, err := r.store.Load()
	if err != nil {
		return err
	}
	if len(state.Sessions) <= 1 {
		return errors.ErrLastSession
	}

	sess := findSession(state, handle)
	if sess == nil {
		return errors.ErrSessionNotFound
	}
	removed := *sess
	removeSession(state, handle)

	if state.ActiveHandle == handle {
		state.ActiveHandle = ""
		if len(state.Sessions) > 0 {
			state.ActiveHandle = state.Sessions[0].Handle
		}
	}
	if err := r.store.Save(state); err != nil {
		return err
	}

	// Best-effort remote release; the session may already be gone.
	if conn := state.FindConnection(removed.ConnectionID); conn != nil {
		if err := r.factory(conn.GatewayURL).CloseSession(ctx, removed.Handle); err != nil {
			r.logger.Debug().Err(err).Str("handle", removed.Handle).Msg("remote session close failed")
		}
	}

	if state.ActiveHandle != "" {
		if promoted := findSession(state, state.ActiveHandle); promoted != nil {
			if conn := state.FindConnection(promoted.ConnectionID); conn != nil {
				r.notify(*promoted, *conn)
			}
		}
	}
	return nil
}

// SetActiveSession makes the given session active and notifies subscribers.
func (r *Registry) SetActiveSession(handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, err := r.store.Load()
	if err != nil {
		return err
	}
	sess := findSession(state, handle)
	if sess == nil {
		return errors.ErrSessionNotFound
	}
	state.ActiveHandle = handle
	if err := r.store.Save(state); err != nil {
		return err
	}

	conn := state.FindConnection(sess.ConnectionID)
	if conn != nil {
		r.notify(*sess, *conn)
	}
	return nil
}

// GetActiveHandle returns a live session handle, creating or recovering a
// session as needed. Callers never observe an invalid intermediate handle:
// the result is either a handle that just passed a liveness check or an error.
func (r *Registry) GetActiveHandle(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, err := r.store.Load()
	if err != nil {
		return "", err
	}

	sess := findSession(state, state.ActiveHandle)
	if sess == nil {
		created, err := r.createSessionLocked(ctx, state, models.DefaultSessionName, "")
		if err != nil {
			return "", err
		}
		return created.Handle, nil
	}

	conn := state.FindConnection(sess.ConnectionID)
	if conn == nil {
		return "", errors.ErrNoActiveSession
	}

	err = r.factory(conn.GatewayURL).SessionAlive(ctx, sess.Handle)
	if err == nil {
		return sess.Handle, nil
	}
	if errors.IsTransport(err) || errors.IsCanceled(err) {
		// The gateway is unreachable, not the handle invalid. Recreating a
		// session would fail the same way; surface the transport error.
		return "", err
	}

	r.logger.Info().Str("handle", sess.Handle).Msg("active session handle is stale, recovering")
	return r.recoverSessionLocked(ctx, state, sess.Handle)
}

// RecoverSession replaces an invalid session with a fresh one named "default"
// on the same connection and returns the new handle.
func (r *Registry) RecoverSession(ctx context.Context, handle string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, err := r.store.Load()
	if err != nil {
		return "", err
	}
	return r.recoverSessionLocked(ctx, state, handle)
}

func (r *Registry) recoverSessionLocked(ctx context.Context, state *store.State, handle string) (string, error) {
	sess := findSession(state, handle)
	if sess == nil {
		return "", errors.ErrSessionNotFound
	}
	connectionID := sess.ConnectionID
	if state.FindConnection(connectionID) == nil {
		return "", errors.ErrNoActiveSession
	}

	removeSession(state, handle)
	if state.ActiveHandle == handle {
		state.ActiveHandle = ""
	}

	created, err := r.createSessionLocked(ctx, state, models.DefaultSessionName, connectionID)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeNoActiveSession, "session recovery failed")
	}
	return created.Handle, nil
}

// resolveConnection picks the target connection for a new session.
func resolveConnection(state *store.State, connectionID string) (*models.Connection, error) {
	if connectionID != "" {
		conn := state.FindConnection(connectionID)
		if conn == nil {
			return nil, errors.Newf(errors.CodeNotFound, "connection %s not found", connectionID)
		}
		return conn, nil
	}
	switch len(state.Connections) {
	case 0:
		return nil, errors.ErrNoActiveSession
	case 1:
		return &state.Connections[0], nil
	default:
		return nil, errors.New(errors.CodeInvalidRequest, "multiple connections configured; specify one")
	}
}

func findSession(state *store.State, handle string) *models.Session {
	if handle == "" {
		return nil
	}
	for i := range state.Sessions {
		if state.Sessions[i].Handle == handle {
			return &state.Sessions[i]
		}
	}
	return nil
}

func removeSession(state *store.State, handle string) {
	for i := range state.Sessions {
		if state.Sessions[i].Handle == handle {
			state.Sessions = append(state.Sessions[:i], state.Sessions[i+1:]...)
			return
		}
	}
}
