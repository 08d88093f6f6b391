package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// ClientToken identifies one connected client across reconnects.
type ClientToken string

type clientEntry struct {
	Controller *SessionController
	Cancel     context.CancelFunc
}

// Registry maps client tokens to live session controllers so the
// transport layer can find a client's session again after a reconnect,
// and so an in-flight join can be cancelled from outside.
type Registry struct {
	directory Directory

	mu      sync.RWMutex
	clients map[ClientToken]*clientEntry
}

func NewRegistry(directory Directory) *Registry {
	return &Registry{
		directory: directory,
		clients:   make(map[ClientToken]*clientEntry),
	}
}

// GetOrCreate returns the client's controller, allocating one on first
// sight of the token.
func (r *Registry) GetOrCreate(token ClientToken) *SessionController {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.clients[token]; ok {
		return e.Controller
	}
	e := &clientEntry{Controller: NewSessionController(r.directory)}
	r.clients[token] = e
	log.Info().Str("module", "app.registry").Str("client", string(token)).Msg("controller created")
	return e.Controller
}

// BindCancel stores the cancel func for the client's in-flight join.
// Binding nil clears it; callers do that once the join resolves so a
// late Cancel cannot fire a spent handle and report success.
func (r *Registry) BindCancel(token ClientToken, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.clients[token]; ok {
		e.Cancel = cancel
	}
}

// Cancel aborts the client's in-flight join, if any.
func (r *Registry) Cancel(token ClientToken) bool {
	r.mu.RLock()
	e, ok := r.clients[token]
	r.mu.RUnlock()
	if !ok || e.Cancel == nil {
		return false
	}
	e.Cancel()
	log.Info().Str("module", "app.registry").Str("client", string(token)).Msg("join cancelled")
	return true
}

// Remove drops the client entry. The controller itself is torn down by
// its owner before removal.
func (r *Registry) Remove(token ClientToken) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, token)
	log.Info().Str("module", "app.registry").Str("client", string(token)).Msg("controller removed")
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
