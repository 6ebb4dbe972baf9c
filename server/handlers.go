// Package server exposes the HTTP API handlers.
package server

import (
	"time"

	"github.com/BaherKh1/KickChatViewer/relay"
)

// Handlers holds dependencies for the plain HTTP handlers.
type Handlers struct {
	mgr     *relay.Manager
	started time.Time
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(mgr *relay.Manager) *Handlers {
	return &Handlers{
		mgr:     mgr,
		started: time.Now().UTC(),
	}
}
