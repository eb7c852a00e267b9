// Package hostfuncs implements the warden_host module WASM plugins import.
package hostfuncs

import (
	"context"

	"github.com/warden-dev/warden/internal/domain/plugin"
)

// Guest is the calling plugin as host functions see it.
type Guest struct {
	// Context is the plugin's host context; every capability check goes through it.
	Context plugin.Context
	// Deliver hands an event to the guest's on_event export. Nil when the
	// module does not export one.
	Deliver plugin.EventHandler
}

type guestKey struct{}

// WithGuest attaches g to ctx. The runtime calls guest exports with this ctx
// so host functions know who is calling.
func WithGuest(ctx context.Context, g *Guest) context.Context {
	return context.WithValue(ctx, guestKey{}, g)
}

// GuestFromContext returns the guest attached by WithGuest.
func GuestFromContext(ctx context.Context) (*Guest, bool) {
	g, ok := ctx.Value(guestKey{}).(*Guest)
	return g, ok && g != nil && g.Context != nil
}
