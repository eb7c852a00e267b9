package hostfuncs

import (
	"context"
	"errors"

	"github.com/tetratelabs/wazero/api"

	"github.com/warden-dev/warden/internal/domain/plugin"
)

// ErrNoEventExport is returned when a guest subscribes without exporting on_event.
var ErrNoEventExport = errors.New("guest does not export on_event")

// SubscribeRequest is the wire form of subscribe and unsubscribe.
type SubscribeRequest struct {
	EventType string `json:"eventType,omitempty"`
	ID        uint64 `json:"id,omitempty"`
}

// Subscribe implements subscribe. Matching events are delivered to the guest's
// on_event export. It answers {"data":{"id":n}}.
func Subscribe(ctx context.Context, mod api.Module, stack []uint64) {
	var req SubscribeRequest
	g, err := guestCall(ctx, mod, stack[0], &req)
	if err != nil {
		stack[0] = writeError(ctx, mod, err)
		return
	}
	if g.Deliver == nil {
		stack[0] = writeError(ctx, mod, ErrNoEventExport)
		return
	}

	eventType := req.EventType
	if eventType == "" {
		eventType = plugin.WildcardEvent
	}
	id := g.Context.Events().On(eventType, g.Deliver)
	stack[0] = writeResponse(ctx, mod, Response{Data: map[string]uint64{"id": uint64(id)}})
}

// Unsubscribe implements unsubscribe.
func Unsubscribe(ctx context.Context, mod api.Module, stack []uint64) {
	var req SubscribeRequest
	g, err := guestCall(ctx, mod, stack[0], &req)
	if err != nil {
		stack[0] = writeError(ctx, mod, err)
		return
	}
	g.Context.Events().Off(plugin.SubscriptionID(req.ID))
	stack[0] = writeResponse(ctx, mod, Response{})
}
