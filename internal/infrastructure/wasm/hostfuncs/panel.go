package hostfuncs

import (
	"context"
	"errors"

	"github.com/tetratelabs/wazero/api"
)

// ErrNoGuest is returned when a host function runs outside a guest call.
var ErrNoGuest = errors.New("host function called without a plugin context")

// PanelRequest is the wire form of panel_create, panel_update and panel_close.
type PanelRequest struct {
	TabID   string `json:"tabId,omitempty"`
	Title   string `json:"title,omitempty"`
	Content any    `json:"content,omitempty"`
}

// guestCall decodes the request of a host function for the calling guest.
func guestCall(ctx context.Context, mod api.Module, packed uint64, req any) (*Guest, error) {
	g, ok := GuestFromContext(ctx)
	if !ok {
		return nil, ErrNoGuest
	}
	if err := readRequest(mod, packed, req); err != nil {
		return nil, err
	}
	return g, nil
}

// PanelCreate implements panel_create. It answers {"data":{"tabId":...}}.
func PanelCreate(ctx context.Context, mod api.Module, stack []uint64) {
	var req PanelRequest
	g, err := guestCall(ctx, mod, stack[0], &req)
	if err != nil {
		stack[0] = writeError(ctx, mod, err)
		return
	}

	id, err := g.Context.Panel().CreateTab(req.Title, req.Content)
	if err != nil {
		stack[0] = writeError(ctx, mod, err)
		return
	}
	stack[0] = writeResponse(ctx, mod, Response{Data: map[string]string{"tabId": id}})
}

// PanelUpdate implements panel_update.
func PanelUpdate(ctx context.Context, mod api.Module, stack []uint64) {
	var req PanelRequest
	g, err := guestCall(ctx, mod, stack[0], &req)
	if err != nil {
		stack[0] = writeError(ctx, mod, err)
		return
	}
	if err := g.Context.Panel().UpdateTab(req.TabID, req.Content); err != nil {
		stack[0] = writeError(ctx, mod, err)
		return
	}
	stack[0] = writeResponse(ctx, mod, Response{})
}

// PanelClose implements panel_close.
func PanelClose(ctx context.Context, mod api.Module, stack []uint64) {
	var req PanelRequest
	g, err := guestCall(ctx, mod, stack[0], &req)
	if err != nil {
		stack[0] = writeError(ctx, mod, err)
		return
	}
	if err := g.Context.Panel().CloseTab(req.TabID); err != nil {
		stack[0] = writeError(ctx, mod, err)
		return
	}
	stack[0] = writeResponse(ctx, mod, Response{})
}
