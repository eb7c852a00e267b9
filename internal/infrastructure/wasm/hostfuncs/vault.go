package hostfuncs

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// ErrNoVault is returned to tier 1 guests.
var ErrNoVault = errors.New("vault access not granted")

// VaultRequest is the wire form of vault_read and vault_write. Content is
// base64 so binary files survive JSON.
type VaultRequest struct {
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
}

// VaultRead implements vault_read. It answers {"data":{"content":"<base64>"}}.
func VaultRead(ctx context.Context, mod api.Module, stack []uint64) {
	var req VaultRequest
	g, err := guestCall(ctx, mod, stack[0], &req)
	if err != nil {
		stack[0] = writeError(ctx, mod, err)
		return
	}

	v := g.Context.Vault()
	if v == nil {
		stack[0] = writeError(ctx, mod, ErrNoVault)
		return
	}
	data, err := v.Read(req.Path)
	if err != nil {
		stack[0] = writeError(ctx, mod, err)
		return
	}
	stack[0] = writeResponse(ctx, mod, Response{Data: map[string]string{
		"path":    req.Path,
		"content": base64.StdEncoding.EncodeToString(data),
	}})
}

// VaultWrite implements vault_write.
func VaultWrite(ctx context.Context, mod api.Module, stack []uint64) {
	var req VaultRequest
	g, err := guestCall(ctx, mod, stack[0], &req)
	if err != nil {
		stack[0] = writeError(ctx, mod, err)
		return
	}

	v := g.Context.Vault()
	if v == nil {
		stack[0] = writeError(ctx, mod, ErrNoVault)
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		stack[0] = writeError(ctx, mod, fmt.Errorf("content is not base64: %w", err))
		return
	}
	if err := v.Write(req.Path, data); err != nil {
		stack[0] = writeError(ctx, mod, err)
		return
	}
	stack[0] = writeResponse(ctx, mod, Response{Data: map[string]int{"bytes": len(data)}})
}
