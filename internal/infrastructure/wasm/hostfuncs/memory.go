package hostfuncs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tetratelabs/wazero/api"
)

// Response is the envelope every host function returns to the guest.
type Response struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// PackPtrLen packs a guest pointer and length into one i64, pointer high.
func PackPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

// UnpackPtrLen splits an i64 built by PackPtrLen.
func UnpackPtrLen(packed uint64) (ptr, length uint32) {
	ptr = uint32(packed >> 32) //nolint:gosec // G115: packed format stores 32-bit values
	length = uint32(packed)    //nolint:gosec // G115: packed format stores 32-bit values
	return ptr, length
}

// readRequest decodes the JSON request a guest passed as packed ptr+len.
func readRequest(mod api.Module, packed uint64, v any) error {
	ptr, length := UnpackPtrLen(packed)
	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return fmt.Errorf("request out of guest memory bounds (ptr=%d len=%d)", ptr, length)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("malformed request: %w", err)
	}
	return nil
}

// WriteGuest copies data into memory obtained from the guest's allocate export
// and returns it packed. Zero means the guest could not take it.
func WriteGuest(ctx context.Context, mod api.Module, data []byte) uint64 {
	allocate := mod.ExportedFunction("allocate")
	if allocate == nil {
		slog.ErrorContext(ctx, "hostfuncs: guest does not export allocate", "module", mod.Name())
		return 0
	}

	results, err := allocate.Call(ctx, uint64(len(data)))
	if err != nil || len(results) == 0 {
		slog.ErrorContext(ctx, "hostfuncs: guest allocate failed", "module", mod.Name(), "error", err)
		return 0
	}

	ptr := uint32(results[0]) //nolint:gosec // G115: WASM32 pointers are always 32-bit
	if ptr == 0 || !mod.Memory().Write(ptr, data) {
		return 0
	}
	return PackPtrLen(ptr, uint32(len(data))) //nolint:gosec // G115: guest allocations are bounded to 4GB
}

func writeResponse(ctx context.Context, mod api.Module, resp Response) uint64 {
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(Response{Error: fmt.Sprintf("failed to encode response: %v", err)})
	}
	return WriteGuest(ctx, mod, data)
}

func writeError(ctx context.Context, mod api.Module, err error) uint64 {
	return writeResponse(ctx, mod, Response{Error: err.Error()})
}
