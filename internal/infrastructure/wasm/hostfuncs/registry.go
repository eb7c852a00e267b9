package hostfuncs

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// ModuleName is the import module guests link host functions from.
const ModuleName = "warden_host"

type hostFunc func(ctx context.Context, mod api.Module, stack []uint64)

// Register instantiates the warden_host module in runtime. Every function
// takes one i64 (packed ptr+len of a JSON request) and, except log_message,
// returns one i64 (packed ptr+len of a JSON Response).
func Register(ctx context.Context, runtime wazero.Runtime) error {
	builder := runtime.NewHostModuleBuilder(ModuleName)

	withResult := map[string]hostFunc{
		"panel_create": PanelCreate,
		"panel_update": PanelUpdate,
		"panel_close":  PanelClose,
		"vault_read":   VaultRead,
		"vault_write":  VaultWrite,
		"subscribe":    Subscribe,
		"unsubscribe":  Unsubscribe,
		"http_request": HTTPRequest,
		"exec_command": ExecCommand,
	}
	for name, fn := range withResult {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(fn), []api.ValueType{api.ValueTypeI64}, []api.ValueType{api.ValueTypeI64}).
			Export(name)
	}

	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(LogMessage), []api.ValueType{api.ValueTypeI64}, []api.ValueType{}).
		Export("log_message")

	_, err := builder.Instantiate(ctx)
	return err
}
