package host

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// EventEnv is the environment an eventFilter expression runs against.
type EventEnv struct {
	Type string `expr:"type"`
	Data any    `expr:"data"`
}

// compileFilter compiles a manifest eventFilter. An empty source matches every event.
func compileFilter(source string) (*vm.Program, error) {
	if source == "" {
		return nil, nil
	}
	program, err := expr.Compile(source, expr.Env(EventEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return program, nil
}

// matches evaluates program for an event. Evaluation errors count as no match.
func matches(program *vm.Program, eventType string, data any) (bool, error) {
	if program == nil {
		return true, nil
	}
	out, err := expr.Run(program, EventEnv{Type: eventType, Data: data})
	if err != nil {
		return false, err
	}
	ok, _ := out.(bool)
	return ok, nil
}
