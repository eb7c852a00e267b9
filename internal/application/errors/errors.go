// Package apperrors defines application-level error types.
package apperrors

import (
	"fmt"

	"github.com/warden-dev/warden/internal/domain/capabilities"
)

// Phase names the lifecycle step that failed.
type Phase string

// Lifecycle phases.
const (
	PhaseApproval  Phase = "approval"
	PhaseResolve   Phase = "resolve"
	PhaseConstruct Phase = "construct"
	PhaseSettings  Phase = "settings"
	PhaseInit      Phase = "init"
	PhaseDestroy   Phase = "destroy"
	PhaseEvent     Phase = "event"
)

// LifecycleError indicates plugin code failed during a lifecycle transition.
type LifecycleError struct {
	Cause    error
	PluginID string
	Phase    Phase
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("plugin %s failed during %s: %v", e.PluginID, e.Phase, e.Cause)
}

func (e *LifecycleError) Unwrap() error {
	return e.Cause
}

// NewLifecycleError creates a new lifecycle error.
func NewLifecycleError(pluginID string, phase Phase, cause error) *LifecycleError {
	return &LifecycleError{
		PluginID: pluginID,
		Phase:    phase,
		Cause:    cause,
	}
}

// PanicError wraps a value recovered from plugin code.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("plugin panicked: %v", e.Value)
}

// CapabilityError indicates a capability permission issue.
type CapabilityError struct {
	Reason   string
	PluginID string
	Required []capabilities.Capability
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability error for %s: %s (%d capabilities required)", e.PluginID, e.Reason, len(e.Required))
}

// NewCapabilityError creates a new capability error.
func NewCapabilityError(pluginID, reason string, required []capabilities.Capability) *CapabilityError {
	return &CapabilityError{
		PluginID: pluginID,
		Required: required,
		Reason:   reason,
	}
}

// ConfigurationError indicates system config or setup issue.
type ConfigurationError struct {
	Cause   error
	Aspect  string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error (%s): %s: %v", e.Aspect, e.Message, e.Cause)
	}
	return fmt.Sprintf("configuration error (%s): %s", e.Aspect, e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(aspect, message string, cause error) *ConfigurationError {
	return &ConfigurationError{
		Aspect:  aspect,
		Message: message,
		Cause:   cause,
	}
}
