package plugin

import (
	"fmt"
	"regexp"
)

// SettingType is the value type of a setting.
type SettingType string

// Setting types.
const (
	SettingString  SettingType = "string"
	SettingNumber  SettingType = "number"
	SettingBoolean SettingType = "boolean"
	SettingSelect  SettingType = "select"
)

var settingKeyPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]*$`)

// SettingDescriptor declares one setting a plugin exposes.
// Constraints holds JSON Schema keywords (minimum, maxLength, pattern, enum, ...)
// applied on top of the type.
type SettingDescriptor struct {
	Key         string         `json:"key"`
	Label       string         `json:"label"`
	Type        SettingType    `json:"type"`
	Default     any            `json:"default,omitempty"`
	Description string         `json:"description,omitempty"`
	Options     []string       `json:"options,omitempty"`
	Constraints map[string]any `json:"constraints,omitempty"`
}

// Check reports descriptor errors that would make the setting unusable.
func (d SettingDescriptor) Check() error {
	if !settingKeyPattern.MatchString(d.Key) {
		return fmt.Errorf("invalid setting key %q", d.Key)
	}
	switch d.Type {
	case SettingString, SettingNumber, SettingBoolean:
	case SettingSelect:
		if len(d.Options) == 0 {
			return fmt.Errorf("setting %q: select requires options", d.Key)
		}
	default:
		return fmt.Errorf("setting %q: unknown type %q", d.Key, d.Type)
	}
	return nil
}

// Schema renders the descriptor as a JSON Schema document.
func (d SettingDescriptor) Schema() map[string]any {
	schema := make(map[string]any, len(d.Constraints)+2)
	for k, v := range d.Constraints {
		schema[k] = v
	}

	switch d.Type {
	case SettingSelect:
		schema["type"] = "string"
		enum := make([]any, len(d.Options))
		for i, o := range d.Options {
			enum[i] = o
		}
		schema["enum"] = enum
	default:
		schema["type"] = string(d.Type)
	}
	return schema
}
