package hostfuncs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/tetratelabs/wazero/api"
)

// LogMessageWire is a log record sent by a guest.
type LogMessageWire struct {
	Level   string        `json:"level"`
	Message string        `json:"message"`
	Attrs   []LogAttrWire `json:"attrs,omitempty"`
}

// LogAttrWire is one typed attribute of a guest log record.
type LogAttrWire struct {
	Key   string `json:"key"`
	Type  string `json:"type"` // string, int64, bool, float64, time, error
	Value string `json:"value"`
}

// LogMessage implements log_message. Records go to the plugin's logger; it
// returns nothing.
func LogMessage(ctx context.Context, mod api.Module, stack []uint64) {
	var msg LogMessageWire
	g, err := guestCall(ctx, mod, stack[0], &msg)
	if err != nil {
		slog.WarnContext(ctx, "hostfuncs: dropped guest log record", "module", mod.Name(), "error", err)
		return
	}

	level := slog.LevelInfo
	if msg.Level != "" {
		if err := level.UnmarshalText([]byte(msg.Level)); err != nil {
			level = slog.LevelInfo
		}
	}

	attrs := make([]slog.Attr, 0, len(msg.Attrs))
	for _, a := range msg.Attrs {
		attrs = append(attrs, convertAttr(a))
	}
	g.Context.Logger().LogAttrs(ctx, level, msg.Message, attrs...)
}

func convertAttr(a LogAttrWire) slog.Attr {
	switch a.Type {
	case "int64":
		if v, err := strconv.ParseInt(a.Value, 10, 64); err == nil {
			return slog.Int64(a.Key, v)
		}
	case "bool":
		if v, err := strconv.ParseBool(a.Value); err == nil {
			return slog.Bool(a.Key, v)
		}
	case "float64":
		if v, err := strconv.ParseFloat(a.Value, 64); err == nil {
			return slog.Float64(a.Key, v)
		}
	case "time":
		if v, err := time.Parse(time.RFC3339Nano, a.Value); err == nil {
			return slog.Time(a.Key, v)
		}
	case "error":
		return slog.Any(a.Key, fmt.Errorf("%s", a.Value))
	}
	return slog.String(a.Key, a.Value)
}
