package bridge

import (
	"context"
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/warden-dev/warden/internal/host"
	"github.com/warden-dev/warden/internal/protocol"
)

const (
	encodingUTF8   = "utf8"
	encodingBase64 = "base64"
)

type handlerFunc func(ctx context.Context, msg protocol.Message) (any, error)

func (s *Server) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		protocol.TypePluginsList:   s.handlePluginsList,
		protocol.TypePluginEnable:  s.handleEnable,
		protocol.TypePluginDisable: s.handleDisable,
		protocol.TypeBackendEvent:  s.handleBackendEvent,
		protocol.TypeVaultRead:     s.handleVaultRead,
		protocol.TypeVaultWrite:    s.handleVaultWrite,
		protocol.TypePanelCreate:   s.handlePanelCreate,
		protocol.TypePanelUpdate:   s.handlePanelTab(host.PanelActionUpdate),
		protocol.TypePanelClose:    s.handlePanelTab(host.PanelActionClose),
		protocol.TypeSettingsGet:   s.handleSettingsGet,
		protocol.TypeSettingsSet:   s.handleSettingsSet,
	}
}

// handleFrame turns one inbound frame into the reply for its sender. It
// reports false when the frame gets no reply: unparseable JSON, an envelope
// without an id, or a message that is not a request.
func (s *Server) handleFrame(ctx context.Context, clientID string, frame []byte) (protocol.Message, bool) {
	if !gjson.ValidBytes(frame) {
		s.logger.Warn("dropping unparseable frame", "client", clientID, "bytes", len(frame))
		return protocol.Message{}, false
	}

	msg, err := protocol.Decode(frame)
	if err != nil {
		id := gjson.GetBytes(frame, "id").String()
		if id == "" {
			s.logger.Warn("dropping frame without id", "client", clientID, "error", err)
			return protocol.Message{}, false
		}
		// Answer under the sender's id so it can settle its pending request.
		return protocol.NewFailure(protocol.Message{ID: id, Type: gjson.GetBytes(frame, "type").String()}, err), true
	}

	if msg.Direction != protocol.DirectionRequest {
		s.logger.Debug("ignoring non-request message", "client", clientID, "type", msg.Type, "direction", msg.Direction)
		return protocol.Message{}, false
	}

	handler, ok := s.handlers[msg.Type]
	if !ok {
		return protocol.NewFailure(msg, fmt.Errorf("%w: %s", protocol.ErrUnknownType, msg.Type)), true
	}

	data, err := handler(ctx, msg)
	if err != nil {
		s.logger.Debug("request failed", "client", clientID, "type", msg.Type, "id", msg.ID, "error", err)
		return protocol.NewFailure(msg, err), true
	}

	reply, err := protocol.NewResponse(msg, data)
	if err != nil {
		return protocol.NewFailure(msg, err), true
	}
	return reply, true
}

func (s *Server) handlePluginsList(context.Context, protocol.Message) (any, error) {
	return protocol.Roster{Plugins: s.host.GetAll()}, nil
}

func (s *Server) handleEnable(ctx context.Context, msg protocol.Message) (any, error) {
	var ref protocol.PluginRef
	if err := protocol.DecodePayload(msg, &ref); err != nil {
		return nil, err
	}
	if err := s.host.EnablePlugin(ctx, ref.PluginID); err != nil {
		return nil, err
	}
	state, _ := s.host.Get(ref.PluginID)
	return state, nil
}

func (s *Server) handleDisable(ctx context.Context, msg protocol.Message) (any, error) {
	var ref protocol.PluginRef
	if err := protocol.DecodePayload(msg, &ref); err != nil {
		return nil, err
	}
	if err := s.host.DisablePlugin(ctx, ref.PluginID); err != nil {
		return nil, err
	}
	state, _ := s.host.Get(ref.PluginID)
	return state, nil
}

func (s *Server) handleBackendEvent(_ context.Context, msg protocol.Message) (any, error) {
	var ev protocol.BackendEvent
	if err := protocol.DecodePayload(msg, &ev); err != nil {
		return nil, err
	}
	delivered := s.host.DispatchBackendEvent(ev.EventType, ev.Data)
	return map[string]int{"delivered": delivered}, nil
}

func (s *Server) handleVaultRead(ctx context.Context, msg protocol.Message) (any, error) {
	var req protocol.VaultRead
	if err := protocol.DecodePayload(msg, &req); err != nil {
		return nil, err
	}
	data, err := s.host.ReadVault(ctx, req.PluginID, req.Path)
	if err != nil {
		return nil, err
	}

	if utf8.Valid(data) {
		return protocol.VaultContent{Path: req.Path, Content: string(data), Encoding: encodingUTF8}, nil
	}
	return protocol.VaultContent{
		Path:     req.Path,
		Content:  base64.StdEncoding.EncodeToString(data),
		Encoding: encodingBase64,
	}, nil
}

func (s *Server) handleVaultWrite(ctx context.Context, msg protocol.Message) (any, error) {
	var req protocol.VaultWrite
	if err := protocol.DecodePayload(msg, &req); err != nil {
		return nil, err
	}

	data := []byte(req.Content)
	if req.Encoding == encodingBase64 {
		decoded, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: content is not base64: %v", protocol.ErrInvalidPayload, err)
		}
		data = decoded
	}

	if err := s.host.WriteVault(ctx, req.PluginID, req.Path, data); err != nil {
		return nil, err
	}
	return map[string]any{"path": req.Path, "bytes": len(data)}, nil
}

func (s *Server) handlePanelCreate(_ context.Context, msg protocol.Message) (any, error) {
	var req protocol.PanelCreate
	if err := protocol.DecodePayload(msg, &req); err != nil {
		return nil, err
	}
	err := s.host.DeliverPanelAction(req.PluginID, host.PanelActionCreate, protocol.PanelEvent{
		Title:   req.Title,
		Content: req.Content,
	})
	return nil, err
}

func (s *Server) handlePanelTab(action string) handlerFunc {
	return func(_ context.Context, msg protocol.Message) (any, error) {
		var req protocol.PanelTab
		if err := protocol.DecodePayload(msg, &req); err != nil {
			return nil, err
		}
		err := s.host.DeliverPanelAction(req.PluginID, action, protocol.PanelEvent{
			TabID:   req.TabID,
			Content: req.Content,
		})
		return nil, err
	}
}

func (s *Server) handleSettingsGet(_ context.Context, msg protocol.Message) (any, error) {
	var ref protocol.PluginRef
	if err := protocol.DecodePayload(msg, &ref); err != nil {
		return nil, err
	}
	return s.host.Settings(ref.PluginID)
}

func (s *Server) handleSettingsSet(_ context.Context, msg protocol.Message) (any, error) {
	var req protocol.SettingsSet
	if err := protocol.DecodePayload(msg, &req); err != nil {
		return nil, err
	}
	if err := s.host.SetSetting(req.PluginID, req.Key, req.Value); err != nil {
		return nil, err
	}
	return s.host.Settings(req.PluginID)
}
