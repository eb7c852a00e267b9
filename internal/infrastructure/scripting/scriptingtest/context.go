// Package scriptingtest provides an in-memory plugin.Context for runtime tests.
package scriptingtest

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/warden-dev/warden/internal/domain/capabilities"
	"github.com/warden-dev/warden/internal/domain/manifest"
	"github.com/warden-dev/warden/internal/domain/plugin"
)

// Tab is one tab opened through the fake panel.
type Tab struct {
	Title   string
	Content any
}

// Context records everything a plugin does through it.
type Context struct {
	M       *manifest.Manifest
	P       capabilities.Profile
	Client  *http.Client
	logw    *lockedWriter
	log     *slog.Logger
	vault   *Vault
	mu      sync.Mutex
	tabs    map[string]Tab
	nextTab int
	subs    map[plugin.SubscriptionID]sub
	nextSub plugin.SubscriptionID
	values  map[string]any
	// OnSet runs after every successful settings Set.
	OnSet func(key string, value any)
}

type sub struct {
	eventType string
	handler   plugin.EventHandler
}

var _ plugin.Context = (*Context)(nil)

// New creates a context for m with profile p. A vault is attached when the
// profile grants read or write access.
func New(m *manifest.Manifest, p capabilities.Profile) *Context {
	logw := &lockedWriter{}
	c := &Context{
		M:      m,
		P:      p,
		logw:   logw,
		log:    slog.New(slog.NewTextHandler(logw, &slog.HandlerOptions{Level: slog.LevelDebug})),
		tabs:   make(map[string]Tab),
		subs:   make(map[plugin.SubscriptionID]sub),
		values: make(map[string]any),
	}
	if !p.ReadDenied() || !p.WriteDenied() {
		c.vault = &Vault{Files: make(map[string][]byte)}
	}
	return c
}

func (c *Context) ID() string                    { return c.M.ID }
func (c *Context) Manifest() *manifest.Manifest  { return c.M }
func (c *Context) Profile() capabilities.Profile { return c.P }
func (c *Context) Panel() plugin.Panel           { return (*panel)(c) }
func (c *Context) Events() plugin.Events         { return (*events)(c) }
func (c *Context) Settings() plugin.Settings     { return (*settings)(c) }
func (c *Context) Logger() *slog.Logger          { return c.log }
func (c *Context) HTTP() *http.Client            { return c.Client }

func (c *Context) Vault() plugin.Vault {
	if c.vault == nil {
		return nil
	}
	return c.vault
}

// Files returns the fake vault contents, nil when no vault is attached.
func (c *Context) Files() *Vault { return c.vault }

// Tabs returns a copy of the open tabs.
func (c *Context) Tabs() map[string]Tab {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Tab, len(c.tabs))
	for k, v := range c.tabs {
		out[k] = v
	}
	return out
}

// Subscriptions counts registered handlers.
func (c *Context) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Emit calls every matching handler on the calling goroutine.
func (c *Context) Emit(ev plugin.Event) {
	c.mu.Lock()
	var handlers []plugin.EventHandler
	for _, s := range c.subs {
		if s.eventType == ev.Type || s.eventType == plugin.WildcardEvent {
			handlers = append(handlers, s.handler)
		}
	}
	c.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

type panel Context

func (p *panel) CreateTab(title string, content any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextTab++
	id := fmt.Sprintf("tab-%d", p.nextTab)
	p.tabs[id] = Tab{Title: title, Content: content}
	return id, nil
}

func (p *panel) UpdateTab(tabID string, content any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tabs[tabID]
	if !ok {
		return fmt.Errorf("unknown tab %s", tabID)
	}
	t.Content = content
	p.tabs[tabID] = t
	return nil
}

func (p *panel) CloseTab(tabID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.tabs[tabID]; !ok {
		return fmt.Errorf("unknown tab %s", tabID)
	}
	delete(p.tabs, tabID)
	return nil
}

type events Context

func (e *events) On(eventType string, h plugin.EventHandler) plugin.SubscriptionID {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextSub++
	e.subs[e.nextSub] = sub{eventType: eventType, handler: h}
	return e.nextSub
}

func (e *events) Off(id plugin.SubscriptionID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.subs, id)
}

type settings Context

func (s *settings) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *settings) Set(key string, value any) error {
	if key == "" {
		return errors.New("empty key")
	}
	s.mu.Lock()
	s.values[key] = value
	onSet := s.OnSet
	s.mu.Unlock()
	if onSet != nil {
		onSet(key, value)
	}
	return nil
}

func (s *settings) All() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Vault is an in-memory plugin.Vault.
type Vault struct {
	mu    sync.Mutex
	Files map[string][]byte
}

func (v *Vault) Read(path string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	data, ok := v.Files[path]
	if !ok {
		return nil, fmt.Errorf("%s: not found", path)
	}
	return data, nil
}

func (v *Vault) Write(path string, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Files[path] = append([]byte(nil), data...)
	return nil
}

// Get returns a file's contents.
func (v *Vault) Get(path string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	data, ok := v.Files[path]
	return string(data), ok
}

// Logs returns everything logged so far.
func (c *Context) Logs() string {
	c.logw.mu.Lock()
	defer c.logw.mu.Unlock()
	return c.logw.w.String()
}

type lockedWriter struct {
	mu sync.Mutex
	w  bytes.Buffer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
