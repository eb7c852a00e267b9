// Package bridge serves the plugin host to UI clients over WebSocket.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/warden-dev/warden/internal/application/ports"
	"github.com/warden-dev/warden/internal/domain/plugin"
	"github.com/warden-dev/warden/internal/protocol"
)

// Defaults applied to zero Config fields.
const (
	DefaultAddr            = "127.0.0.1:7420"
	DefaultSendBuffer      = 256
	DefaultPingInterval    = 54 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultMaxMessageBytes = 1 << 20
)

// PluginHost is the part of the host the bridge drives.
type PluginHost interface {
	GetAll() []plugin.State
	Get(id string) (plugin.State, bool)
	EnablePlugin(ctx context.Context, id string) error
	DisablePlugin(ctx context.Context, id string) error
	DispatchBackendEvent(eventType string, data any) int
	DeliverPanelAction(id, action string, payload protocol.PanelEvent) error
	ReadVault(ctx context.Context, id, path string) ([]byte, error)
	WriteVault(ctx context.Context, id, path string, data []byte) error
	Settings(id string) (protocol.SettingsView, error)
	SetSetting(id, key string, value any) error
}

// Config controls the listener and per-connection limits.
type Config struct {
	Addr            string
	AllowedOrigins  []string
	SendBuffer      int
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = DefaultMaxMessageBytes
	}
	return c
}

// Server owns the client set. One hub goroutine mutates it; everything else
// talks to the hub through channels.
type Server struct {
	host     PluginHost
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
	handlers map[string]handlerFunc
	started  time.Time

	register   chan *client
	unregister chan *client
	broadcast  chan protocol.Message
	stopped    chan struct{}

	baseCtx atomic.Pointer[context.Context]
	clients atomic.Int64
	nextID  atomic.Uint64
}

var _ ports.Publisher = (*Server)(nil)

// New creates a bridge for h. Call Run, or Serve with a listener, to start it.
func New(h PluginHost, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	s := &Server{
		host:       h,
		cfg:        cfg,
		logger:     logger.With("component", "bridge"),
		started:    time.Now(),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan protocol.Message, cfg.SendBuffer),
		stopped:    make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.handlers = s.routes()
	return s
}

// Handler returns the HTTP routes: /ws for clients and /healthz for probes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/healthz", s.serveHealth)
	return mux
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hub and an HTTP server on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.runHub(gctx)
		return nil
	})
	g.Go(func() error {
		s.logger.Info("bridge listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("bridge server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Publish implements ports.Publisher. It never blocks: when the broadcast queue
// is full the event is dropped.
func (s *Server) Publish(eventType string, payload any) {
	msg, err := protocol.NewEvent(eventType, payload)
	if err != nil {
		s.logger.Error("failed to encode event", "type", eventType, "error", err)
		return
	}

	select {
	case s.broadcast <- msg:
	case <-s.stopped:
	default:
		s.logger.Warn("broadcast queue full, dropping event", "type", eventType)
	}
}

// ClientCount reports the number of connected clients.
func (s *Server) ClientCount() int {
	return int(s.clients.Load())
}

func (s *Server) context() context.Context {
	if p := s.baseCtx.Load(); p != nil {
		return *p
	}
	return context.Background()
}

func (s *Server) runHub(ctx context.Context) {
	s.baseCtx.Store(&ctx)
	clients := make(map[*client]struct{})
	defer func() {
		close(s.stopped)
		for c := range clients {
			c.close()
		}
		s.clients.Store(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-s.register:
			clients[c] = struct{}{}
			s.clients.Store(int64(len(clients)))
			s.logger.Debug("client connected", "client", c.id)

		case c := <-s.unregister:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				c.close()
				s.clients.Store(int64(len(clients)))
				s.logger.Debug("client disconnected", "client", c.id)
			}

		case msg := <-s.broadcast:
			for c := range clients {
				if !c.offer(msg) {
					delete(clients, c)
					c.close()
					s.logger.Warn("dropping slow client", "client", c.id)
				}
			}
			s.clients.Store(int64(len(clients)))
		}
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.ContainsFunc(s.cfg.AllowedOrigins, func(allowed string) bool {
		return allowed == "*" || strings.EqualFold(allowed, origin)
	})
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newClient(s, conn, fmt.Sprintf("c%d", s.nextID.Add(1)))

	// The roster goes first so it precedes any broadcast the client sees.
	roster, err := protocol.NewEvent(protocol.EventPluginsRoster, protocol.Roster{Plugins: s.host.GetAll()})
	if err != nil {
		s.logger.Error("failed to encode roster", "error", err)
	} else {
		c.offer(roster)
	}

	select {
	case s.register <- c:
	case <-s.stopped:
		_ = conn.Close()
		return
	}

	go c.writePump()
	c.readPump()
}
