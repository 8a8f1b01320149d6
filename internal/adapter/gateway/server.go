// Package gateway carries the frame channel over WebSocket text messages
// and serves the web surface that speaks it.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-metrics"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"

	"medhelper/internal/domain"
	"medhelper/internal/infra/middleware"
	"medhelper/internal/protocol/router"
	"medhelper/internal/protocol/telemetry"
)

// Config configures the gateway server.
type Config struct {
	Addr      string
	StaticDir string
	Token     string
	// SendBuffer is the outbound frame queue length per connection.
	SendBuffer int
	// ReadLimit is the largest accepted frame in bytes.
	ReadLimit int64
	// FramesPerSecond and Burst bound inbound frames per connection.
	// FramesPerSecond <= 0 disables the limit.
	FramesPerSecond float64
	Burst           int
	// UpgradesPerMinute bounds WebSocket upgrades per client IP.
	UpgradesPerMinute int
}

const (
	defaultSendBuffer = 64
	defaultReadLimit  = 1 << 20
	writeTimeout      = 5 * time.Second
)

// clientConn tracks a single WebSocket connection. It is the FrameSender
// the Router answers through.
type clientConn struct {
	id        uint64
	ws        *websocket.Conn
	sendCh    chan string // buffered outbound queue
	done      chan struct{}
	closeOnce sync.Once
	limiter   *rate.Limiter
	logger    *slog.Logger
}

func (cc *clientConn) Send(_ context.Context, raw string) error {
	select {
	case <-cc.done:
		return domain.NewDomainError("Gateway.Send", domain.ErrChannelClosed, fmt.Sprintf("conn_id=%d", cc.id))
	default:
	}
	select {
	case cc.sendCh <- raw:
		return nil
	default:
		cc.logger.Warn("gateway: dropped frame for slow client", "conn_id", cc.id)
		return domain.NewDomainError("Gateway.Send", domain.ErrChannelClosed,
			fmt.Sprintf("conn_id=%d: send queue full", cc.id))
	}
}

func (cc *clientConn) close() {
	cc.closeOnce.Do(func() { close(cc.done) })
}

// Server is the WebSocket gateway in front of a Router.
type Server struct {
	cfg        Config
	router     *router.Router
	auth       Authenticator
	logger     *slog.Logger
	sink       metrics.MetricSink
	inmem      *metrics.InmemSink
	clients    sync.Map // connID (uint64) -> *clientConn
	nextID     atomic.Uint64
	httpSrv    *http.Server
	boundAddr  atomic.Value
	httpRoutes []httpRoute

	// sessions counts handleUpgrade calls past admission. Stop waits for
	// them so no read loop can still be inside Route during router.Wait.
	sessions   sync.WaitGroup
	sessionsMu sync.Mutex
	stopping   bool
	connCtx    context.Context
	cancelConn context.CancelFunc
}

type httpRoute struct {
	pattern string
	handler http.HandlerFunc
}

// Option configures a Server.
type Option func(*Server)

// WithMetricSink sets the sink for gateway counters.
func WithMetricSink(sink metrics.MetricSink) Option {
	return func(s *Server) { s.sink = sink }
}

// WithMetricsEndpoint serves inmem at /metrics.
func WithMetricsEndpoint(inmem *metrics.InmemSink) Option {
	return func(s *Server) { s.inmem = inmem }
}

// NewServer creates a gateway server routing inbound frames to r.
func NewServer(r *router.Router, cfg Config, logger *slog.Logger, opts ...Option) *Server {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}
	s := &Server{
		cfg:    cfg,
		router: r,
		auth:   NewTokenAuth(cfg.Token),
		logger: logger,
	}
	s.connCtx, s.cancelConn = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(s)
	}
	s.sink = telemetry.SinkOrBlackhole(s.sink)
	return s
}

// RegisterHTTPRoute adds an HTTP handler to the gateway's mux.
// Must be called before Start().
func (s *Server) RegisterHTTPRoute(pattern string, handler http.HandlerFunc) {
	s.httpRoutes = append(s.httpRoutes, httpRoute{pattern: pattern, handler: handler})
}

// Start begins accepting connections. Blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", middleware.RateLimit(ctx, s.cfg.UpgradesPerMinute, s.cfg.Burst)(http.HandlerFunc(s.handleUpgrade)))
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.inmem != nil {
		mux.HandleFunc("/metrics", telemetry.Handler(s.inmem))
	}
	if s.cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
	for _, route := range s.httpRoutes {
		mux.HandleFunc(route.pattern, route.handler)
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.httpSrv = &http.Server{
		Handler:           middleware.SecurityHeaders(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.boundAddr.Store(listener.Addr().String())

	s.logger.Info("gateway started", "addr", s.BoundAddr(), "commands", s.router.Commands())

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop refuses new connections, closes the open ones, waits for their read
// loops to exit, then for in-flight handler work, and shuts the HTTP
// server down. It is safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	s.sessionsMu.Lock()
	s.stopping = true
	s.sessionsMu.Unlock()
	s.cancelConn()

	s.clients.Range(func(key, value any) bool {
		cc := value.(*clientConn)
		cc.close()
		cc.ws.Close(websocket.StatusGoingAway, "server shutting down")
		s.clients.Delete(key)
		return true
	})
	s.sessions.Wait()
	s.router.Wait()

	if s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// BoundAddr returns the actual address the server bound to. Only valid after Start.
func (s *Server) BoundAddr() string {
	addr, _ := s.boundAddr.Load().(string)
	return addr
}

// Clients returns the number of open connections.
func (s *Server) Clients() int {
	n := 0
	s.clients.Range(func(_, _ any) bool { n++; return true })
	return n
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"clients":  s.Clients(),
		"commands": s.router.Commands(),
	})
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Authenticate(r.URL.Query().Get("token")); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !s.admit() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.sessions.Done()

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	ws.SetReadLimit(s.cfg.ReadLimit)

	cc := &clientConn{
		id:     s.nextID.Add(1),
		ws:     ws,
		sendCh: make(chan string, s.cfg.SendBuffer),
		done:   make(chan struct{}),
		logger: s.logger,
	}
	if s.cfg.FramesPerSecond > 0 {
		cc.limiter = rate.NewLimiter(rate.Limit(s.cfg.FramesPerSecond), max(s.cfg.Burst, 1))
	}
	s.sink.IncrCounter(telemetry.MetricGatewayConns, 1)
	s.clients.Store(cc.id, cc)

	s.logger.Info("gateway client connected", "conn_id", cc.id, "remote", r.RemoteAddr)

	// Reads end when the client goes away or Stop cancels connCtx.
	readCtx, cancel := context.WithCancel(s.connCtx)
	defer cancel()
	defer context.AfterFunc(r.Context(), cancel)()

	go s.writeLoop(cc)
	s.readLoop(readCtx, cc)

	cc.close()
	s.clients.Delete(cc.id)
	ws.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("gateway client disconnected", "conn_id", cc.id)
}

// admit registers a session unless Stop has begun.
func (s *Server) admit() bool {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	if s.stopping {
		return false
	}
	s.sessions.Add(1)
	return true
}

// readLoop routes frames in arrival order. Handlers hand long work to
// Call.Go, so routing never waits on domain work.
func (s *Server) readLoop(ctx context.Context, cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		default:
		}

		typ, data, err := cc.ws.Read(ctx)
		if err != nil {
			return // connection closed or error
		}
		if typ != websocket.MessageText {
			s.logger.Warn("gateway: ignoring binary message", "conn_id", cc.id)
			continue
		}
		if cc.limiter != nil && !cc.limiter.Allow() {
			s.logger.Warn("gateway: frame dropped by rate limit", "conn_id", cc.id)
			s.sink.IncrCounterWithLabels(telemetry.MetricGatewayFramesDropped, 1,
				[]metrics.Label{telemetry.LabelReason.M("rate_limit")})
			continue
		}
		s.router.Route(ctx, cc, string(data))
	}
}

func (s *Server) writeLoop(cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		case raw := <-cc.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := cc.ws.Write(ctx, websocket.MessageText, []byte(raw))
			cancel()
			if err != nil {
				s.logger.Debug("gateway write failed", "conn_id", cc.id, "error", err)
				cc.close()
				return
			}
		}
	}
}
