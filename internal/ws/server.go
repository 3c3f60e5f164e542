package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/phonelog/liveview/internal/calls"
	"github.com/phonelog/liveview/internal/config"
	"github.com/phonelog/liveview/internal/i18n"
)

// MaxCalls is how many call sessions the live view shows.
const MaxCalls = 50

const shutdownTimeout = 5 * time.Second

type Server struct {
	config         *config.ServerConfig
	store          *calls.Store
	broadcaster    *Broadcaster
	tokens         *Tokens
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
	started        time.Time
	log            zerolog.Logger
}

func NewServer(cfg *config.ServerConfig, store *calls.Store, broadcaster *Broadcaster, tokens *Tokens, log zerolog.Logger) *Server {
	s := &Server{
		config:         cfg,
		store:          store,
		broadcaster:    broadcaster,
		tokens:         tokens,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      cfg.AuthToken,
		started:        time.Now(),
		log:            log.With().Str("component", "server").Logger(),
	}

	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// ContentSource renders the newest call sessions as the content fragment.
func ContentSource(store *calls.Store) ContentFunc {
	return func() (string, error) {
		return calls.RenderFragment(store.Newest(MaxCalls))
	}
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/live", s.handleLive)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/live", http.StatusFound)
	})
}

// Handler returns the routes wrapped with the security headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(mux)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin:  s.checkOrigin,
		Subprotocols: []string{Subprotocol},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws upgrade error")
		return
	}

	c, err := s.broadcaster.AddClient(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("ws client rejected")
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(writeTimeout))
		conn.Close()
		return
	}

	s.log.Info().Str("remote", r.RemoteAddr).Str("client", c.id).Msg("ws client connected")
	go func() {
		s.broadcaster.Serve(c)
		s.log.Info().Str("remote", r.RemoteAddr).Str("client", c.id).Msg("ws client disconnected")
	}()
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	tag := r.Header.Get("Accept-Language")
	if tag == "" {
		tag = s.config.Language
	}
	base, _ := i18n.DetectLanguage(tag).Base()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	err := calls.RenderPage(w, calls.PageData{
		Lang:  base.String(),
		Token: s.tokens.Issue(),
		Calls: s.store.Newest(MaxCalls),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("render live page")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	st := StatusPayload{
		Clients:   s.broadcaster.ClientCount(),
		Joined:    s.broadcaster.JoinedCount(),
		Calls:     s.store.Count(),
		Uptime:    int64(time.Since(s.started)),
		StartedAt: s.started.UTC().Format(time.RFC3339),
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := p.MemoryInfo(); err == nil {
			st.RSSBytes = mem.RSS
		}
		if cpu, err := p.CPUPercent(); err == nil {
			st.CPUPct = cpu
		}
	} else {
		s.log.Debug().Err(err).Msg("process stats unavailable")
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	hostname := parsed.Hostname()
	return hostname == "localhost" || hostname == "127.0.0.1" || hostname == "::1"
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "same-origin")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves handler on addr until ctx is cancelled, then tells
// every live view client the server is going away and shuts down.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, b *Broadcaster, log zerolog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return Serve(ctx, ln, handler, b, log)
}

// Serve is ListenAndServe on an existing listener. It returns once every
// client has been sent its close frame or the shutdown deadline passes.
func Serve(ctx context.Context, ln net.Listener, handler http.Handler, b *Broadcaster, log zerolog.Logger) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := b.DisconnectAll(shutdownCtx, "Server is shutting down"); err != nil {
		log.Warn().Err(err).Msg("disconnect clients")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
