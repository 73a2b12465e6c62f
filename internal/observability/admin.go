package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// SessionStatus is the admin view of the agent's controller session.
type SessionStatus struct {
	SessionID   string    `json:"session_id,omitempty"`
	State       string    `json:"state"`
	Controller  string    `json:"controller"`
	ConnectedAt time.Time `json:"connected_at,omitempty"`
	Commands    uint64    `json:"commands"`
	Attempts    int       `json:"connect_attempts"`
	LastError   string    `json:"last_error,omitempty"`
}

// StatusProvider supplies the current session snapshot.
type StatusProvider interface {
	SessionStatus() SessionStatus
}

type AdminConfig struct {
	ListenAddr  string
	CORSOrigins []string
}

// NewAdminRouter builds the read-only admin surface: /health, /session and
// /metrics.
func NewAdminRouter(p StatusProvider, cfg AdminConfig) *gin.Engine {
	RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(adminAccess(ComponentLogger("admin")))
	if origins := normalizeOrigins(cfg.CORSOrigins); len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: origins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().UTC(),
		})
	})
	r.GET("/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, p.SessionStatus())
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// ServeAdmin runs the admin server until ctx is done. Listener errors are
// returned; a clean shutdown returns nil.
func ServeAdmin(ctx context.Context, p StatusProvider, cfg AdminConfig) error {
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           NewAdminRouter(p, cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("observability.ServeAdmin listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	}
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		o = strings.TrimSpace(o)
		if o != "" {
			out = append(out, strings.TrimRight(o, "/"))
		}
	}
	return out
}
