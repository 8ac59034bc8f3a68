package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/suhail953/wattflow/internal/ports"
)

// Options configures the router.
type Options struct {
	Ingester  Ingester
	Health    HealthReporter
	Obs       ports.Observability
	BodyLimit int64
	// MQTTAddr is advertised by the root endpoint.
	MQTTAddr    string
	ServiceName string
}

// NewRouter serves the API both at the root and under /api.
func NewRouter(opts Options) *gin.Engine {
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = DefaultBodyLimit
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "wattflow"
	}
	h := &handlers{
		ingester:  opts.Ingester,
		health:    opts.Health,
		obs:       opts.Obs,
		bodyLimit: opts.BodyLimit,
		mqttAddr:  opts.MQTTAddr,
	}

	router := gin.New()
	router.Use(gin.CustomRecovery(h.recovered))
	router.Use(otelgin.Middleware(opts.ServiceName))

	router.GET("/", h.root)
	for _, g := range []*gin.RouterGroup{&router.RouterGroup, router.Group("/api")} {
		g.GET("/health", h.healthCheck)
		g.POST("/data/receive", h.receiveData)
	}
	router.NoRoute(h.notFound)
	return router
}

// Server runs the router on a plain net/http server so it can be shut down
// gracefully.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

func NewServer(addr string, handler http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Listen binds the address so callers learn about port conflicts before
// serving.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

// Addr is the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.srv.Addr
}

// Serve blocks until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Serve() error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	if s.ln != nil {
		// Serve may never have run; the listener is then still open.
		_ = s.ln.Close()
	}
	return err
}
