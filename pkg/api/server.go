// Package api serves card lookups over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mtgmarket/cardgate/pkg/models"
)

// Cards is the lookup surface the server exposes.
type Cards interface {
	SearchCards(ctx context.Context, query string, page int) (json.RawMessage, error)
	CardByID(ctx context.Context, id string) (json.RawMessage, error)
	Prints(ctx context.Context, id string) (json.RawMessage, error)
	ByName(ctx context.Context, q models.NameQuery) (json.RawMessage, error)
	Images(ctx context.Context, id string) (models.ImageURIs, error)
	Prices(ctx context.Context, id string) (models.Prices, error)
	CacheStats() models.CacheStats
}

// Summarizer reports upstream call statistics.
type Summarizer interface {
	Summary(ctx context.Context, since time.Time) ([]models.EndpointSummary, error)
}

// Server is the HTTP front for the card service.
type Server struct {
	listen string
	cards  Cards
	ledger Summarizer
	logger *slog.Logger
	engine *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for access logs.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithLedger adds upstream call statistics to /api/stats.
func WithLedger(l Summarizer) Option {
	return func(s *Server) { s.ledger = l }
}

// New creates a Server listening on listen.
func New(listen string, cards Cards, opts ...Option) *Server {
	s := &Server{
		listen: listen,
		cards:  cards,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(s.logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/api/stats", s.stats)

	cards := r.Group("/api/cards")
	cards.GET("/search", s.search)
	cards.GET("/by-name/exact/:name", s.named(func(n string) models.NameQuery { return models.NameQuery{Exact: n} }))
	cards.GET("/by-name/fuzzy/:name", s.named(func(n string) models.NameQuery { return models.NameQuery{Fuzzy: n} }))
	cards.GET("/:id", s.card)
	cards.GET("/:id/prints", s.prints)
	cards.GET("/:id/images", s.images)
	cards.GET("/:id/prices", s.prices)
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// ListenAndServe starts the server and shuts it down gracefully once ctx is
// done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("cardgate listening", "addr", s.listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
