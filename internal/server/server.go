package server

import (
	"context"
	"net/http"
	"time"

	"MarketSettle/internal/engine"
	"MarketSettle/internal/ledger"
	"MarketSettle/internal/observability"
	"MarketSettle/internal/query"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Funds is the slice of the ledger the API exposes: crediting a user from
// the external boundary and reading balances.
type Funds interface {
	Deposit(ctx context.Context, userID uuid.UUID, amount uint64) error
	Balance(key ledger.AccountKey) uint64
}

// Server is the HTTP/JSON API in front of the engine and the query service.
type Server struct {
	engine  *engine.Engine
	query   *query.Service
	funds   Funds
	health  *observability.HealthChecker
	metrics *observability.Metrics
	log     zerolog.Logger
}

func New(eng *engine.Engine, q *query.Service, funds Funds, health *observability.HealthChecker, metrics *observability.Metrics, log zerolog.Logger) *Server {
	return &Server{
		engine:  eng,
		query:   q,
		funds:   funds,
		health:  health,
		metrics: metrics,
		log:     log.With().Str("component", "http").Logger(),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestMetrics(s.metrics))

	if s.health != nil {
		r.GET("/healthz", gin.WrapF(s.health.LivenessHandler))
		r.GET("/readyz", gin.WrapF(s.health.ReadinessHandler))
	}

	api := r.Group("/api")
	api.GET("/markets", s.listMarkets)
	api.GET("/markets/:id", s.getMarket)
	api.GET("/markets/:id/positions", s.marketPositions)

	authed := api.Group("", requireIdentity())
	authed.POST("/markets", s.createMarket)
	authed.POST("/markets/:id/bets", s.placeBet)
	authed.POST("/markets/:id/resolve", s.resolveMarket)
	authed.POST("/markets/:id/claim", s.claimWinnings)
	authed.GET("/portfolio", s.portfolio)
	authed.POST("/deposits", s.deposit)
	authed.GET("/balance", s.balance)

	return r
}

// Run serves until ctx is cancelled, then shuts down draining in-flight
// requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	s.log.Info().Str("addr", addr).Msg("http server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
