package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"poolledger/internal/journal"
	"poolledger/internal/ledger"
	"poolledger/internal/model"
)

// OperationStore persists pool snapshots and applied operations.
// *postgres.Store satisfies it.
type OperationStore interface {
	UpsertPoolState(ctx context.Context, snapshot model.PoolSnapshot) error
	InsertOperations(ctx context.Context, records []model.OperationRecord) error
}

// Server exposes the pool ledger over HTTP. The journal and store are
// optional; when present, every applied operation is journaled and the
// touched pool snapshot is persisted.
type Server struct {
	ledger  *ledger.Ledger
	journal *journal.Journal
	store   OperationStore
	logger  *zap.Logger

	// Sequence source for stored operations when no journal is configured.
	seqMu sync.Mutex
	seq   uint64

	httpServer *http.Server
}

// New assembles a Server. journal and store may be nil.
func New(l *ledger.Ledger, j *journal.Journal, store OperationStore, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		ledger:  l,
		journal: j,
		store:   store,
		logger:  logger,
	}
}

// SeedSequence resumes the journal-less operation sequence after seq, so a
// restarted server does not collide with rows already stored.
func (s *Server) SeedSequence(seq uint64) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	if seq > s.seq {
		s.seq = seq
	}
}

func (s *Server) nextSeq() uint64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	s.seq++
	return s.seq
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	g := router.Group("/v1")
	g.POST("/liquidity/add", s.addLiquidity)
	g.POST("/liquidity/remove", s.removeLiquidity)
	g.POST("/swaps", s.swap)
	g.GET("/quote", s.quote)
	g.GET("/pools/:assetA/:assetB", s.poolSnapshot)
	g.GET("/pools/:assetA/:assetB/price", s.price)
	g.GET("/pools/:assetA/:assetB/shares/:holder", s.shares)
	return router
}

// Start binds the HTTP listener and serves in the background.
func (s *Server) Start(addr string) {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router(),
	}

	s.logger.Info("http server start", zap.String("addr", addr))
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server", zap.Error(err))
		}
	}()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
