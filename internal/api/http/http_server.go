// Package http exposes the simulator over a small control API so drivers
// in other processes can step the replay and place orders.
package http

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"marketsim/internal/api/dto"
	"marketsim/internal/domain"
	"marketsim/internal/middleware"
	"marketsim/internal/session"
)

// HTTPServer serializes all access to the session behind a mutex: the
// matching engine is single-threaded by construction.
type HTTPServer struct {
	sess *session.Session
	log  *zap.Logger
	mu   sync.Mutex
}

func NewHTTPServer(sess *session.Session, log *zap.Logger) *HTTPServer {
	return &HTTPServer{sess: sess, log: log}
}

func (s *HTTPServer) Run(addr string) error {
	return s.router().Run(addr)
}

func (s *HTTPServer) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(s.log))

	rl := middleware.NewRateLimiter(time.Millisecond)
	r.Use(rl.Middleware())

	r.POST("/reset", s.reset)
	r.POST("/step", s.step)
	r.POST("/orders", s.submitOrder)
	r.POST("/quotes", s.placeQuotes)
	r.GET("/quote", s.getQuote)
	r.GET("/depth", s.getDepth)
	r.GET("/fills", s.getFills)
	r.GET("/state", s.getState)

	return r
}

func (s *HTTPServer) reset(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sess.Reset(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": s.sess.RunID()})
}

func (s *HTTPServer) step(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	execs, ok, err := s.sess.Step(c.Request.Context())
	if err != nil {
		// Matching errors are fatal for the run; the driver must reset.
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	resp := dto.StepResponse{
		Executions: toExecutions(execs),
		Done:       !ok,
		TapeTime:   s.sess.CurrentTime(),
	}
	c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) submitOrder(c *gin.Context) {
	var req dto.SubmitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	side, ok := parseSide(req.Side)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be B or S"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		id  int64
		err error
	)
	switch req.Type {
	case "limit":
		id, err = s.sess.InjectLimit(side, req.Price, req.Shares)
	case "market":
		id, err = s.sess.InjectMarket(side, req.Shares)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be limit or market"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": id})
}

func (s *HTTPServer) placeQuotes(c *gin.Context) {
	var req dto.PlaceQuotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sess.PlaceQuotes(req.BidDistance, req.AskDistance); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "scheduled"})
}

func (s *HTTPServer) getQuote(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, s.sess.Quote())
}

func (s *HTTPServer) getDepth(c *gin.Context) {
	n, err := strconv.Atoi(c.DefaultQuery("levels", "5"))
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "levels must be a positive integer"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bids, asks := s.sess.Depth(n)
	c.JSON(http.StatusOK, gin.H{"bids": bids, "asks": asks})
}

func (s *HTTPServer) getFills(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fills, err := s.sess.Fills(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"fills": fills})
}

func (s *HTTPServer) getState(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := dto.StateResponse{
		RunID:     s.sess.RunID(),
		TapeTime:  s.sess.CurrentTime(),
		Position:  s.sess.Position(),
		Imbalance: s.sess.Imbalance(5).String(),
		Done:      s.sess.Done(),
	}
	if mid, ok := s.sess.MidPrice(); ok {
		resp.MidPrice = mid.String()
	}
	c.JSON(http.StatusOK, resp)
}

func toExecutions(execs []domain.Execution) []dto.ExecutionResponse {
	out := make([]dto.ExecutionResponse, 0, len(execs))
	for _, ex := range execs {
		out = append(out, dto.ExecutionResponse{
			OrderID: ex.ID,
			Price:   ex.Price.String(),
			Shares:  ex.Shares,
		})
	}
	return out
}

func parseSide(v string) (domain.Side, bool) {
	switch v {
	case "B", "buy":
		return domain.Buy, true
	case "S", "sell":
		return domain.Sell, true
	}
	return "", false
}
