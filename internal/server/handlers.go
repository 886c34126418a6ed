package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"MarketSettle/internal/engine"
	"MarketSettle/internal/ledger"
	"MarketSettle/internal/market"
	"MarketSettle/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type createMarketRequest struct {
	Title            string    `json:"title" binding:"required"`
	Description      string    `json:"description" binding:"required"`
	Category         uint8     `json:"category"`
	EventType        uint8     `json:"event_type"`
	Subject          string    `json:"subject"`
	Deadline         time.Time `json:"resolution_deadline" binding:"required"`
	Resolver         string    `json:"resolver"`
	InitialLiquidity uint64    `json:"initial_liquidity" binding:"required"`
}

func (s *Server) createMarket(c *gin.Context) {
	var req createMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var resolver uuid.UUID
	if req.Resolver != "" {
		var err error
		resolver, err = uuid.Parse(req.Resolver)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed resolver id"})
			return
		}
	}

	m, err := s.engine.CreateMarket(c.Request.Context(), engine.CreateMarketParams{
		Title:            req.Title,
		Description:      req.Description,
		Category:         req.Category,
		EventType:        req.EventType,
		Subject:          req.Subject,
		Deadline:         req.Deadline,
		Creator:          callerIdentity(c),
		Resolver:         resolver,
		InitialLiquidity: req.InitialLiquidity,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":           m.ID,
		"status":       m.Status(),
		"yes_pool":     m.YesPool,
		"no_pool":      m.NoPool,
		"total_volume": m.TotalVolume,
	})
}

func (s *Server) listMarkets(c *gin.Context) {
	filter := store.MarketFilter{
		Status:  c.Query("status"),
		Subject: c.Query("subject"),
	}
	if raw := c.Query("category"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 8)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed category"})
			return
		}
		cat := uint8(n)
		filter.Category = &cat
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := s.query.ListMarkets(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) getMarket(c *gin.Context) {
	id, ok := marketID(c)
	if !ok {
		return
	}
	detail, err := s.query.GetMarket(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) marketPositions(c *gin.Context) {
	id, ok := marketID(c)
	if !ok {
		return
	}
	positions, err := s.query.MarketPositions(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"market_id": id, "positions": positions})
}

type placeBetRequest struct {
	Side   string `json:"side" binding:"required"`
	Amount uint64 `json:"amount" binding:"required"`
}

func (s *Server) placeBet(c *gin.Context) {
	id, ok := marketID(c)
	if !ok {
		return
	}

	var req placeBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	side, ok := parseSide(req.Side)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be Yes or No"})
		return
	}

	pos, err := s.engine.PlaceBet(c.Request.Context(), engine.BetParams{
		User:     callerIdentity(c),
		MarketID: id,
		Side:     side,
		Amount:   req.Amount,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"market_id":  pos.MarketID,
		"side":       side.String(),
		"shares":     pos.Shares(side),
		"total_cost": pos.TotalCost,
	})
}

type resolveRequest struct {
	Outcome string `json:"outcome" binding:"required"`
}

func (s *Server) resolveMarket(c *gin.Context) {
	id, ok := marketID(c)
	if !ok {
		return
	}

	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	outcome, ok := parseOutcome(req.Outcome)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "outcome must be Yes, No, or Invalid"})
		return
	}

	m, err := s.engine.Resolve(c.Request.Context(), engine.ResolveParams{
		MarketID: id,
		Resolver: callerIdentity(c),
		Outcome:  outcome,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":      m.ID,
		"status":  m.Status(),
		"outcome": m.Outcome.String(),
	})
}

func (s *Server) claimWinnings(c *gin.Context) {
	id, ok := marketID(c)
	if !ok {
		return
	}

	payout, err := s.engine.Claim(c.Request.Context(), engine.ClaimParams{
		User:     callerIdentity(c),
		MarketID: id,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"market_id": id,
		"payout":    payout,
	})
}

type depositRequest struct {
	Amount uint64 `json:"amount" binding:"required"`
}

func (s *Server) deposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := callerIdentity(c)
	if err := s.funds.Deposit(c.Request.Context(), user, req.Amount); err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":    user,
		"balance": s.funds.Balance(ledger.UserAccount(user)),
	})
}

func (s *Server) balance(c *gin.Context) {
	user := callerIdentity(c)
	c.JSON(http.StatusOK, gin.H{
		"user":    user,
		"balance": s.funds.Balance(ledger.UserAccount(user)),
	})
}

func (s *Server) portfolio(c *gin.Context) {
	result, err := s.query.Portfolio(c.Request.Context(), callerIdentity(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func marketID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed market id"})
		return uuid.Nil, false
	}
	return id, true
}

func parseSide(raw string) (market.Side, bool) {
	switch strings.ToLower(raw) {
	case "yes":
		return market.SideYes, true
	case "no":
		return market.SideNo, true
	default:
		return 0, false
	}
}

func parseOutcome(raw string) (market.Outcome, bool) {
	switch strings.ToLower(raw) {
	case "yes":
		return market.OutcomeYes, true
	case "no":
		return market.OutcomeNo, true
	case "invalid":
		return market.OutcomeInvalid, true
	default:
		return 0, false
	}
}

// writeError maps engine error classes onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	var status int
	switch engine.Classify(err) {
	case engine.ClassValidation:
		status = http.StatusBadRequest
	case engine.ClassNotFound:
		status = http.StatusNotFound
	case engine.ClassConflict, engine.ClassFunds:
		status = http.StatusConflict
	case engine.ClassArithmetic:
		status = http.StatusUnprocessableEntity
	default:
		status = http.StatusInternalServerError
		s.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
