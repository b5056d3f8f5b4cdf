// Package server exposes the vault's read state over HTTP for monitoring and
// integration: ledger totals, policy parameters, per-account pending
// requests, the composed deposit rate and the recent event log.
package server

import (
	"errors"
	"expvar"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/synthvault/govault/internal/conversion"
	"github.com/synthvault/govault/internal/domain"
	"github.com/synthvault/govault/internal/events"
	"github.com/synthvault/govault/internal/vault"
	"github.com/synthvault/govault/pkg/cache"
)

// rateCacheTTL bounds how often /v1/rate reaches the upstream oracles.
const rateCacheTTL = 2 * time.Second

type Config struct {
	// AssetDecimals renders reference amounts as human decimals.
	AssetDecimals int32
	// SynthDecimals renders synthetic amounts as human decimals.
	SynthDecimals int32
}

type Server struct {
	cfg    Config
	vault  *vault.Vault
	events *events.Log
	rates  *cache.InMemoryCache[string, *big.Int]
}

func New(cfg Config, v *vault.Vault, ev *events.Log) *Server {
	return &Server{
		cfg:    cfg,
		vault:  v,
		events: ev,
		rates:  cache.NewInMemoryCache[string, *big.Int](rateCacheTTL),
	}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/v1")
	v1.GET("/state", s.handleState)
	v1.GET("/rate", s.handleRate)
	v1.GET("/accounts/:addr/request", s.handleRequest)
	v1.GET("/events", s.handleEvents)

	r.GET("/debug/vars", gin.WrapH(expvar.Handler()))
	return r
}

func human(raw *big.Int, decimals int32) string {
	return decimal.NewFromBigInt(raw, -decimals).String()
}

func (s *Server) handleState(c *gin.Context) {
	deposited, minted, fee := s.vault.Totals()
	cooldown, feeBps, maxAge, paused := s.vault.Params()
	c.JSON(http.StatusOK, gin.H{
		"totalReferenceDeposited": deposited.String(),
		"totalSynthMinted":        minted.String(),
		"totalFeeAccrued":         fee.String(),
		"referenceDeposited":      human(deposited, s.cfg.AssetDecimals),
		"synthMinted":             human(minted, s.cfg.SynthDecimals),
		"feeAccrued":              human(fee, s.cfg.AssetDecimals),
		"cooldownBlocks":          cooldown,
		"protocolFeeBps":          feeBps,
		"pythValidTimePeriod":     maxAge,
		"paused":                  paused,
	})
}

func (s *Server) handleRate(c *gin.Context) {
	rate, ok := s.rates.Get("rate")
	if !ok {
		fresh, err := s.vault.CurrentRate(c.Request.Context())
		if err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, domain.ErrPriceFeedNotSet) {
				status = http.StatusServiceUnavailable
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		rate = fresh
		s.rates.Set("rate", rate, 0)
	}
	c.JSON(http.StatusOK, gin.H{
		"rate":        rate.String(),
		"rateDecimal": human(rate, conversion.RateDecimals),
	})
}

func (s *Server) handleRequest(c *gin.Context) {
	addr := c.Param("addr")
	if !common.IsHexAddress(addr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}
	req, err := s.vault.PendingRequest(common.HexToAddress(addr))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if req == nil {
		// an empty slot is the zeroed tuple, not a 404
		c.JSON(http.StatusOK, gin.H{
			"synthAmount":     "0",
			"referenceAmount": "0",
			"requestHeight":   0,
			"pending":         false,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"synthAmount":     req.SynthAmount.String(),
		"referenceAmount": req.ReferenceAmount.String(),
		"requestHeight":   req.RequestHeight,
		"pending":         true,
	})
}

func (s *Server) handleEvents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"events": s.events.Recent(200)})
}
